package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "audit.events", cfg.KafkaTopic)
	assert.Equal(t, 30*time.Second, cfg.ScopeCacheTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.SlowRequestThreshold)
	assert.Equal(t, 4000, cfg.BodyCap)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("AUDITTRAIL_ADDR", ":9999")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SCOPE_CACHE_TTL", "2m")
	t.Setenv("SLOW_REQUEST_THRESHOLD", "1s")
	t.Setenv("AUDIT_BODY_CAP", "8000")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, not-a-cidr, 192.168.0.0/16")

	cfg := FromEnv()

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 2*time.Minute, cfg.ScopeCacheTTL)
	assert.Equal(t, time.Second, cfg.SlowRequestThreshold)
	assert.Equal(t, 8000, cfg.BodyCap)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)

	require.Len(t, cfg.TrustedProxies, 2)
	assert.Equal(t, "10.0.0.0/8", cfg.TrustedProxies[0].String())
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SCOPE_CACHE_TTL", "soon")
	t.Setenv("AUDIT_BODY_CAP", "-5")

	cfg := FromEnv()

	assert.Equal(t, 30*time.Second, cfg.ScopeCacheTTL)
	assert.Equal(t, 4000, cfg.BodyCap)
}

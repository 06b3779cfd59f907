package config

import (
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures server level configuration.
type Config struct {
	Addr        string
	Environment string

	DatabaseURL string

	// RedisURL enables the scope-resolution cache when set.
	RedisURL      string
	ScopeCacheTTL time.Duration

	// KafkaBrokers enables the audit event fan-out publisher when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	JWTSigningKey string

	// TrustedProxies lists CIDR prefixes allowed to set X-Forwarded-For.
	TrustedProxies []netip.Prefix

	// SlowRequestThreshold marks derived audit events as slow when the
	// request took longer than this.
	SlowRequestThreshold time.Duration

	// BodyCap is the maximum serialized size of a request/response body
	// stored inside audit event details before truncation kicks in.
	BodyCap int
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:                 getEnv("AUDITTRAIL_ADDR", ":8080"),
		Environment:          getEnv("ENVIRONMENT", "development"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		ScopeCacheTTL:        getDuration("SCOPE_CACHE_TTL", 30*time.Second),
		KafkaTopic:           getEnv("KAFKA_AUDIT_TOPIC", "audit.events"),
		JWTSigningKey:        getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		SlowRequestThreshold: getDuration("SLOW_REQUEST_THRESHOLD", 500*time.Millisecond),
		BodyCap:              getInt("AUDIT_BODY_CAP", 4000),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if proxies := os.Getenv("TRUSTED_PROXIES"); proxies != "" {
		for _, p := range strings.Split(proxies, ",") {
			prefix, err := netip.ParsePrefix(strings.TrimSpace(p))
			if err == nil {
				cfg.TrustedProxies = append(cfg.TrustedProxies, prefix)
			}
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"audittrail/internal/audit"
	audithandler "audittrail/internal/audit/handler"
	"audittrail/internal/audit/publisher"
	auditpg "audittrail/internal/audit/store/postgres"
	"audittrail/internal/identity"
	"audittrail/internal/permissions"
	"audittrail/internal/platform/config"
	"audittrail/internal/platform/database"
	"audittrail/internal/platform/health"
	"audittrail/internal/platform/httpserver"
	"audittrail/internal/platform/kafka/producer"
	"audittrail/internal/platform/logger"
	"audittrail/internal/platform/metrics"
	"audittrail/internal/platform/redis"
	httptransport "audittrail/internal/transport/http"
	"audittrail/pkg/platform/middleware/metadata"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. The audit domain logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Environment)

	log.Info("initializing audittrail",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	m := metrics.New()
	healthHandler := health.New(cfg.Environment)

	// Storage: PostgreSQL when configured, in-memory otherwise.
	pool, err := database.New(database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}

	var (
		store audit.Store
		orgs  audit.OrgDirectory
	)
	if pool != nil {
		store = auditpg.New(pool.DB())
		orgs = auditpg.NewOrgDirectory(pool.DB())
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
		defer pool.Close() //nolint:errcheck // best-effort close on shutdown
	} else {
		log.Warn("DATABASE_URL not set, using in-memory audit store")
		memOrgs := audit.NewMemoryOrgDirectory()
		store = audit.NewMemoryStore(memOrgs)
		orgs = memOrgs
	}

	// Optional Kafka fan-out.
	var emitter audit.Emitter
	kafkaProducer, err := producer.New(cfg.KafkaBrokers, log)
	if err != nil {
		log.Error("kafka init failed", "error", err)
		os.Exit(1)
	}
	if kafkaProducer != nil {
		pub := publisher.New(publisher.NewKafkaSink(kafkaProducer, cfg.KafkaTopic), 256, log)
		emitter = pub
		defer pub.Close()
		defer kafkaProducer.Close()
	}

	// Scope resolution, optionally cached in Redis.
	var scopes audit.ScopeResolver = audit.NewResolver(permissions.NewRoleChecker(), log)
	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		scopes = audit.NewCachedResolver(scopes, redisClient.Client, cfg.ScopeCacheTTL, log)
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
		defer redisClient.Close() //nolint:errcheck // best-effort close on shutdown
	}

	deriverOpts := []audit.DeriverOption{
		audit.WithBodyCap(cfg.BodyCap),
		audit.WithSlowThreshold(cfg.SlowRequestThreshold),
	}
	if emitter != nil {
		deriverOpts = append(deriverOpts, audit.WithEmitter(emitter))
	}
	deriver := audit.NewDeriver(store, log, m, deriverOpts...)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:   log,
		Metadata: metadata.NewMiddleware(&metadata.Config{TrustedProxies: cfg.TrustedProxies}),
		Identity: identity.Middleware(identity.NewExtractor(cfg.JWTSigningKey), log),
		Audit:    audit.NewMiddleware(deriver, log),
		Reader:   audithandler.New(store, scopes, orgs, log, m),
		Health:   healthHandler,
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

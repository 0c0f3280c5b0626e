package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/dental-agenda/internal/clinicapi"
	appconfig "github.com/wolfman30/dental-agenda/internal/config"
	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/internal/session"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore prefers Redis and falls back to process memory, in which
// case sessions do not survive a restart.
func BuildSessionStore(redisClient *redis.Client, logger *logging.Logger) session.Store {
	if redisClient != nil {
		return session.NewRedisStore(redisClient)
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger.Warn("redis not configured; sessions kept in memory")
	return session.NewMemoryStore()
}

// BuildSessionManager wires the staff directory and token signing. Outside
// production a missing secret is replaced by a random one per process.
func BuildSessionManager(cfg *appconfig.Config, store session.Store, logger *logging.Logger) (*session.Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	directory, err := session.ParseDirectory(cfg.StaffDirectoryJSON)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if directory.Len() == 0 {
		logger.Warn("staff directory is empty; nobody can sign in")
	}

	secret := cfg.SessionSecret
	if secret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("bootstrap: SESSION_SECRET is required in production")
		}
		secret = uuid.NewString()
		logger.Warn("SESSION_SECRET not set; using an ephemeral signing secret")
	}

	return session.NewManager(session.ManagerConfig{
		Store:       store,
		Directory:   directory,
		Secret:      secret,
		TTL:         cfg.SessionTTL,
		RememberTTL: cfg.SessionRememberTTL,
		Logger:      logger,
	})
}

// BuildClinicClient returns the appointments backend client.
func BuildClinicClient(cfg *appconfig.Config, logger *logging.Logger, m *metrics.AgendaMetrics) (*clinicapi.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	client, err := clinicapi.New(clinicapi.Config{
		BaseURL:     cfg.BackendURL,
		Timeout:     cfg.BackendTimeout,
		ListTimeout: cfg.BackendListTimeout,
		SyncTimeout: cfg.BackendSyncTimeout,
		ListLimit:   cfg.BackendListLimit,
		Logger:      logger,
		Metrics:     m,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return client, nil
}

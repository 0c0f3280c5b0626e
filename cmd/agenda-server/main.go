package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/dental-agenda/cmd/mainconfig"
	"github.com/wolfman30/dental-agenda/internal/agenda"
	"github.com/wolfman30/dental-agenda/internal/api/router"
	"github.com/wolfman30/dental-agenda/internal/app/bootstrap"
	appconfig "github.com/wolfman30/dental-agenda/internal/config"
	"github.com/wolfman30/dental-agenda/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/dental-agenda/internal/http/middleware"
	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

func main() {
	cfg, logger := mainconfig.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting dental-agenda server",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.BackendURL,
	)

	metricsHandler, agendaMetrics := setupMetrics()
	application, err := buildApp(context.Background(), cfg, logger, agendaMetrics, metricsHandler)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	// Sync requests may legitimately take up to the backend sync timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      application.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.BackendSyncTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics builds a dedicated registry with runtime collectors and the
// agenda metrics, and the handler that exposes it.
func setupMetrics() (http.Handler, *metrics.AgendaMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewAgendaMetrics(reg)
}

type app struct {
	handler   http.Handler
	workspace *agenda.Workspace
	limiter   *httpmiddleware.RateLimiter
	redis     *redis.Client
}

func (a *app) Close() {
	a.workspace.Close()
	a.limiter.Stop()
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, m *metrics.AgendaMetrics, metricsHandler http.Handler) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	client, err := bootstrap.BuildClinicClient(cfg, logger, m)
	if err != nil {
		return nil, err
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	store := bootstrap.BuildSessionStore(redisClient, logger)
	sessions, err := bootstrap.BuildSessionManager(cfg, store, logger)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}

	workspace := agenda.NewWorkspace(agenda.BoardConfig{
		API:      client,
		Logger:   logger,
		Metrics:  m,
		Location: loc,
	})
	syncCtrl, err := agenda.NewSyncController(agenda.SyncConfig{
		API:         client,
		SettleDelay: cfg.SyncSettleDelay,
		Logger:      logger,
		Metrics:     m,
	})
	if err != nil {
		return nil, err
	}
	limiter := httpmiddleware.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateBurst)

	handler := router.New(&router.Config{
		Logger:             logger,
		Agenda:             handlers.NewAgendaHandler(workspace, client, syncCtrl, loc, logger),
		Sessions:           handlers.NewSessionHandler(sessions, workspace, logger),
		Patients:           handlers.NewPatientsHandler(client, logger),
		SessionResolver:    sessions,
		Backend:            client,
		LoginLimiter:       limiter,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	return &app{handler: handler, workspace: workspace, limiter: limiter, redis: redisClient}, nil
}

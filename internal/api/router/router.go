package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/dental-agenda/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/dental-agenda/internal/http/middleware"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Agenda             *handlers.AgendaHandler
	Sessions           *handlers.SessionHandler
	Patients           *handlers.PatientsHandler
	SessionResolver    httpmiddleware.SessionResolver
	Backend            handlers.BackendPinger
	LoginLimiter       *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.Health(cfg.Backend))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Sessions != nil {
			login := public.With()
			if cfg.LoginLimiter != nil {
				login = public.With(httpmiddleware.RateLimit(cfg.LoginLimiter))
			}
			login.Post("/session/login", cfg.Sessions.Login)
		}
	})

	// Staff routes (Bearer session token)
	r.Group(func(staff chi.Router) {
		staff.Use(httpmiddleware.RequireSession(cfg.SessionResolver))

		if cfg.Sessions != nil {
			staff.Get("/session", cfg.Sessions.Current)
			staff.Post("/session/logout", cfg.Sessions.Logout)
		}

		if cfg.Agenda != nil {
			staff.Route("/agenda", func(a chi.Router) {
				a.Get("/", cfg.Agenda.GetBoard)
				a.Post("/refresh", cfg.Agenda.Refresh)
				a.Post("/sync", cfg.Agenda.Sync)
				a.Get("/sync/status", cfg.Agenda.SyncStatus)
				a.Get("/stats", cfg.Agenda.Stats)
				a.Get("/today", cfg.Agenda.Today)
				a.Get("/upcoming", cfg.Agenda.Upcoming)
				a.Post("/{id}/confirm", cfg.Agenda.Confirm)
				a.Post("/{id}/cancel", cfg.Agenda.Cancel)
			})
		}

		if cfg.Patients != nil {
			staff.Route("/patients", func(p chi.Router) {
				p.Get("/", cfg.Patients.List)
				p.Post("/", cfg.Patients.Create)
				p.Put("/{id}", cfg.Patients.Update)
			})
		}
	})

	return r
}

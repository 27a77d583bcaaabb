package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/webklar/booking-platform/internal/http/handlers"
	httpmiddleware "github.com/webklar/booking-platform/internal/http/middleware"
	"github.com/webklar/booking-platform/internal/observability/metrics"
	"github.com/webklar/booking-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Metrics        *metrics.BookingMetrics
	Health         http.Handler
	Booking        *handlers.BookingHandler
	Verification   *handlers.VerificationHandler
	Callback       http.Handler
	AdminCustomers *handlers.AdminCustomersHandler

	// SessionVerifier checks the magic link session on booking writes.
	SessionVerifier    httpmiddleware.SessionVerifier
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// SendRateLimiter throttles magic link requests per client (optional).
	SendRateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.Metrics))
	}

	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Handle("/health", cfg.Health)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Callback != nil {
			public.Handle("/auth/callback", cfg.Callback)
		}
	})

	r.Route("/api", func(api chi.Router) {
		if cfg.Booking != nil {
			api.Get("/slots", cfg.Booking.ListSlots)
			api.Post("/bookings/validate", cfg.Booking.Validate)
		}
		if cfg.Verification != nil {
			send := http.HandlerFunc(cfg.Verification.Send)
			if cfg.SendRateLimiter != nil {
				api.With(httpmiddleware.RateLimit(cfg.SendRateLimiter)).Post("/verification/send", send)
			} else {
				api.Post("/verification/send", send)
			}
			api.Get("/verification/status", cfg.Verification.Status)
		}

		// Writes that need a confirmed e-mail address.
		api.Group(func(session chi.Router) {
			session.Use(httpmiddleware.RequireSession(cfg.SessionVerifier))
			if cfg.Verification != nil {
				session.Post("/verification/confirm", cfg.Verification.Confirm)
			}
			if cfg.Booking != nil {
				session.Post("/bookings", cfg.Booking.Create)
			}
		})
	})

	if cfg.AdminAuthSecret != "" && cfg.AdminCustomers != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Route("/customers", func(c chi.Router) {
				c.Get("/", cfg.AdminCustomers.List)
				c.Get("/duplicates", cfg.AdminCustomers.Duplicates)
				c.Get("/{id}", cfg.AdminCustomers.Get)
				c.Post("/{id}/status", cfg.AdminCustomers.UpdateStatus)
			})
		})
	}

	return r
}

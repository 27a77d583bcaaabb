package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/webklar/booking-platform/cmd/mainconfig"
	"github.com/webklar/booking-platform/internal/api/router"
	"github.com/webklar/booking-platform/internal/app/bootstrap"
	"github.com/webklar/booking-platform/internal/auth"
	appconfig "github.com/webklar/booking-platform/internal/config"
	"github.com/webklar/booking-platform/internal/http/handlers"
	httpmiddleware "github.com/webklar/booking-platform/internal/http/middleware"
	"github.com/webklar/booking-platform/internal/identity"
	"github.com/webklar/booking-platform/internal/notify"
	"github.com/webklar/booking-platform/internal/observability/metrics"
	"github.com/webklar/booking-platform/internal/reconcile"
	"github.com/webklar/booking-platform/internal/slots"
	"github.com/webklar/booking-platform/internal/verification"
	"github.com/webklar/booking-platform/internal/workflow"
	"github.com/webklar/booking-platform/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting webklar booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, bookingMetrics := setupMetrics()

	pool := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if pool != nil {
		defer pool.Close()
	}
	repo := bootstrap.BuildCustomerRepository(pool, logger)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	stateStore := bootstrap.BuildVerificationStore(redisClient, logger)

	identityClient := identity.NewClient(cfg.AuthBaseURL, cfg.AuthAnonKey, logger)
	gate := verification.NewGate(identityClient, stateStore, cfg.CallbackURL(), logger,
		verification.WithCooldown(cfg.VerificationCooldown),
		verification.WithMetrics(bookingMetrics),
	)

	notifier := notify.NewBookingNotifier(buildEmailSender(ctx, cfg, logger), cfg.BookingNotifyEmail, cfg.BookingTeamName, logger)
	engine := reconcile.NewEngine(repo, logger,
		reconcile.WithNotifier(notifier),
		reconcile.WithMetrics(bookingMetrics),
		reconcile.WithAdvisor(cfg.BookingTeamName, cfg.BookingSegment),
	)
	generator := slots.NewGenerator(repo, logger,
		slots.WithHorizonDays(cfg.SlotHorizonDays),
		slots.WithLocation(loadLocation(cfg.BookingTimezone, logger)),
		slots.WithMetrics(bookingMetrics),
	)
	wf := workflow.NewService(repo, logger, bookingMetrics)

	routerCfg := &router.Config{
		Logger:       logger,
		Metrics:      bookingMetrics,
		Health:       handlers.NewHealthHandler(healthChecks(pool, redisClient), logger),
		Booking:      handlers.NewBookingHandler(generator, engine, cfg.SlotGroups, logger),
		Verification: handlers.NewVerificationHandler(gate, logger),
		Callback: handlers.NewCallbackHandler(identityClient, gate, handlers.CallbackConfig{
			PublicBaseURL:    cfg.PublicBaseURL,
			SuccessPath:      cfg.SuccessPath,
			AdminLandingPath: cfg.AdminLandingPath,
			ErrorPath:        cfg.AuthErrorPath,
			SecureCookie:     cfg.Env == "production",
		}, logger),
		AdminCustomers:     handlers.NewAdminCustomersHandler(repo, wf, logger),
		SessionVerifier:    auth.NewVerifier(cfg.AuthJWTSecret),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if cfg.VerificationSendPerMinute > 0 {
		routerCfg.SendRateLimiter = httpmiddleware.NewRateLimiter(
			float64(cfg.VerificationSendPerMinute)/60, max(cfg.VerificationSendBurst, 1))
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	// Let in-flight booking e-mails finish before the pools close.
	engine.Wait()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(registry)
}

// buildEmailSender picks the provider named by EMAIL_PROVIDER. Anything
// unusable falls back to the logging stub so bookings never fail on e-mail.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("SENDGRID_API_KEY not set; using stub email sender")
	case "ses":
		client, err := mainconfig.NewSESClient(ctx, cfg)
		if err != nil {
			logger.Error("failed to build SES client; using stub email sender", "error", err)
			break
		}
		if sender := notify.NewSESSender(client, notify.SESConfig{
			FromEmail:        cfg.SESFromEmail,
			FromName:         cfg.SESFromName,
			ConfigurationSet: cfg.SESConfigSet,
		}, logger); sender != nil {
			return sender
		}
	case "", "stub":
	default:
		logger.Warn("unknown EMAIL_PROVIDER; using stub email sender", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger)
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}

func loadLocation(name string, logger *logging.Logger) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("unknown BOOKING_TIMEZONE; using server local time", "timezone", name, "error", err)
		return time.Local
	}
	return loc
}

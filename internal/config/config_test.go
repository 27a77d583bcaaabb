package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("VERIFICATION_COOLDOWN", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("PUBLIC_BASE_URL", "")
	t.Setenv("BOOKING_TIMEZONE", "")
	t.Setenv("VERIFICATION_SEND_PER_MINUTE", "")
	t.Setenv("VERIFICATION_SEND_BURST", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.VerificationCooldown != 60*time.Second {
		t.Fatalf("expected 60s verification cooldown, got %s", cfg.VerificationCooldown)
	}
	if cfg.SlotHorizonDays != 28 {
		t.Fatalf("expected 28 day horizon, got %d", cfg.SlotHorizonDays)
	}
	if cfg.SlotGroups != 3 {
		t.Fatalf("expected 3 slot groups, got %d", cfg.SlotGroups)
	}
	if cfg.EmailProvider != "stub" {
		t.Fatalf("expected stub email provider, got %s", cfg.EmailProvider)
	}
	if cfg.BookingTimezone != "Europe/Berlin" {
		t.Fatalf("expected Europe/Berlin timezone, got %s", cfg.BookingTimezone)
	}
	if cfg.VerificationSendPerMinute != 5 || cfg.VerificationSendBurst != 3 {
		t.Fatalf("unexpected send limit %d/%d", cfg.VerificationSendPerMinute, cfg.VerificationSendBurst)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.CallbackURL() != "http://localhost:3000/auth/callback" {
		t.Fatalf("unexpected callback url %s", cfg.CallbackURL())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("PUBLIC_BASE_URL", "https://webklar.com/")
	t.Setenv("VERIFICATION_COOLDOWN", "90s")
	t.Setenv("SLOT_GROUPS", "5")
	t.Setenv("EMAIL_PROVIDER", " SendGrid ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://webklar.com, ,https://www.webklar.com")
	t.Setenv("REDIS_TLS", "true")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.VerificationCooldown != 90*time.Second {
		t.Fatalf("expected cooldown override, got %s", cfg.VerificationCooldown)
	}
	if cfg.SlotGroups != 5 {
		t.Fatalf("expected slot groups override, got %d", cfg.SlotGroups)
	}
	if cfg.EmailProvider != "sendgrid" {
		t.Fatalf("expected normalized provider, got %q", cfg.EmailProvider)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected two CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis TLS enabled")
	}
	if cfg.CallbackURL() != "https://webklar.com/auth/callback" {
		t.Fatalf("unexpected callback url %s", cfg.CallbackURL())
	}
}

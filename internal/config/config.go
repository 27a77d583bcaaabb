package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	PublicBaseURL      string
	LogLevel           string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	CORSAllowedOrigins []string

	// Hosted identity service (GoTrue-compatible)
	AuthBaseURL    string
	AuthAnonKey    string
	AuthJWTSecret  string
	AdminJWTSecret string

	// Booking funnel
	VerificationCooldown time.Duration
	// Per-client limit on magic link requests, before the auth service's own.
	VerificationSendPerMinute int
	VerificationSendBurst     int
	SlotHorizonDays           int
	SlotGroups                int
	BookingTimezone           string
	BookingTeamName           string
	BookingSegment            string
	SuccessPath               string
	AdminLandingPath          string
	AuthErrorPath             string

	// Notifications
	EmailProvider      string
	BookingNotifyEmail string
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	SESFromEmail       string
	SESFromName        string
	SESConfigSet       string

	// AWS (SES)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		AuthBaseURL:    getEnv("AUTH_BASE_URL", ""),
		AuthAnonKey:    getEnv("AUTH_ANON_KEY", ""),
		AuthJWTSecret:  getEnv("AUTH_JWT_SECRET", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		VerificationCooldown:      getEnvAsDuration("VERIFICATION_COOLDOWN", 60*time.Second),
		VerificationSendPerMinute: getEnvAsInt("VERIFICATION_SEND_PER_MINUTE", 5),
		VerificationSendBurst:     getEnvAsInt("VERIFICATION_SEND_BURST", 3),
		SlotHorizonDays:           getEnvAsInt("SLOT_HORIZON_DAYS", 28),
		SlotGroups:                getEnvAsInt("SLOT_GROUPS", 3),
		BookingTimezone:           getEnv("BOOKING_TIMEZONE", "Europe/Berlin"),
		BookingTeamName:           getEnv("BOOKING_TEAM_NAME", "Webklar Team"),
		BookingSegment:            getEnv("BOOKING_SEGMENT", "Appointment request"),
		SuccessPath:               getEnv("SUCCESS_PATH", "/success"),
		AdminLandingPath:          getEnv("ADMIN_LANDING_PATH", "/kunden-projekte"),
		AuthErrorPath:             getEnv("AUTH_ERROR_PATH", "/auth"),

		EmailProvider:      strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		BookingNotifyEmail: getEnv("BOOKING_NOTIFY_EMAIL", ""),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Webklar"),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),
		SESFromName:        getEnv("SES_FROM_NAME", "Webklar"),
		SESConfigSet:       getEnv("SES_CONFIGURATION_SET", ""),

		AWSRegion:           getEnv("AWS_REGION", "eu-central-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// CallbackURL is the redirect target handed to the identity service.
func (c *Config) CallbackURL() string {
	return c.PublicBaseURL + "/auth/callback"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

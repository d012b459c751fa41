// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is passed explicitly into
// constructors rather than read from ambient globals so tests can exercise
// alternative configurations without mutating the environment.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment gateway
	StripeSecretKey     string // empty in development: fake gateway is used
	StripeWebhookSecret string // HMAC secret for inbound event signatures
	Currency            string // default settlement currency
	MinChargeAmount     int64  // smallest chargeable amount in minor units
	CommissionBps       int64  // platform commission in basis points (800 = 8%)
	DefaultCaptureMode  string // "manual" holds funds in escrow, "automatic" passes through
	FeeRefundable       bool   // whether the platform fee is returned on dispute refunds

	// Dispute workflow
	EvidenceWindow  time.Duration // evidence-collection window after filing
	ReviewTimeout   time.Duration // budget for the automated review pass
	TimerInterval   time.Duration // deadline scan cadence
	GatewayAttempts int           // retry attempts for transient gateway failures

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint, empty disables tracing
}

const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultCurrency       = "usd"
	DefaultMinCharge      = 50 // Stripe's USD minimum
	DefaultCommissionBps  = 800
	DefaultEvidenceWindow = 72 * time.Hour
	DefaultReviewTimeout  = 15 * time.Second
	DefaultTimerInterval  = 30 * time.Second
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            getEnv("CURRENCY", DefaultCurrency),
		MinChargeAmount:     getEnvInt64("MIN_CHARGE_AMOUNT", DefaultMinCharge),
		CommissionBps:       getEnvInt64("COMMISSION_BPS", DefaultCommissionBps),
		DefaultCaptureMode:  getEnv("CAPTURE_MODE", "manual"),
		FeeRefundable:       getEnvBool("FEE_REFUNDABLE", true),
		EvidenceWindow:      getEnvDuration("EVIDENCE_WINDOW", DefaultEvidenceWindow),
		ReviewTimeout:       getEnvDuration("REVIEW_TIMEOUT", DefaultReviewTimeout),
		TimerInterval:       getEnvDuration("TIMER_INTERVAL", DefaultTimerInterval),
		GatewayAttempts:     int(getEnvInt64("GATEWAY_ATTEMPTS", 3)),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and coherent
func (c *Config) Validate() error {
	if c.CommissionBps < 0 || c.CommissionBps >= 10000 {
		return fmt.Errorf("COMMISSION_BPS must be in [0, 10000), got %d", c.CommissionBps)
	}
	if c.MinChargeAmount <= 0 {
		return fmt.Errorf("MIN_CHARGE_AMOUNT must be positive, got %d", c.MinChargeAmount)
	}
	if c.DefaultCaptureMode != "manual" && c.DefaultCaptureMode != "automatic" {
		return fmt.Errorf("CAPTURE_MODE must be \"manual\" or \"automatic\", got %q", c.DefaultCaptureMode)
	}
	if c.EvidenceWindow <= 0 {
		return fmt.Errorf("EVIDENCE_WINDOW must be positive")
	}
	if c.IsProduction() && c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required in production")
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

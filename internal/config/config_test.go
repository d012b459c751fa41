package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *Config {
	return &Config{
		Port:               DefaultPort,
		Env:                DefaultEnv,
		LogLevel:           DefaultLogLevel,
		Currency:           DefaultCurrency,
		MinChargeAmount:    DefaultMinCharge,
		CommissionBps:      DefaultCommissionBps,
		DefaultCaptureMode: "manual",
		EvidenceWindow:     DefaultEvidenceWindow,
		ReviewTimeout:      DefaultReviewTimeout,
		TimerInterval:      DefaultTimerInterval,
		GatewayAttempts:    3,
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, int64(DefaultCommissionBps), cfg.CommissionBps)
	assert.Equal(t, "manual", cfg.DefaultCaptureMode)
	assert.Equal(t, 72*time.Hour, cfg.EvidenceWindow)
}

func TestValidate_CommissionBounds(t *testing.T) {
	cfg := defaults()
	cfg.CommissionBps = 10000
	assert.Error(t, cfg.Validate())

	cfg.CommissionBps = -1
	assert.Error(t, cfg.Validate())

	cfg.CommissionBps = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidate_CaptureMode(t *testing.T) {
	cfg := defaults()
	cfg.DefaultCaptureMode = "deferred"
	assert.Error(t, cfg.Validate())
}

func TestValidate_ProductionRequiresStripe(t *testing.T) {
	cfg := defaults()
	cfg.Env = "production"
	assert.Error(t, cfg.Validate())

	cfg.StripeSecretKey = "sk_test_123"
	assert.Error(t, cfg.Validate(), "webhook secret still missing")

	cfg.StripeWebhookSecret = "whsec_123"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MinCharge(t *testing.T) {
	cfg := defaults()
	cfg.MinChargeAmount = 0
	assert.Error(t, cfg.Validate())
}

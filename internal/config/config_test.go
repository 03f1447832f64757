package config

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/test")
	t.Setenv("JWT_ISSUER", "tradeflow-test")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("WEBHOOK_SECRET", "hook-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 500, cfg.MaxLeverage)
	assert.True(t, cfg.Commission().Equal(decimal.NewFromFloat(0.001)))
}

func TestLoadRejectsBadLeverage(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_LEVERAGE", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadCommission(t *testing.T) {
	setRequired(t)

	for _, rate := range []string{"abc", "-0.1", "1", "1.5"} {
		t.Setenv("COMMISSION_RATE", rate)
		_, err := Load()
		assert.Error(t, err, "rate %q should be rejected", rate)
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	setRequired(t)
	// t.Setenv registered the restore; clearing it simulates a truly unset
	// variable, which envconfig distinguishes from set-but-empty.
	t.Setenv("DB_DSN", "placeholder")
	require.NoError(t, os.Unsetenv("DB_DSN"))

	_, err := Load()
	assert.Error(t, err)
}

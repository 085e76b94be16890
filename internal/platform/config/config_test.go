package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("RAZORPAY_KEY_SECRET", "")

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StoreMemory, cfg.Registration.Store)
	assert.Equal(t, 5, cfg.Registration.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.WebhookRetryWindow)
	assert.Equal(t, "INR", cfg.Gateway.Currency)
	assert.NotEmpty(t, cfg.Gateway.KeySecret, "development gets a placeholder secret")
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("EVENTPAY_ADDR", ":9090")
	t.Setenv("REGISTRATION_STORE", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/eventpay")
	t.Setenv("ORDER_FETCH_TIMEOUT", "750ms")
	t.Setenv("RECONCILE_MAX_ATTEMPTS", "9")
	t.Setenv("WEBHOOK_RETRY_WINDOW", "36h")
	t.Setenv("RECONCILE_MAX_ATTEMPTS_BOGUS", "x")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, StorePostgres, cfg.Registration.Store)
	assert.Equal(t, 750*time.Millisecond, cfg.Gateway.FetchTimeout)
	assert.Equal(t, 9, cfg.Registration.MaxAttempts)
	assert.Equal(t, 36*time.Hour, cfg.WebhookRetryWindow)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Run("production requires real secrets", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("RAZORPAY_KEY_ID", "")
		t.Setenv("RAZORPAY_KEY_SECRET", "")
		t.Setenv("RAZORPAY_WEBHOOK_SECRET", "")

		err := FromEnv().Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RAZORPAY_KEY_SECRET")
		assert.Contains(t, err.Error(), "RAZORPAY_WEBHOOK_SECRET")
	})

	t.Run("postgres store needs a database url", func(t *testing.T) {
		t.Setenv("REGISTRATION_STORE", "postgres")
		t.Setenv("DATABASE_URL", "")
		assert.ErrorContains(t, FromEnv().Validate(), "DATABASE_URL")
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("REGISTRATION_STORE", "mongo")
		assert.ErrorContains(t, FromEnv().Validate(), "unknown REGISTRATION_STORE")
	})
}

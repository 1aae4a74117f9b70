package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("ENCRYPTION_IV", "fedcba9876543210")
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setRequired(t)

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, 100, cfg.CardCacheSize)
	assert.Equal(t, 1000, cfg.CardGenerationCount)
	assert.InDelta(t, 0.3, cfg.CardLowWaterFraction, 1e-9)
	assert.Equal(t, uint64(1010212487), cfg.CardStartSuffix)
	assert.Equal(t, 5*time.Second, cfg.CardLockTimeout)
	assert.Equal(t, "0 0 0 1 * *", cfg.ExpiryJobSchedule)
	assert.Equal(t, "Europe/Moscow", cfg.Location().String())

	pool := cfg.CardPool()
	assert.Equal(t, "400000", pool.Numbering.BIN)
	assert.Equal(t, 16, pool.Numbering.Length)

	cards := cfg.Cards()
	assert.Equal(t, 3, cards.ValidityYears)
	assert.Equal(t, "1", cards.MinTransferAmount.String())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setRequired(t)
	t.Setenv("CARD_CACHE_SIZE", "10")
	t.Setenv("CARD_LOW_WATER_FRACTION", "0.5")
	t.Setenv("CARD_LOCK_TIMEOUT", "250ms")
	t.Setenv("DB_MAX_CONNS", "4")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.CardPool().CacheSize)
	assert.InDelta(t, 0.5, cfg.CardPool().LowWaterFraction, 1e-9)
	assert.Equal(t, 250*time.Millisecond, cfg.CardPool().LockTimeout)
	assert.Equal(t, int32(4), cfg.Pool().MaxConns)
	assert.Equal(t, int32(4), cfg.Pool().MinConns)
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setRequired(t)
	unsetEnvWithCleanup(t, "CARD_BIN")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CARD_BIN=510000\n"), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "510000", cfg.CardBIN)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "short key", env: map[string]string{"ENCRYPTION_KEY": "short"}},
		{name: "bad iv", env: map[string]string{"ENCRYPTION_IV": "123"}},
		{name: "missing secret", env: map[string]string{"JWT_SECRET": ""}},
		{name: "zero cache", env: map[string]string{"CARD_CACHE_SIZE": "0"}},
		{name: "inverted steps", env: map[string]string{"CARD_MIN_STEP": "50", "CARD_MAX_STEP": "10"}},
		{name: "unknown zone", env: map[string]string{"EXPIRY_TIMEZONE": "Mars/Olympus"}},
		{name: "bad amount", env: map[string]string{"MIN_TRANSFER_AMOUNT": "one"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig(t.TempDir())
			assert.Error(t, err)
		})
	}
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

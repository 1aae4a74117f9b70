// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // EXPIRY_TIMEZONE must resolve on minimal images

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"cardvault/internal/core/numerator"
	"cardvault/internal/core/types"
	"cardvault/internal/domain/auth"
	"cardvault/internal/domain/cardpool"
	"cardvault/internal/domain/cards"
	"cardvault/internal/infrastructure/storage/postgres"
	"cardvault/pkg/logger"
)

// Config holds all settings shared by the server, worker and seed binaries.
type Config struct {
	AppEnv   string `mapstructure:"APP_ENV"`
	AppPort  string `mapstructure:"APP_PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBStatementTimeout time.Duration `mapstructure:"DB_STATEMENT_TIMEOUT"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	CardBIN              string        `mapstructure:"CARD_BIN"`
	CardLength           int           `mapstructure:"CARD_LENGTH"`
	CardCacheSize        int           `mapstructure:"CARD_CACHE_SIZE"`
	CardGenerationCount  int           `mapstructure:"CARD_GENERATION_COUNT"`
	CardLowWaterFraction float64       `mapstructure:"CARD_LOW_WATER_FRACTION"`
	CardStartSuffix      uint64        `mapstructure:"CARD_START_SUFFIX"`
	CardMinStep          uint64        `mapstructure:"CARD_MIN_STEP"`
	CardMaxStep          uint64        `mapstructure:"CARD_MAX_STEP"`
	CardLockTimeout      time.Duration `mapstructure:"CARD_LOCK_TIMEOUT"`
	CardRefillTimeout    time.Duration `mapstructure:"CARD_REFILL_TIMEOUT"`
	CardValidityYears    int           `mapstructure:"CARD_VALIDITY_YEARS"`

	EncryptionKey string `mapstructure:"ENCRYPTION_KEY"`
	EncryptionIV  string `mapstructure:"ENCRYPTION_IV"`

	AMQPURL        string `mapstructure:"AMQP_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	ExpiryJobSchedule  string        `mapstructure:"EXPIRY_JOB_SCHEDULE"`
	ExpiryTimezone     string        `mapstructure:"EXPIRY_TIMEZONE"`
	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxMaxRetries   int           `mapstructure:"OUTBOX_MAX_RETRIES"`
	PoolCheckInterval  time.Duration `mapstructure:"POOL_CHECK_INTERVAL"`

	TransferMaxAttempts int           `mapstructure:"TRANSFER_MAX_ATTEMPTS"`
	TransferBackoff     time.Duration `mapstructure:"TRANSFER_BACKOFF"`
	MinTransferAmount   string        `mapstructure:"MIN_TRANSFER_AMOUNT"`

	AdminEmail    string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
	AdminName     string `mapstructure:"ADMIN_NAME"`
	SeedPoolSize  int    `mapstructure:"SEED_POOL_SIZE"`
}

var keys = []string{
	"APP_ENV", "APP_PORT", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_STATEMENT_TIMEOUT",
	"JWT_SECRET", "JWT_TTL",
	"CARD_BIN", "CARD_LENGTH", "CARD_CACHE_SIZE", "CARD_GENERATION_COUNT",
	"CARD_LOW_WATER_FRACTION", "CARD_START_SUFFIX", "CARD_MIN_STEP", "CARD_MAX_STEP",
	"CARD_LOCK_TIMEOUT", "CARD_REFILL_TIMEOUT", "CARD_VALIDITY_YEARS",
	"ENCRYPTION_KEY", "ENCRYPTION_IV",
	"AMQP_URL", "EVENTS_EXCHANGE",
	"EXPIRY_JOB_SCHEDULE", "EXPIRY_TIMEZONE",
	"OUTBOX_POLL_INTERVAL", "OUTBOX_BATCH_SIZE", "OUTBOX_MAX_RETRIES", "POOL_CHECK_INTERVAL",
	"TRANSFER_MAX_ATTEMPTS", "TRANSFER_BACKOFF", "MIN_TRANSFER_AMOUNT",
	"ADMIN_EMAIL", "ADMIN_PASSWORD", "ADMIN_NAME", "SEED_POOL_SIZE",
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("DB_MAX_CONNS", 25)
	viper.SetDefault("DB_STATEMENT_TIMEOUT", "30s")

	viper.SetDefault("JWT_TTL", "1h")

	viper.SetDefault("CARD_BIN", "400000")
	viper.SetDefault("CARD_LENGTH", numerator.DefaultLength)
	viper.SetDefault("CARD_CACHE_SIZE", 100)
	viper.SetDefault("CARD_GENERATION_COUNT", 1000)
	viper.SetDefault("CARD_LOW_WATER_FRACTION", 0.3)
	viper.SetDefault("CARD_START_SUFFIX", numerator.DefaultStartSuffix)
	viper.SetDefault("CARD_MIN_STEP", numerator.DefaultMinStep)
	viper.SetDefault("CARD_MAX_STEP", numerator.DefaultMaxStep)
	viper.SetDefault("CARD_LOCK_TIMEOUT", "5s")
	viper.SetDefault("CARD_REFILL_TIMEOUT", "30s")
	viper.SetDefault("CARD_VALIDITY_YEARS", 3)

	viper.SetDefault("EVENTS_EXCHANGE", "cardvault.events")

	viper.SetDefault("EXPIRY_JOB_SCHEDULE", "0 0 0 1 * *") // 00:00:00 on the 1st of every month
	viper.SetDefault("EXPIRY_TIMEZONE", "Europe/Moscow")
	viper.SetDefault("OUTBOX_POLL_INTERVAL", "2s")
	viper.SetDefault("OUTBOX_BATCH_SIZE", 100)
	viper.SetDefault("OUTBOX_MAX_RETRIES", 5)
	viper.SetDefault("POOL_CHECK_INTERVAL", "30s")

	viper.SetDefault("TRANSFER_MAX_ATTEMPTS", 3)
	viper.SetDefault("TRANSFER_BACKOFF", "100ms")
	viper.SetDefault("MIN_TRANSFER_AMOUNT", "1")

	viper.SetDefault("ADMIN_NAME", "Administrator")
	viper.SetDefault("SEED_POOL_SIZE", 1000)
}

// LoadConfig reads configuration from the environment. A .env file in dir,
// when present, fills variables that are not already set.
func LoadConfig(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	setDefaults()
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind explicitly so Unmarshal sees variables without defaults.
	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings every binary depends on.
func (c *Config) Validate() error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if n := len(c.EncryptionKey); n != 16 && n != 24 && n != 32 {
		errs = append(errs, fmt.Errorf("ENCRYPTION_KEY must be 16, 24 or 32 bytes, got %d", n))
	}
	if len(c.EncryptionIV) != 16 {
		errs = append(errs, fmt.Errorf("ENCRYPTION_IV must be 16 bytes, got %d", len(c.EncryptionIV)))
	}
	if _, err := types.NewMoneyFromString(c.MinTransferAmount); err != nil {
		errs = append(errs, fmt.Errorf("MIN_TRANSFER_AMOUNT: %w", err))
	}
	if _, err := time.LoadLocation(c.ExpiryTimezone); err != nil {
		errs = append(errs, fmt.Errorf("EXPIRY_TIMEZONE: %w", err))
	}
	if err := c.CardPool().Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// IsDevelopment reports a development environment.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Logger returns logger settings.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:       c.LogLevel,
		Development: c.IsDevelopment(),
		OutputPaths: []string{"stdout"},
	}
}

// Pool returns database pool settings.
func (c *Config) Pool() postgres.PoolConfig {
	cfg := postgres.DefaultPoolConfig(c.DatabaseURL)
	if c.DBMaxConns > 0 {
		cfg.MaxConns = c.DBMaxConns
		cfg.MinConns = min(cfg.MinConns, c.DBMaxConns)
	}
	return cfg
}

// JWT returns token settings.
func (c *Config) JWT() auth.JWTConfig {
	cfg := auth.DefaultJWTConfig(c.JWTSecret)
	cfg.AccessTokenTTL = c.JWTTTL
	return cfg
}

// CardPool returns card number pool settings.
func (c *Config) CardPool() cardpool.Config {
	return cardpool.Config{
		Numbering: numerator.Config{
			BIN:         c.CardBIN,
			Length:      c.CardLength,
			StartSuffix: c.CardStartSuffix,
			MinStep:     c.CardMinStep,
			MaxStep:     c.CardMaxStep,
		},
		CacheSize:        c.CardCacheSize,
		GenerationCount:  c.CardGenerationCount,
		LowWaterFraction: c.CardLowWaterFraction,
		LockTimeout:      c.CardLockTimeout,
		RefillTimeout:    c.CardRefillTimeout,
	}
}

// Cards returns card service settings.
func (c *Config) Cards() cards.Config {
	cfg := cards.DefaultConfig()
	cfg.ValidityYears = c.CardValidityYears
	cfg.TransferMaxAttempts = c.TransferMaxAttempts
	cfg.TransferBackoff = c.TransferBackoff
	if amount, err := types.NewMoneyFromString(c.MinTransferAmount); err == nil {
		cfg.MinTransferAmount = amount
	}
	return cfg
}

// Location returns the expiry job time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ExpiryTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

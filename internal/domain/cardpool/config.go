// Package cardpool keeps a buffer of ready card numbers in front of the
// durable pre-generated store and the sequence ledger that feeds it.
package cardpool

import (
	"fmt"
	"time"

	"cardvault/internal/core/numerator"
)

// Config is the explicit configuration of the pool. No package-level state.
type Config struct {
	// Numbering configures BIN, card length and the random step.
	Numbering numerator.Config

	// CacheSize is the in-memory buffer capacity and the minimum durable stock
	// below which a fill generates new numbers.
	CacheSize int

	// GenerationCount is the number of records one generation run inserts.
	GenerationCount int

	// LowWaterFraction triggers an async top-up when occupancy falls to or
	// below CacheSize*LowWaterFraction.
	LowWaterFraction float64

	// LockTimeout bounds the wait for the ledger lock.
	LockTimeout time.Duration

	// RefillTimeout bounds one asynchronous top-up.
	RefillTimeout time.Duration
}

// DefaultConfig returns defaults for the given BIN.
func DefaultConfig(bin string) Config {
	return Config{
		Numbering:        numerator.DefaultConfig(bin),
		CacheSize:        100,
		GenerationCount:  1000,
		LowWaterFraction: 0.3,
		LockTimeout:      5 * time.Second,
		RefillTimeout:    30 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Numbering.Validate(); err != nil {
		return err
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cardpool: cache size must be positive, got %d", c.CacheSize)
	}
	if c.GenerationCount <= 0 {
		return fmt.Errorf("cardpool: generation count must be positive, got %d", c.GenerationCount)
	}
	if c.LowWaterFraction < 0 || c.LowWaterFraction >= 1 {
		return fmt.Errorf("cardpool: low-water fraction must be in [0, 1), got %v", c.LowWaterFraction)
	}
	if c.LockTimeout <= 0 || c.RefillTimeout <= 0 {
		return fmt.Errorf("cardpool: lock and refill timeouts must be positive")
	}
	return nil
}

// lowWaterMark is the occupancy at or below which an async top-up runs.
func (c Config) lowWaterMark() int {
	return int(float64(c.CacheSize) * c.LowWaterFraction)
}

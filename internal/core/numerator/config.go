// Package numerator generates card numbers: BIN prefix plus a jittered,
// strictly increasing suffix, filtered by the Luhn checksum.
package numerator

import (
	"fmt"
	"strings"
)

const (
	// DefaultLength is the full card number length (PAN).
	DefaultLength = 16

	// DefaultStartSuffix is the suffix assumed when no checkpoint exists yet.
	DefaultStartSuffix uint64 = 1010212487

	// DefaultMinStep and DefaultMaxStep bound the random increment between
	// two consecutive candidates.
	DefaultMinStep uint64 = 133
	DefaultMaxStep uint64 = 1027

	// MaxSuffixWidth is the widest suffix a uint64 counter can always fill.
	MaxSuffixWidth = 19
)

// Config holds card numbering configuration.
type Config struct {
	// BIN is the issuer prefix, digits only (e.g. "400000").
	BIN string

	// Length is the full card number length (default 16).
	Length int

	// StartSuffix is the floor used when the ledger holds no checkpoint.
	StartSuffix uint64

	// MinStep/MaxStep: inclusive range of the random increment.
	MinStep uint64
	MaxStep uint64
}

// DefaultConfig returns sensible defaults for a BIN.
func DefaultConfig(bin string) Config {
	return Config{
		BIN:         bin,
		Length:      DefaultLength,
		StartSuffix: DefaultStartSuffix,
		MinStep:     DefaultMinStep,
		MaxStep:     DefaultMaxStep,
	}
}

// SuffixWidth is the number of digits left for the suffix.
// Zero or negative means the BIN leaves no room at all.
func (c Config) SuffixWidth() int {
	return c.Length - len(c.BIN)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BIN == "" {
		return fmt.Errorf("numerator: BIN is required")
	}
	if strings.TrimLeft(c.BIN, "0123456789") != "" {
		return fmt.Errorf("numerator: BIN %q must contain digits only", c.BIN)
	}
	if c.Length <= 0 {
		return fmt.Errorf("numerator: card length must be positive, got %d", c.Length)
	}
	if w := c.SuffixWidth(); w > MaxSuffixWidth {
		return fmt.Errorf("numerator: suffix width %d exceeds %d digits", w, MaxSuffixWidth)
	}
	if c.MinStep == 0 || c.MaxStep < c.MinStep {
		return fmt.Errorf("numerator: invalid step range [%d, %d]", c.MinStep, c.MaxStep)
	}
	return nil
}

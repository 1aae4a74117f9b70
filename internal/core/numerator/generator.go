package numerator

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// ErrExhaustedRange is returned when a candidate no longer fits the card
// length, i.e. the BIN address space is used up. Never retried.
var ErrExhaustedRange = errors.New("card number range exhausted")

// CardNumber is a full, Luhn-valid card number.
type CardNumber string

// String implements fmt.Stringer.
func (n CardNumber) String() string { return string(n) }

// Masked replaces all but the last four digits with '*'.
func (n CardNumber) Masked() string {
	return Mask(string(n))
}

// Mask replaces all but the last four characters with '*'.
func Mask(number string) string {
	b := []byte(number)
	for i := 0; i < len(b)-4; i++ {
		b[i] = '*'
	}
	return string(b)
}

// Batch is the result of one generation run.
type Batch struct {
	Numbers []CardNumber
	// LastSuffix is the new high-water mark, the last suffix consumed
	// (including candidates skipped by Luhn).
	LastSuffix uint64
	// Attempts counts every candidate tried.
	Attempts int
}

// Generator produces card numbers. It holds no sequence state: the caller
// supplies the last used suffix and persists the returned one.
type Generator struct {
	cfg  Config
	step func() uint64
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand makes the step sequence reproducible (tests).
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		g.step = func() uint64 {
			return g.cfg.MinStep + r.Uint64N(g.cfg.MaxStep-g.cfg.MinStep+1)
		}
	}
}

// New creates a generator for the given configuration.
func New(cfg Config, opts ...Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Generator{cfg: cfg}
	g.step = func() uint64 {
		return g.cfg.MinStep + rand.Uint64N(g.cfg.MaxStep-g.cfg.MinStep+1)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns the generator configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// Generate returns the next count Luhn-valid numbers after lastSuffix.
// Candidates failing Luhn are skipped, the loop keeps advancing.
func (g *Generator) Generate(lastSuffix uint64, count int) (Batch, error) {
	batch := Batch{
		Numbers:    make([]CardNumber, 0, count),
		LastSuffix: lastSuffix,
	}

	width := g.cfg.SuffixWidth()
	if width < 0 {
		width = 0
	}

	current := lastSuffix
	for len(batch.Numbers) < count {
		batch.Attempts++
		step := g.step()
		if step > math.MaxUint64-current {
			return Batch{}, fmt.Errorf("%w: BIN %s, suffix %d cannot advance by %d",
				ErrExhaustedRange, g.cfg.BIN, current, step)
		}
		current += step

		candidate := fmt.Sprintf("%s%0*d", g.cfg.BIN, width, current)
		if len(candidate) > g.cfg.Length {
			return Batch{}, fmt.Errorf("%w: BIN %s, suffix %d exceeds %d digits",
				ErrExhaustedRange, g.cfg.BIN, current, g.cfg.Length)
		}

		if !ValidLuhn(candidate) {
			continue
		}
		batch.Numbers = append(batch.Numbers, CardNumber(candidate))
	}

	batch.LastSuffix = current
	return batch, nil
}

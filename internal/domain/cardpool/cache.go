package cardpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	appctx "cardvault/internal/core/context"
	"cardvault/internal/core/numerator"
	"cardvault/pkg/logger"
)

// Replenisher adds freshly generated numbers to the durable store.
type Replenisher interface {
	Replenish(ctx context.Context, count int) (int, error)
}

// Cache hands out card numbers from a bounded in-memory buffer.
//
// The buffer is loaded from the store by claiming records, so a number is
// handed out at most once across all processes sharing the store. When the
// store runs low a fill generates a new batch first.
type Cache struct {
	cfg       Config
	cards     GeneratedCardRepository
	generator Replenisher
	enc       Encryptor
	metrics   *Metrics
	log       *logger.Logger

	buf chan numerator.CardNumber

	// fillMu serializes store round-trips. Take blocks on it, the async
	// top-up only tries it.
	fillMu    sync.Mutex
	refilling atomic.Bool

	lifeMu sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewCache creates an empty cache. Nothing touches the store until the
// first Take or Fill.
func NewCache(
	cfg Config,
	cards GeneratedCardRepository,
	generator Replenisher,
	enc Encryptor,
	opts ...Option,
) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := newOptions(opts)
	return &Cache{
		cfg:       cfg,
		cards:     cards,
		generator: generator,
		enc:       enc,
		metrics:   o.metrics,
		log:       o.log.WithComponent("card-cache"),
		buf:       make(chan numerator.CardNumber, cfg.CacheSize),
	}, nil
}

// Take returns a number that has not been handed out before.
//
// An empty buffer is filled synchronously. If it is still empty afterwards
// Take fails with ErrGenerationFailed, wrapping the fill error if there was
// one. Taking the buffer to its low-water mark starts a background top-up.
func (c *Cache) Take(ctx context.Context) (numerator.CardNumber, error) {
	if c.isClosed() {
		return "", ErrClosed
	}

	n, ok := c.poll()
	if ok {
		c.metrics.hits.Inc()
	} else {
		c.metrics.misses.Inc()
		if err := c.Fill(ctx); err != nil {
			return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		if n, ok = c.poll(); !ok {
			return "", ErrGenerationFailed
		}
	}

	c.scheduleRefill(ctx)
	return n, nil
}

// Fill loads the buffer to capacity if it is empty, and is a no-op
// otherwise. Concurrent callers wait for a fill in progress and then see a
// non-empty buffer.
func (c *Cache) Fill(ctx context.Context) error {
	c.fillMu.Lock()
	defer c.fillMu.Unlock()

	if len(c.buf) > 0 {
		return nil
	}

	err := c.load(ctx, cap(c.buf))
	c.metrics.fills.WithLabelValues(resultLabel(err)).Inc()
	return err
}

// Refill tops the buffer up to capacity without waiting: it returns false if
// another fill holds the store. Buffered numbers stay servable whatever
// happens here.
func (c *Cache) Refill(ctx context.Context) (bool, error) {
	if !c.fillMu.TryLock() {
		return false, nil
	}
	defer c.fillMu.Unlock()

	missing := cap(c.buf) - len(c.buf)
	if missing == 0 {
		return true, nil
	}

	err := c.load(ctx, missing)
	c.metrics.refills.WithLabelValues(resultLabel(err)).Inc()
	return true, err
}

// Stats reports buffer occupancy.
func (c *Cache) Stats() Stats {
	return Stats{
		Buffered:     len(c.buf),
		Capacity:     cap(c.buf),
		LowWaterMark: c.cfg.lowWaterMark(),
		Refilling:    c.refilling.Load(),
	}
}

// Close stops scheduling top-ups and waits for a running one. Numbers still
// buffered are lost to this process; they were already claimed from the store.
func (c *Cache) Close() {
	c.lifeMu.Lock()
	c.closed = true
	c.lifeMu.Unlock()

	c.wg.Wait()
}

func (c *Cache) poll() (numerator.CardNumber, bool) {
	select {
	case n := <-c.buf:
		c.metrics.buffered.Set(float64(len(c.buf)))
		return n, true
	default:
		return "", false
	}
}

func (c *Cache) isClosed() bool {
	c.lifeMu.RLock()
	defer c.lifeMu.RUnlock()
	return c.closed
}

// scheduleRefill starts at most one background top-up. It never blocks the
// caller and the top-up outlives the caller's context.
func (c *Cache) scheduleRefill(ctx context.Context) {
	if len(c.buf) > c.cfg.lowWaterMark() {
		return
	}

	c.lifeMu.RLock()
	defer c.lifeMu.RUnlock()
	if c.closed || !c.refilling.CompareAndSwap(false, true) {
		return
	}

	c.wg.Add(1)
	bg := appctx.Background(ctx, "card-refill")
	go func() {
		defer c.wg.Done()
		defer c.refilling.Store(false)

		ctx, cancel := context.WithTimeout(bg, c.cfg.RefillTimeout)
		defer cancel()

		if _, err := c.Refill(ctx); err != nil {
			c.log.WithContext(ctx).Errorw("background refill failed", "error", err)
		}
	}()
}

// load must be called with fillMu held.
func (c *Cache) load(ctx context.Context, want int) error {
	ctx, span := tracer.Start(ctx, "cardpool.load")
	defer span.End()
	span.SetAttributes(attribute.Int("cardpool.want", want))

	log := c.log.WithContext(ctx)

	stored, err := c.cards.Count(ctx)
	if err != nil {
		return fmt.Errorf("count stored numbers: %w", err)
	}
	if stored < c.cfg.CacheSize {
		log.Infow("store below cache size, generating", "stored", stored, "count", c.cfg.GenerationCount)
		if _, err := c.generator.Replenish(ctx, c.cfg.GenerationCount); err != nil {
			return err
		}
	}

	records, err := c.cards.ClaimOldest(ctx, want)
	if err != nil {
		return fmt.Errorf("claim stored numbers: %w", err)
	}

	loaded := 0
	for _, rec := range records {
		plain, err := c.enc.Decrypt(rec.EncryptedNumber)
		if err != nil {
			c.metrics.discarded.Inc()
			log.Errorw("dropping undecryptable stored number", "record_id", rec.ID, "error", err)
			continue
		}

		select {
		case c.buf <- numerator.CardNumber(plain):
			loaded++
		default:
			// Only takers drain the buffer while fillMu is held, so this
			// means more records were claimed than requested.
			log.Errorw("buffer full, claimed number lost", "record_id", rec.ID)
		}
	}

	c.metrics.buffered.Set(float64(len(c.buf)))
	log.Debugw("buffer loaded", "claimed", len(records), "loaded", loaded, "buffered", len(c.buf))
	return nil
}

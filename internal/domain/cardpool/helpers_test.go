package cardpool_test

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cardvault/internal/core/numerator"
	"cardvault/internal/core/security"
	"cardvault/internal/domain/cardpool"
	"cardvault/internal/infrastructure/storage/memory"
)

const testBIN = "400000"

func testEncryptor(t *testing.T) *security.Encryptor {
	t.Helper()
	enc, err := security.NewEncryptor(
		[]byte("0123456789abcdef0123456789abcdef"),
		[]byte("fedcba9876543210"),
	)
	require.NoError(t, err)
	return enc
}

func testConfig(cacheSize, generationCount int) cardpool.Config {
	cfg := cardpool.DefaultConfig(testBIN)
	cfg.CacheSize = cacheSize
	cfg.GenerationCount = generationCount
	cfg.LockTimeout = time.Second
	cfg.RefillTimeout = 5 * time.Second
	return cfg
}

// countingCards counts store round-trips.
type countingCards struct {
	inner  cardpool.GeneratedCardRepository
	counts atomic.Int64
	claims atomic.Int64
}

func (c *countingCards) Count(ctx context.Context) (int, error) {
	c.counts.Add(1)
	return c.inner.Count(ctx)
}

func (c *countingCards) InsertBatch(ctx context.Context, encrypted []string) (int, error) {
	return c.inner.InsertBatch(ctx, encrypted)
}

func (c *countingCards) ClaimOldest(ctx context.Context, n int) ([]cardpool.GeneratedCard, error) {
	c.claims.Add(1)
	return c.inner.ClaimOldest(ctx, n)
}

func (c *countingCards) roundTrips() int64 {
	return c.counts.Load() + c.claims.Load()
}

// countingReplenisher counts generation runs.
type countingReplenisher struct {
	inner cardpool.Replenisher
	calls atomic.Int64
}

func (r *countingReplenisher) Replenish(ctx context.Context, count int) (int, error) {
	r.calls.Add(1)
	return r.inner.Replenish(ctx, count)
}

// pool wires one "process" over a shared memory database.
type pool struct {
	db          *memory.DB
	cards       *countingCards
	checkpoints *memory.Checkpoints
	enc         *security.Encryptor
	ledger      *cardpool.Ledger
	generator   *countingReplenisher
	cache       *cardpool.Cache
}

func newPool(t *testing.T, db *memory.DB, cfg cardpool.Config) *pool {
	t.Helper()

	p := &pool{
		db:          db,
		cards:       &countingCards{inner: memory.NewGeneratedCards(db)},
		checkpoints: memory.NewCheckpoints(db),
		enc:         testEncryptor(t),
	}

	numbers, err := numerator.New(cfg.Numbering)
	require.NoError(t, err)

	p.ledger = cardpool.NewLedger(db, p.checkpoints, p.enc, cfg.Numbering.StartSuffix, cfg.LockTimeout)
	p.generator = &countingReplenisher{
		inner: cardpool.NewGenerator(p.ledger, numbers, p.cards, p.enc),
	}

	p.cache, err = cardpool.NewCache(cfg, p.cards, p.generator, p.enc)
	require.NoError(t, err)
	return p
}

// drainStore claims everything left in the store and decrypts it.
func (p *pool) drainStore(t *testing.T) []string {
	t.Helper()
	records, err := p.cards.inner.ClaimOldest(context.Background(), 1<<20)
	require.NoError(t, err)

	out := make([]string, 0, len(records))
	for _, rec := range records {
		plain, err := p.enc.Decrypt(rec.EncryptedNumber)
		require.NoError(t, err)
		out = append(out, plain)
	}
	return out
}

func (p *pool) checkpointSuffixes(t *testing.T) []uint64 {
	t.Helper()
	list, err := p.checkpoints.List(context.Background())
	require.NoError(t, err)

	out := make([]uint64, 0, len(list))
	for _, cp := range list {
		plain, err := p.enc.Decrypt(cp.EncryptedSuffix)
		require.NoError(t, err)
		v, err := strconv.ParseUint(plain, 10, 64)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

// takeRetrying retries the one retryable failure, as the issuance workflow may.
func takeRetrying(ctx context.Context, c *cardpool.Cache) (numerator.CardNumber, error) {
	for range 10_000 {
		n, err := c.Take(ctx)
		// Bare sentinel: the fill worked but other takers emptied the buffer first.
		if err == cardpool.ErrGenerationFailed {
			continue
		}
		return n, err
	}
	return "", errors.New("buffer kept running dry")
}

func suffixOf(t *testing.T, number string) uint64 {
	t.Helper()
	v, err := strconv.ParseUint(number[len(testBIN):], 10, 64)
	require.NoError(t, err)
	return v
}

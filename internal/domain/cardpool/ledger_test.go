package cardpool_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault/internal/core/numerator"
	"cardvault/internal/domain/cardpool"
	"cardvault/internal/infrastructure/storage/memory"
)

func TestLedger_StartsAtConfiguredFloor(t *testing.T) {
	p := newPool(t, memory.NewDB(), testConfig(5, 5))

	last, err := p.ledger.LastSuffix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, numerator.DefaultStartSuffix, last)
}

func TestGenerator_StrictlyIncreasingAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	cfg := testConfig(5, 40)

	for range 3 {
		// Each round is a fresh process over the same store.
		p := newPool(t, db, cfg)
		n, err := p.generator.Replenish(ctx, cfg.GenerationCount)
		require.NoError(t, err)
		require.Equal(t, cfg.GenerationCount, n)
	}

	p := newPool(t, db, cfg)
	numbers := p.drainStore(t)
	require.Len(t, numbers, 120)

	prev := numerator.DefaultStartSuffix
	for _, n := range numbers {
		assert.True(t, numerator.ValidLuhn(n), n)
		assert.Len(t, n, 16)
		s := suffixOf(t, n)
		assert.Greater(t, s, prev)
		prev = s
	}

	checkpoints := p.checkpointSuffixes(t)
	require.Len(t, checkpoints, 3)
	assert.IsIncreasing(t, checkpoints)
	assert.Equal(t, checkpoints[2], prev)
}

func TestLedger_ConcurrentGeneratorsNeverOverlap(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	cfg := testConfig(5, 20)

	const processes = 8
	var wg sync.WaitGroup
	for range processes {
		p := newPool(t, db, cfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.generator.Replenish(ctx, cfg.GenerationCount)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p := newPool(t, db, cfg)
	numbers := p.drainStore(t)
	require.Len(t, numbers, processes*cfg.GenerationCount)

	seen := make(map[string]bool)
	for _, n := range numbers {
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}

	// Batches commit whole and in ledger order, so store order is suffix order.
	for i := 1; i < len(numbers); i++ {
		assert.Greater(t, suffixOf(t, numbers[i]), suffixOf(t, numbers[i-1]))
	}
	assert.IsIncreasing(t, p.checkpointSuffixes(t))
}

func TestLedger_LockWaitIsBounded(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	holder := newPool(t, db, testConfig(5, 5))

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- holder.ledger.Advance(ctx, func(ctx context.Context, last uint64) (uint64, error) {
			close(locked)
			<-release
			return last + 1, nil
		})
	}()
	<-locked

	cfg := testConfig(5, 5)
	cfg.LockTimeout = 20 * time.Millisecond
	waiter := newPool(t, db, cfg)

	_, err := waiter.generator.Replenish(ctx, 5)
	assert.ErrorIs(t, err, cardpool.ErrLedgerBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, holder.checkpointSuffixes(t), 1)
}

func TestLedger_SuffixMustAdvance(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, memory.NewDB(), testConfig(5, 5))

	err := p.ledger.Advance(ctx, func(ctx context.Context, last uint64) (uint64, error) {
		return last, nil
	})
	assert.Error(t, err)
	assert.Empty(t, p.checkpointSuffixes(t))
}

func TestLedger_FailedUnitLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, memory.NewDB(), testConfig(5, 5))
	boom := errors.New("boom")

	err := p.ledger.Advance(ctx, func(ctx context.Context, last uint64) (uint64, error) {
		_, err := p.cards.InsertBatch(ctx, []string{"a", "b"})
		require.NoError(t, err)
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := p.cards.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, p.checkpointSuffixes(t))
}

func TestLedger_CommitsIndependentlyOfCaller(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	p := newPool(t, db, testConfig(5, 5))
	boom := errors.New("issuance failed")

	err := db.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := p.generator.Replenish(ctx, 5)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Len(t, p.drainStore(t), 5)
	assert.Len(t, p.checkpointSuffixes(t), 1)
}

func TestLedger_CorruptedCheckpointHalts(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, memory.NewDB(), testConfig(5, 5))
	p.checkpoints.Seed("corrupted")

	_, err := p.generator.Replenish(ctx, 5)
	assert.ErrorIs(t, err, cardpool.ErrSequenceCorruption)

	_, err = p.ledger.LastSuffix(ctx)
	assert.ErrorIs(t, err, cardpool.ErrSequenceCorruption)
	assert.Empty(t, p.drainStore(t))
}

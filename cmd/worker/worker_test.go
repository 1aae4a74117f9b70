package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"cardvault/internal/domain/cardpool"
	"cardvault/pkg/logger"
)

type fakeRelay struct {
	mu      sync.Mutex
	batches []int
	calls   int
	moved   int
}

func (r *fakeRelay) ProcessBatch(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.batches) == 0 {
		return 0, nil
	}
	n := r.batches[0]
	r.batches = r.batches[1:]
	return n, nil
}

func (r *fakeRelay) MoveToDLQ(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moved++
	return 0, nil
}

type fakeKeys struct{ cleanups int }

func (k *fakeKeys) CleanupExpired(context.Context) (int64, error) {
	k.cleanups++
	return 3, nil
}

type fakeStock struct {
	count int
	err   error
}

func (s fakeStock) Count(context.Context) (int, error) { return s.count, s.err }

type fakeGenerator struct {
	requested []int
	err       error
}

func (g *fakeGenerator) Replenish(_ context.Context, count int) (int, error) {
	g.requested = append(g.requested, count)
	return count, g.err
}

func newTestWorker(relay *fakeRelay, stock fakeStock, gen *fakeGenerator) *Worker {
	return NewWorker(WorkerConfig{
		PollInterval:      time.Hour,
		BatchSize:         10,
		PoolCheckInterval: time.Hour,
		MinStock:          100,
		GenerationCount:   1000,
	}, relay, &fakeKeys{}, stock, gen, logger.NewNop())
}

func TestWorker_CheckStock(t *testing.T) {
	tests := []struct {
		name      string
		stock     fakeStock
		genErr    error
		requested []int
	}{
		{name: "below minimum", stock: fakeStock{count: 99}, requested: []int{1000}},
		{name: "at minimum", stock: fakeStock{count: 100}},
		{name: "count fails", stock: fakeStock{err: errors.New("db down")}},
		{name: "ledger busy", stock: fakeStock{count: 0}, genErr: cardpool.ErrLedgerBusy, requested: []int{1000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{err: tt.genErr}
			w := newTestWorker(&fakeRelay{}, tt.stock, gen)

			w.checkStock(context.Background())

			assert.Equal(t, tt.requested, gen.requested)
		})
	}
}

func TestWorker_CheckStockLogLevel(t *testing.T) {
	tests := []struct {
		name   string
		genErr error
		level  zapcore.Level
		msg    string
	}{
		{name: "ledger busy", genErr: cardpool.ErrLedgerBusy, level: zapcore.WarnLevel, msg: "pool replenish skipped"},
		{name: "range exhausted", genErr: cardpool.ErrExhaustedRange, level: zapcore.ErrorLevel, msg: "pool replenish failed"},
		{name: "sequence corrupted", genErr: cardpool.ErrSequenceCorruption, level: zapcore.ErrorLevel, msg: "pool replenish failed"},
		{name: "other failure", genErr: errors.New("db down"), level: zapcore.ErrorLevel, msg: "pool replenish failed"},
		{name: "replenished", level: zapcore.InfoLevel, msg: "pool replenished"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			w := NewWorker(WorkerConfig{MinStock: 100, GenerationCount: 1000},
				&fakeRelay{}, &fakeKeys{}, fakeStock{count: 0}, &fakeGenerator{err: tt.genErr},
				&logger.Logger{SugaredLogger: zap.New(core).Sugar()})

			w.checkStock(context.Background())

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			assert.Equal(t, tt.msg, entries[0].Message)
		})
	}
}

func TestWorker_RelayOutboxDrainsFullBatches(t *testing.T) {
	relay := &fakeRelay{batches: []int{10, 10, 4, 10}}
	w := newTestWorker(relay, fakeStock{}, &fakeGenerator{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RelayOutbox(ctx) }()

	require.Eventually(t, func() bool {
		relay.mu.Lock()
		defer relay.mu.Unlock()
		return relay.calls == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	// The partial batch ends the drain; the last batch waits for the next tick.
	assert.Equal(t, []int{10}, relay.batches)
}

func TestWorker_MaintainRunsImmediately(t *testing.T) {
	relay := &fakeRelay{}
	keys := &fakeKeys{}
	w := NewWorker(WorkerConfig{}, relay, keys, fakeStock{}, &fakeGenerator{}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, w.Maintain(ctx))
	assert.Equal(t, 1, relay.moved)
	assert.Equal(t, 1, keys.cleanups)
}

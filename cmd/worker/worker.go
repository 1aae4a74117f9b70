package main

import (
	"context"
	"errors"
	"time"

	"cardvault/internal/domain/cardpool"
	"cardvault/pkg/logger"
)

// OutboxRelay publishes pending outbox messages.
type OutboxRelay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
}

// KeyCleaner removes expired idempotency keys.
type KeyCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// PoolStock counts stored pre-generated numbers.
type PoolStock interface {
	Count(ctx context.Context) (int, error)
}

// Replenisher generates and stores new numbers.
type Replenisher interface {
	Replenish(ctx context.Context, count int) (int, error)
}

// Worker runs the background loops. Each loop returns nil when ctx is done;
// a failed iteration is logged and retried on the next tick.
type Worker struct {
	cfg       WorkerConfig
	relay     OutboxRelay
	keys      KeyCleaner
	stock     PoolStock
	generator Replenisher
	log       *logger.Logger
}

// NewWorker creates a worker.
func NewWorker(
	cfg WorkerConfig,
	relay OutboxRelay,
	keys KeyCleaner,
	stock PoolStock,
	generator Replenisher,
	log *logger.Logger,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PoolCheckInterval <= 0 {
		cfg.PoolCheckInterval = 30 * time.Second
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = time.Hour
	}
	return &Worker{
		cfg:       cfg,
		relay:     relay,
		keys:      keys,
		stock:     stock,
		generator: generator,
		log:       log.WithComponent("worker"),
	}
}

// RelayOutbox drains the outbox on every poll tick. A full batch is
// followed by another one right away.
func (w *Worker) RelayOutbox(ctx context.Context) error {
	return w.every(ctx, w.cfg.PollInterval, func(ctx context.Context) {
		for ctx.Err() == nil {
			n, err := w.relay.ProcessBatch(ctx)
			if err != nil {
				w.log.Errorw("outbox batch failed", "error", err)
				return
			}
			if n > 0 {
				w.log.Debugw("published outbox batch", "count", n)
			}
			if n == 0 || n < w.cfg.BatchSize {
				return
			}
		}
	})
}

// Maintain moves dead outbox messages aside and drops expired idempotency keys.
func (w *Worker) Maintain(ctx context.Context) error {
	return w.every(ctx, w.cfg.MaintenanceInterval, func(ctx context.Context) {
		if moved, err := w.relay.MoveToDLQ(ctx); err != nil {
			w.log.Errorw("outbox DLQ move failed", "error", err)
		} else if moved > 0 {
			w.log.Warnw("moved outbox messages to DLQ", "count", moved)
		}

		if removed, err := w.keys.CleanupExpired(ctx); err != nil {
			w.log.Errorw("idempotency cleanup failed", "error", err)
		} else if removed > 0 {
			w.log.Infow("cleaned up idempotency keys", "count", removed)
		}
	})
}

// StockPool generates numbers whenever the durable store falls below MinStock.
func (w *Worker) StockPool(ctx context.Context) error {
	return w.every(ctx, w.cfg.PoolCheckInterval, w.checkStock)
}

func (w *Worker) checkStock(ctx context.Context) {
	stored, err := w.stock.Count(ctx)
	if err != nil {
		w.log.Errorw("pool stock check failed", "error", err)
		return
	}
	if stored >= w.cfg.MinStock {
		return
	}

	inserted, err := w.generator.Replenish(ctx, w.cfg.GenerationCount)
	if errors.Is(err, cardpool.ErrLedgerBusy) {
		// Another process holding the ledger is fine; it is stocking too.
		w.log.Warnw("pool replenish skipped", "stored", stored, "error", err)
		return
	}
	if err != nil {
		w.log.Errorw("pool replenish failed", "stored", stored, "error", err)
		return
	}
	w.log.Infow("pool replenished", "stored", stored, "inserted", inserted)
}

// every runs fn once immediately and then on each tick until ctx is done.
func (w *Worker) every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

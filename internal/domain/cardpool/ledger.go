package cardpool

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cardvault/internal/core/tx"
	"cardvault/pkg/logger"
)

// Ledger serializes generation runs on the last used suffix.
//
// Each unit of work runs in its own transaction, never the caller's: the
// checkpoint commits or rolls back on its own. The storage lock makes the
// read-advance-append cycle exclusive across processes.
type Ledger struct {
	txm         tx.IsolatedManager
	checkpoints CheckpointRepository
	enc         Encryptor
	startSuffix uint64
	lockTimeout time.Duration
	metrics     *Metrics
	log         *logger.Logger
}

// NewLedger creates a ledger. startSuffix is used while no checkpoint exists.
func NewLedger(
	txm tx.IsolatedManager,
	checkpoints CheckpointRepository,
	enc Encryptor,
	startSuffix uint64,
	lockTimeout time.Duration,
	opts ...Option,
) *Ledger {
	o := newOptions(opts)
	return &Ledger{
		txm:         txm,
		checkpoints: checkpoints,
		enc:         enc,
		startSuffix: startSuffix,
		lockTimeout: lockTimeout,
		metrics:     o.metrics,
		log:         o.log.WithComponent("card-ledger"),
	}
}

// AdvanceFunc receives the last used suffix and returns the new one. It runs
// inside the ledger transaction, so writes it makes through ctx commit
// together with the checkpoint.
type AdvanceFunc func(ctx context.Context, lastSuffix uint64) (uint64, error)

// Advance runs fn under the ledger lock and appends the suffix it returns.
// The new suffix must be strictly greater than the last one.
func (l *Ledger) Advance(ctx context.Context, fn AdvanceFunc) error {
	err := l.txm.RunInNewTransaction(ctx, func(ctx context.Context) error {
		latest, err := l.lockLatest(ctx)
		if err != nil {
			return err
		}

		last := l.startSuffix
		if latest != nil {
			if last, err = l.decode(ctx, latest); err != nil {
				return err
			}
		}

		next, err := fn(ctx, last)
		if err != nil {
			return err
		}
		if next <= last {
			return fmt.Errorf("ledger: suffix must advance past %d, got %d", last, next)
		}

		encrypted, err := l.enc.Encrypt(strconv.FormatUint(next, 10))
		if err != nil {
			return fmt.Errorf("encrypt checkpoint: %w", err)
		}
		if err := l.checkpoints.Append(ctx, encrypted); err != nil {
			return fmt.Errorf("append checkpoint: %w", err)
		}

		l.log.WithContext(ctx).Debugw("checkpoint appended", "from", last, "to", next)
		return nil
	})

	l.metrics.ledgerWrites.WithLabelValues(resultLabel(err)).Inc()
	return err
}

// LastSuffix reads the current high-water mark under the ledger lock.
func (l *Ledger) LastSuffix(ctx context.Context) (uint64, error) {
	var last uint64
	err := l.txm.RunInNewTransaction(ctx, func(ctx context.Context) error {
		latest, err := l.lockLatest(ctx)
		if err != nil {
			return err
		}
		last = l.startSuffix
		if latest != nil {
			last, err = l.decode(ctx, latest)
		}
		return err
	})
	return last, err
}

func (l *Ledger) lockLatest(ctx context.Context) (*Checkpoint, error) {
	lockCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	latest, err := l.checkpoints.LockLatest(lockCtx)
	if err != nil {
		if errors.Is(err, ErrLedgerBusy) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: waited %s", ErrLedgerBusy, l.lockTimeout)
		}
		return nil, fmt.Errorf("lock ledger: %w", err)
	}
	return latest, nil
}

func (l *Ledger) decode(ctx context.Context, cp *Checkpoint) (uint64, error) {
	plain, err := l.enc.Decrypt(cp.EncryptedSuffix)
	if err == nil {
		var suffix uint64
		if suffix, err = strconv.ParseUint(plain, 10, 64); err == nil {
			return suffix, nil
		}
	}

	l.log.WithContext(ctx).Errorw("sequence checkpoint unreadable, generation halted",
		"checkpoint_id", cp.ID, "error", err)
	return 0, fmt.Errorf("%w: checkpoint %d: %v", ErrSequenceCorruption, cp.ID, err)
}

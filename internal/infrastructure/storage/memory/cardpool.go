package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"cardvault/internal/domain/cardpool"
)

var (
	_ cardpool.GeneratedCardRepository = (*GeneratedCards)(nil)
	_ cardpool.CheckpointRepository    = (*Checkpoints)(nil)
)

type generatedRow = cardpool.GeneratedCard

type checkpointRow = cardpool.Checkpoint

// GeneratedCards is the pre-generated number store.
type GeneratedCards struct {
	db *DB
}

// NewGeneratedCards creates the repository.
func NewGeneratedCards(db *DB) *GeneratedCards {
	return &GeneratedCards{db: db}
}

// Count returns the number of committed records.
func (r *GeneratedCards) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.db.generated), nil
}

// InsertBatch stores encrypted numbers.
func (r *GeneratedCards) InsertBatch(ctx context.Context, encrypted []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	batch := slices.Clone(encrypted)
	r.db.stage(ctx, func() {
		now := time.Now().UTC()
		for _, e := range batch {
			r.db.nextCardID++
			r.db.generated = append(r.db.generated, generatedRow{
				ID:              r.db.nextCardID,
				EncryptedNumber: e,
				CreatedAt:       now,
			})
		}
	})
	return len(batch), nil
}

// ClaimOldest removes and returns up to n records in insertion order.
func (r *GeneratedCards) ClaimOldest(ctx context.Context, n int) ([]cardpool.GeneratedCard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	r.db.mu.Lock()
	n = min(n, len(r.db.generated))
	claimed := slices.Clone(r.db.generated[:n])
	r.db.generated = slices.Delete(r.db.generated, 0, n)
	r.db.mu.Unlock()

	onRollback(ctx, func() {
		r.db.generated = append(claimed, r.db.generated...)
		slices.SortFunc(r.db.generated, func(a, b generatedRow) int { return cmp.Compare(a.ID, b.ID) })
	})
	return claimed, nil
}

// Checkpoints is the sequence ledger.
type Checkpoints struct {
	db *DB
}

// NewCheckpoints creates the repository.
func NewCheckpoints(db *DB) *Checkpoints {
	return &Checkpoints{db: db}
}

// LockLatest takes the ledger lock for the transaction in ctx, waiting until
// ctx is done.
func (r *Checkpoints) LockLatest(ctx context.Context) (*cardpool.Checkpoint, error) {
	t := txFrom(ctx)
	if t == nil {
		return nil, ErrNoTransaction
	}

	if !t.holdsLedger {
		select {
		case r.db.ledger <- struct{}{}:
			t.holdsLedger = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if len(r.db.checkpoints) == 0 {
		return nil, nil
	}
	latest := r.db.checkpoints[len(r.db.checkpoints)-1]
	return &latest, nil
}

// Append adds a checkpoint on commit.
func (r *Checkpoints) Append(ctx context.Context, encryptedSuffix string) error {
	if txFrom(ctx) == nil {
		return ErrNoTransaction
	}
	r.db.stage(ctx, func() {
		r.db.appendCheckpoint(encryptedSuffix)
	})
	return nil
}

// List returns all checkpoints, oldest first.
func (r *Checkpoints) List(ctx context.Context) ([]cardpool.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return slices.Clone(r.db.checkpoints), nil
}

// Seed appends a checkpoint directly, bypassing the ledger lock.
func (r *Checkpoints) Seed(encryptedSuffix string) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.appendCheckpoint(encryptedSuffix)
}

func (db *DB) appendCheckpoint(encryptedSuffix string) {
	db.nextCheckpointID++
	db.checkpoints = append(db.checkpoints, checkpointRow{
		ID:              db.nextCheckpointID,
		EncryptedSuffix: encryptedSuffix,
		CreatedAt:       time.Now().UTC(),
	})
}

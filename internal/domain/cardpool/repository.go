package cardpool

import "context"

// GeneratedCardRepository is the durable store of pre-generated numbers.
type GeneratedCardRepository interface {
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// InsertBatch stores encrypted numbers, joining the transaction in ctx if any.
	InsertBatch(ctx context.Context, encrypted []string) (int, error)

	// ClaimOldest atomically removes and returns up to n oldest records.
	// A claimed record is never returned to another caller.
	ClaimOldest(ctx context.Context, n int) ([]GeneratedCard, error)
}

// CheckpointRepository is the append-only sequence ledger.
type CheckpointRepository interface {
	// LockLatest takes the cross-process ledger lock for the transaction in
	// ctx and returns the latest checkpoint, or nil if the ledger is empty.
	// The lock is released when that transaction ends.
	LockLatest(ctx context.Context) (*Checkpoint, error)

	// Append adds a new checkpoint inside the transaction in ctx.
	Append(ctx context.Context, encryptedSuffix string) error
}

// Encryptor protects numbers and checkpoints at rest.
type Encryptor interface {
	Encrypt(plain string) (string, error)
	Decrypt(encoded string) (string, error)
}

// Package memory is an in-process twin of the postgres pool storage.
// It backs the card pool tests; production wiring always uses postgres.
package memory

import (
	"context"
	"errors"
	"sync"

	"cardvault/internal/core/tx"
)

var (
	_ tx.IsolatedManager = (*DB)(nil)

	// ErrNoTransaction is returned by operations that require a transaction.
	ErrNoTransaction = errors.New("memory: operation requires a transaction")
)

// DB holds committed state. Writes made inside a transaction are staged and
// applied on commit; claims apply immediately and are undone on rollback.
type DB struct {
	mu sync.Mutex

	nextCardID       int64
	nextCheckpointID int64
	generated        []generatedRow
	checkpoints      []checkpointRow

	// ledger is the cross-"process" ledger lock; a token in the channel
	// means it is held.
	ledger chan struct{}
}

// NewDB creates an empty store.
func NewDB() *DB {
	return &DB{ledger: make(chan struct{}, 1)}
}

type txKey struct{}

type memTx struct {
	commits     []func()
	rollbacks   []func()
	holdsLedger bool
}

func txFrom(ctx context.Context) *memTx {
	t, _ := ctx.Value(txKey{}).(*memTx)
	return t
}

// RunInTransaction joins the transaction in ctx or starts one.
func (db *DB) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	return db.RunInNewTransaction(ctx, fn)
}

// RunInNewTransaction always starts a fresh transaction.
func (db *DB) RunInNewTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t := &memTx{}
	err := fn(context.WithValue(ctx, txKey{}, t))

	db.mu.Lock()
	if err != nil {
		for i := len(t.rollbacks) - 1; i >= 0; i-- {
			t.rollbacks[i]()
		}
	} else {
		for _, apply := range t.commits {
			apply()
		}
	}
	db.mu.Unlock()

	if t.holdsLedger {
		<-db.ledger
	}
	return err
}

// stage runs apply now, or on commit if ctx carries a transaction.
func (db *DB) stage(ctx context.Context, apply func()) {
	if t := txFrom(ctx); t != nil {
		t.commits = append(t.commits, apply)
		return
	}
	db.mu.Lock()
	apply()
	db.mu.Unlock()
}

// onRollback registers undo for a change already applied. Outside a
// transaction the change is final.
func onRollback(ctx context.Context, undo func()) {
	if t := txFrom(ctx); t != nil {
		t.rollbacks = append(t.rollbacks, undo)
	}
}

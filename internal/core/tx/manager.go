// Package tx provides transaction management abstractions.
// Domain code depends on these interfaces, storage packages implement them.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IsolatedManager can start a unit of work that never joins the caller's
// transaction. Its commit is independent of whatever the caller does next.
type IsolatedManager interface {
	Manager

	// RunInNewTransaction always begins a fresh transaction, even if ctx
	// already carries one.
	RunInNewTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

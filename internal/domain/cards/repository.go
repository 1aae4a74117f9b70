package cards

import (
	"context"
	"time"

	"cardvault/internal/core/id"
	"cardvault/internal/core/numerator"
	"cardvault/internal/domain/auth"
)

// Repository defines card storage operations.
type Repository interface {
	// Create inserts a new card.
	Create(ctx context.Context, card *Card) error

	// GetByID retrieves a card; NotFound if missing.
	GetByID(ctx context.Context, cardID id.ID) (*Card, error)

	// Update saves status and balance if the stored version still equals
	// card.Version, then bumps card.Version. A stale version yields a
	// concurrent-modification error.
	Update(ctx context.Context, card *Card) error

	// Delete removes a card.
	Delete(ctx context.Context, cardID id.ID) error

	// List returns a filtered page and the total count.
	List(ctx context.Context, filter ListFilter) ([]Card, int, error)

	// ListByHolder returns all cards of a holder, oldest first.
	ListByHolder(ctx context.Context, holderID id.ID) ([]Card, error)

	// ListOverdue returns up to limit active or blocked cards expiring
	// before the given day.
	ListOverdue(ctx context.Context, before time.Time, limit int) ([]Card, error)

	// RecordTransactions stores transfer ledger entries.
	RecordTransactions(ctx context.Context, txs []Transaction) error
}

// UserDirectory resolves card holders.
type UserDirectory interface {
	GetByID(ctx context.Context, userID id.ID) (*auth.User, error)
}

// NumberSource hands out fresh card numbers.
type NumberSource interface {
	Take(ctx context.Context) (numerator.CardNumber, error)
}

// Encryptor protects card numbers at rest.
type Encryptor interface {
	Encrypt(plain string) (string, error)
	Decrypt(encoded string) (string, error)
}

// EventPublisher records lifecycle events in the current transaction.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

package card_repo

import (
	"context"

	"cardvault/internal/domain/cards"
	"cardvault/internal/infrastructure/storage/postgres"
)

var _ cards.EventPublisher = (*EventOutbox)(nil)

// EventOutbox records card events in the transactional outbox.
type EventOutbox struct {
	outbox *postgres.OutboxPublisher
}

// NewEventOutbox creates a card event publisher.
func NewEventOutbox(outbox *postgres.OutboxPublisher) *EventOutbox {
	return &EventOutbox{outbox: outbox}
}

// Publish writes the event within the transaction in ctx.
func (p *EventOutbox) Publish(ctx context.Context, event cards.Event) error {
	return p.outbox.Publish(ctx, postgres.DomainEvent{
		AggregateType: cards.AggregateCard,
		AggregateID:   event.CardID,
		EventType:     event.Type,
		Payload:       event.Payload,
	})
}

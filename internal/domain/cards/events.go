package cards

import (
	"time"

	"cardvault/internal/core/id"
)

// Aggregate type of card events.
const AggregateCard = "card"

// Event types.
const (
	EventCardIssued        = "card.issued"
	EventCardBlocked       = "card.blocked"
	EventCardActivated     = "card.activated"
	EventCardDeleted       = "card.deleted"
	EventCardExpired       = "card.expired"
	EventTransferCompleted = "card.transfer_completed"
)

// Event is a card lifecycle event.
type Event struct {
	Type    string
	CardID  id.ID
	Payload any
}

// CardPayload is the body of lifecycle events. Numbers are always masked.
type CardPayload struct {
	CardID       id.ID     `json:"cardId"`
	HolderID     id.ID     `json:"holderId"`
	MaskedNumber string    `json:"maskedNumber,omitempty"`
	Status       Status    `json:"status"`
	ActorID      string    `json:"actorId,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// TransferPayload is the body of transfer events.
type TransferPayload struct {
	TransferID id.ID     `json:"transferId"`
	HolderID   id.ID     `json:"holderId"`
	FromCardID id.ID     `json:"fromCardId"`
	ToCardID   id.ID     `json:"toCardId"`
	Amount     string    `json:"amount"`
	OccurredAt time.Time `json:"occurredAt"`
}

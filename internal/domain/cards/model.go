// Package cards implements card issuance, the card lifecycle and transfers
// between a holder's own cards.
package cards

import (
	"time"

	"cardvault/internal/core/apperror"
	"cardvault/internal/core/id"
	"cardvault/internal/core/types"
)

// Status is the card lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
	StatusExpired Status = "expired"
)

// Card is an issued card. The number is stored encrypted only.
type Card struct {
	ID              id.ID       `db:"id"`
	EncryptedNumber string      `db:"encrypted_number"`
	HolderID        id.ID       `db:"holder_id"`
	HolderName      string      `db:"holder_name"`
	Status          Status      `db:"status"`
	Balance         types.Money `db:"balance"`
	ExpiryDate      time.Time   `db:"expiry_date"`
	Version         int         `db:"version"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

// Block moves an active card to blocked.
func (c *Card) Block() error {
	switch c.Status {
	case StatusBlocked:
		return apperror.NewCardStateConflict(c.ID, string(c.Status)).
			WithDetail("reason", "card is already blocked")
	case StatusExpired:
		return apperror.NewCardStateConflict(c.ID, string(c.Status)).
			WithDetail("reason", "card has expired")
	}
	c.Status = StatusBlocked
	return nil
}

// Activate moves a blocked card back to active. Expired cards stay expired.
func (c *Card) Activate() error {
	switch c.Status {
	case StatusActive:
		return apperror.NewCardStateConflict(c.ID, string(c.Status)).
			WithDetail("reason", "card is already active")
	case StatusExpired:
		return apperror.NewCardStateConflict(c.ID, string(c.Status)).
			WithDetail("reason", "card has expired")
	}
	c.Status = StatusActive
	return nil
}

// Expire marks the card expired.
func (c *Card) Expire() {
	c.Status = StatusExpired
}

// IsOverdue reports whether the expiry date lies before today.
func (c *Card) IsOverdue(today time.Time) bool {
	return c.ExpiryDate.Before(truncateDay(today))
}

// Debit withdraws amount, refusing to go negative.
func (c *Card) Debit(amount types.Money) error {
	if c.Balance.LessThan(amount) {
		return apperror.NewInsufficientFunds(c.ID, amount.StringFixed(types.MoneyScale), c.Balance.StringFixed(types.MoneyScale))
	}
	c.Balance = c.Balance.Sub(amount)
	return nil
}

// Credit deposits amount.
func (c *Card) Credit(amount types.Money) {
	c.Balance = c.Balance.Add(amount)
}

// ExpiryFrom returns the last day of the month validityYears after issued.
func ExpiryFrom(issued time.Time, validityYears int) time.Time {
	y, m, _ := issued.Date()
	firstOfNextMonth := time.Date(y+validityYears, m+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNextMonth.AddDate(0, 0, -1)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// View is a card as shown to callers: number masked, never encrypted.
type View struct {
	ID           id.ID       `json:"id"`
	MaskedNumber string      `json:"maskedNumber"`
	HolderID     id.ID       `json:"holderId"`
	HolderName   string      `json:"holderName"`
	Status       Status      `json:"status"`
	Balance      types.Money `json:"balance"`
	ExpiryDate   string      `json:"expiryDate"`
}

// Balance is a holder's balance view.
type Balance struct {
	CardID       id.ID       `json:"cardId"`
	MaskedNumber string      `json:"maskedNumber"`
	Balance      types.Money `json:"balance"`
}

// FullNumber is the decrypted number, shown to its holder only.
type FullNumber struct {
	CardID id.ID  `json:"cardId"`
	Number string `json:"number"`
}

// Direction of a balance movement.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Transaction records one side of a transfer.
type Transaction struct {
	ID           id.ID       `db:"id"`
	TransferID   id.ID       `db:"transfer_id"`
	CardID       id.ID       `db:"card_id"`
	Direction    Direction   `db:"direction"`
	Amount       types.Money `db:"amount"`
	BalanceAfter types.Money `db:"balance_after"`
	CreatedAt    time.Time   `db:"created_at"`
}

// TransferRequest moves money between two cards of the same holder.
type TransferRequest struct {
	FromCardID id.ID
	ToCardID   id.ID
	Amount     types.Money
}

// TransferResult is returned after a successful transfer.
type TransferResult struct {
	TransferID  id.ID       `json:"transferId"`
	FromCardID  id.ID       `json:"fromCardId"`
	ToCardID    id.ID       `json:"toCardId"`
	Amount      types.Money `json:"amount"`
	FromBalance types.Money `json:"fromBalance"`
	Attempts    int         `json:"-"`
}

// Page selects a window of a list.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ListFilter narrows card listings.
type ListFilter struct {
	HolderID *id.ID
	Status   *Status
	Page     Page
}

// List is a page of views plus the total count.
type List struct {
	Items  []View `json:"items"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

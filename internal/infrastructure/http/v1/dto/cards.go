package dto

import (
	"cardvault/internal/core/apperror"
	"cardvault/internal/core/id"
	"cardvault/internal/core/types"
	"cardvault/internal/domain/cardpool"
	"cardvault/internal/domain/cards"
)

// IssueCardRequest asks for a new card for a user.
type IssueCardRequest struct {
	HolderID string `json:"holderId" binding:"required,uuid"`
}

// AdminCardsQuery filters the administrator card list.
type AdminCardsQuery struct {
	PageQuery
	HolderID string `form:"holderId" binding:"omitempty,uuid"`
	Status   string `form:"status" binding:"omitempty,oneof=active blocked expired"`
}

// ToFilter converts to the domain filter.
func (q *AdminCardsQuery) ToFilter() (cards.ListFilter, error) {
	filter := cards.ListFilter{Page: cards.Page{Limit: q.Limit, Offset: q.Offset}}
	if q.HolderID != "" {
		holderID, err := id.Parse(q.HolderID)
		if err != nil {
			return filter, apperror.NewValidation("invalid holderId")
		}
		filter.HolderID = &holderID
	}
	if q.Status != "" {
		status := cards.Status(q.Status)
		filter.Status = &status
	}
	return filter, nil
}

// MyCardsQuery pages and searches the caller's cards.
type MyCardsQuery struct {
	PageQuery
	Search string `form:"search" binding:"omitempty,max=32"`
}

// TransferRequest moves money between two of the caller's cards.
type TransferRequest struct {
	FromCardID string `json:"fromCardId" binding:"required,uuid"`
	ToCardID   string `json:"toCardId" binding:"required,uuid"`
	Amount     string `json:"amount" binding:"required"`
}

// ToDomain validates and converts the request.
func (r *TransferRequest) ToDomain() (cards.TransferRequest, error) {
	from, err := id.Parse(r.FromCardID)
	if err != nil {
		return cards.TransferRequest{}, apperror.NewValidation("invalid fromCardId")
	}
	to, err := id.Parse(r.ToCardID)
	if err != nil {
		return cards.TransferRequest{}, apperror.NewValidation("invalid toCardId")
	}
	amount, err := types.NewMoneyFromString(r.Amount)
	if err != nil {
		return cards.TransferRequest{}, apperror.NewValidation("invalid amount").WithDetail("amount", r.Amount)
	}
	return cards.TransferRequest{FromCardID: from, ToCardID: to, Amount: amount}, nil
}

// CardResponse is a card with its number masked.
type CardResponse struct {
	ID           string `json:"id"`
	MaskedNumber string `json:"maskedNumber"`
	HolderID     string `json:"holderId"`
	HolderName   string `json:"holderName"`
	Status       string `json:"status"`
	Balance      string `json:"balance"`
	ExpiryDate   string `json:"expiryDate"`
}

// FromCardView creates a response from a card view.
func FromCardView(v *cards.View) CardResponse {
	return CardResponse{
		ID:           v.ID.String(),
		MaskedNumber: v.MaskedNumber,
		HolderID:     v.HolderID.String(),
		HolderName:   v.HolderName,
		Status:       string(v.Status),
		Balance:      v.Balance.StringFixed(types.MoneyScale),
		ExpiryDate:   v.ExpiryDate,
	}
}

// CardListResponse is a page of cards.
type CardListResponse struct {
	Items      []CardResponse `json:"items"`
	TotalCount int            `json:"totalCount"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

// FromCardList creates a list response.
func FromCardList(l *cards.List) CardListResponse {
	items := make([]CardResponse, len(l.Items))
	for i := range l.Items {
		items[i] = FromCardView(&l.Items[i])
	}
	return CardListResponse{Items: items, TotalCount: l.Total, Limit: l.Limit, Offset: l.Offset}
}

// BalanceResponse is the balance of one card.
type BalanceResponse struct {
	CardID       string `json:"cardId"`
	MaskedNumber string `json:"maskedNumber"`
	Balance      string `json:"balance"`
}

// FromBalance creates a balance response.
func FromBalance(b *cards.Balance) BalanceResponse {
	return BalanceResponse{
		CardID:       b.CardID.String(),
		MaskedNumber: b.MaskedNumber,
		Balance:      b.Balance.StringFixed(types.MoneyScale),
	}
}

// CardNumberResponse carries the full card number.
type CardNumberResponse struct {
	CardID string `json:"cardId"`
	Number string `json:"number"`
}

// TransferResponse describes a completed transfer.
type TransferResponse struct {
	TransferID  string `json:"transferId"`
	FromCardID  string `json:"fromCardId"`
	ToCardID    string `json:"toCardId"`
	Amount      string `json:"amount"`
	FromBalance string `json:"fromBalance"`
}

// FromTransfer creates a transfer response.
func FromTransfer(r *cards.TransferResult) TransferResponse {
	return TransferResponse{
		TransferID:  r.TransferID.String(),
		FromCardID:  r.FromCardID.String(),
		ToCardID:    r.ToCardID.String(),
		Amount:      r.Amount.StringFixed(types.MoneyScale),
		FromBalance: r.FromBalance.StringFixed(types.MoneyScale),
	}
}

// PoolStatsResponse reports number pool occupancy.
type PoolStatsResponse struct {
	Buffered     int  `json:"buffered"`
	Capacity     int  `json:"capacity"`
	LowWaterMark int  `json:"lowWaterMark"`
	Refilling    bool `json:"refilling"`
	Stored       int  `json:"stored"`
}

// FromPoolStats creates a pool stats response.
func FromPoolStats(s cardpool.Stats, stored int) PoolStatsResponse {
	return PoolStatsResponse{
		Buffered:     s.Buffered,
		Capacity:     s.Capacity,
		LowWaterMark: s.LowWaterMark,
		Refilling:    s.Refilling,
		Stored:       stored,
	}
}

// PoolFillResponse reports the outcome of a manual top-up.
type PoolFillResponse struct {
	Ran   bool              `json:"ran"`
	Stats PoolStatsResponse `json:"stats"`
}

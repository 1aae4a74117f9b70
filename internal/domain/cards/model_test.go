package cards

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cardvault/internal/core/id"
	"cardvault/internal/core/types"
)

func TestExpiryFrom(t *testing.T) {
	tests := []struct {
		issued time.Time
		years  int
		want   string
	}{
		{issued: time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC), years: 3, want: "2029-10-31"},
		{issued: time.Date(2025, time.February, 10, 0, 0, 0, 0, time.UTC), years: 3, want: "2028-02-29"},
		{issued: time.Date(2026, time.December, 31, 23, 0, 0, 0, time.UTC), years: 1, want: "2027-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpiryFrom(tt.issued, tt.years).Format(time.DateOnly))
		})
	}
}

func TestCard_StateTransitions(t *testing.T) {
	card := &Card{ID: id.New(), Status: StatusActive}

	assert.Error(t, card.Activate())
	assert.NoError(t, card.Block())
	assert.Equal(t, StatusBlocked, card.Status)
	assert.Error(t, card.Block())
	assert.NoError(t, card.Activate())

	card.Expire()
	assert.Error(t, card.Block())
	assert.Error(t, card.Activate())
}

func TestCard_DebitCredit(t *testing.T) {
	card := &Card{ID: id.New(), Balance: types.MustMoney("10.50")}

	assert.NoError(t, card.Debit(types.MustMoney("10.50")))
	assert.True(t, card.Balance.IsZero())
	assert.Error(t, card.Debit(types.MustMoney("0.01")))

	card.Credit(types.MustMoney("3"))
	assert.Equal(t, "3.00", card.Balance.StringFixed(2))
}

func TestCard_IsOverdue(t *testing.T) {
	card := &Card{ExpiryDate: time.Date(2026, time.September, 30, 0, 0, 0, 0, time.UTC)}

	assert.False(t, card.IsOverdue(time.Date(2026, time.September, 30, 18, 0, 0, 0, time.UTC)))
	assert.True(t, card.IsOverdue(time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)))
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, Page{Limit: 20}, Page{}.Normalize())
	assert.Equal(t, Page{Limit: 100, Offset: 0}, Page{Limit: 500, Offset: -1}.Normalize())
}

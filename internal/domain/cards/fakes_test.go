package cards

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cardvault/internal/core/apperror"
	appctx "cardvault/internal/core/context"
	"cardvault/internal/core/id"
	"cardvault/internal/core/numerator"
	"cardvault/internal/core/security"
	"cardvault/internal/core/types"
	"cardvault/internal/domain/auth"
)

type mockCardRepo struct {
	mu           sync.Mutex
	cards        map[id.ID]Card
	transactions []Transaction
	// updateConflicts makes the next n Update calls fail as stale.
	updateConflicts int
	updates         int
}

func newMockCardRepo() *mockCardRepo {
	return &mockCardRepo{cards: make(map[id.ID]Card)}
}

func (m *mockCardRepo) Create(_ context.Context, card *Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[card.ID] = *card
	return nil
}

func (m *mockCardRepo) GetByID(_ context.Context, cardID id.ID) (*Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[cardID]
	if !ok {
		return nil, apperror.NewNotFound("card", cardID)
	}
	return &c, nil
}

func (m *mockCardRepo) Update(_ context.Context, card *Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++

	stored, ok := m.cards[card.ID]
	if !ok {
		return apperror.NewNotFound("card", card.ID)
	}
	if m.updateConflicts > 0 {
		m.updateConflicts--
		return apperror.NewConcurrentModification("card", card.ID)
	}
	if stored.Version != card.Version {
		return apperror.NewConcurrentModification("card", card.ID)
	}
	card.Version++
	m.cards[card.ID] = *card
	return nil
}

func (m *mockCardRepo) Delete(_ context.Context, cardID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cards, cardID)
	return nil
}

func (m *mockCardRepo) sorted(keep func(Card) bool) []Card {
	var out []Card
	for _, c := range m.cards {
		if keep(c) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b Card) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	return out
}

func (m *mockCardRepo) List(_ context.Context, filter ListFilter) ([]Card, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(c Card) bool {
		return (filter.HolderID == nil || c.HolderID == *filter.HolderID) &&
			(filter.Status == nil || c.Status == *filter.Status)
	})
	start := min(filter.Page.Offset, len(all))
	end := min(start+filter.Page.Limit, len(all))
	return all[start:end], len(all), nil
}

func (m *mockCardRepo) ListByHolder(_ context.Context, holderID id.ID) ([]Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(c Card) bool { return c.HolderID == holderID }), nil
}

func (m *mockCardRepo) ListOverdue(_ context.Context, before time.Time, limit int) ([]Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(func(c Card) bool {
		return c.Status != StatusExpired && c.ExpiryDate.Before(before)
	})
	return out[:min(limit, len(out))], nil
}

func (m *mockCardRepo) RecordTransactions(_ context.Context, txs []Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, txs...)
	return nil
}

type mockUsers map[id.ID]*auth.User

func (m mockUsers) GetByID(_ context.Context, userID id.ID) (*auth.User, error) {
	if u, ok := m[userID]; ok {
		return u, nil
	}
	return nil, apperror.NewNotFound("user", userID)
}

type mockNumbers struct {
	numbers []numerator.CardNumber
	err     error
}

func (m *mockNumbers) Take(context.Context) (numerator.CardNumber, error) {
	if m.err != nil {
		return "", m.err
	}
	if len(m.numbers) == 0 {
		return "", errors.New("no numbers")
	}
	n := m.numbers[0]
	m.numbers = m.numbers[1:]
	return n, nil
}

type mockEvents struct {
	mu     sync.Mutex
	events []Event
}

func (m *mockEvents) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockEvents) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

type mockTxManager struct{}

func (mockTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	svc     *Service
	repo    *mockCardRepo
	users   mockUsers
	numbers *mockNumbers
	events  *mockEvents
	enc     *security.Encryptor
	holder  *auth.User
}

var fixedNow = time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	enc, err := security.NewEncryptor(
		[]byte("0123456789abcdef0123456789abcdef"),
		[]byte("fedcba9876543210"),
	)
	require.NoError(t, err)

	holder := auth.NewUser("holder@example.com", "Card Holder", "hash")
	f := &fixture{
		repo:    newMockCardRepo(),
		users:   mockUsers{holder.ID: holder},
		numbers: &mockNumbers{},
		events:  &mockEvents{},
		enc:     enc,
		holder:  holder,
	}

	cfg := DefaultConfig()
	cfg.TransferBackoff = time.Millisecond
	f.svc = NewService(f.repo, f.users, f.numbers, enc, f.events, mockTxManager{}, cfg)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

// addCard stores a card for holder directly.
func (f *fixture) addCard(t *testing.T, holderID id.ID, number string, status Status, balance string) *Card {
	t.Helper()
	encrypted, err := f.enc.Encrypt(number)
	require.NoError(t, err)

	card := &Card{
		ID:              id.New(),
		EncryptedNumber: encrypted,
		HolderID:        holderID,
		HolderName:      "Card Holder",
		Status:          status,
		Balance:         types.MustMoney(balance),
		ExpiryDate:      ExpiryFrom(fixedNow, 3),
		Version:         1,
	}
	require.NoError(t, f.repo.Create(context.Background(), card))
	return card
}

func (f *fixture) asHolder(userID id.ID) context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID: userID.String(),
		Roles:  []string{appctx.RoleUser},
	})
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	return appErr.Code
}

package cards

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"cardvault/internal/core/apperror"
	appctx "cardvault/internal/core/context"
	"cardvault/internal/core/id"
	"cardvault/internal/core/numerator"
	"cardvault/internal/core/tx"
	"cardvault/internal/core/types"
	"cardvault/pkg/logger"
)

// Config holds card service configuration.
type Config struct {
	ValidityYears       int
	TransferMaxAttempts int
	TransferBackoff     time.Duration
	MinTransferAmount   types.Money
	ExpiryBatchSize     int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		ValidityYears:       3,
		TransferMaxAttempts: 3,
		TransferBackoff:     100 * time.Millisecond,
		MinTransferAmount:   types.MustMoney("1"),
		ExpiryBatchSize:     500,
	}
}

// Service implements card operations for administrators and holders.
type Service struct {
	repo      Repository
	users     UserDirectory
	numbers   NumberSource
	enc       Encryptor
	events    EventPublisher
	txManager tx.Manager
	config    Config
	now       func() time.Time
}

// NewService creates a new card service.
func NewService(
	repo Repository,
	users UserDirectory,
	numbers NumberSource,
	enc Encryptor,
	events EventPublisher,
	txManager tx.Manager,
	config Config,
) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		numbers:   numbers,
		enc:       enc,
		events:    events,
		txManager: txManager,
		config:    config,
		now:       time.Now,
	}
}

// Issue creates an active card with a zero balance for a user.
func (s *Service) Issue(ctx context.Context, holderID id.ID) (*View, error) {
	holder, err := s.users.GetByID(ctx, holderID)
	if err != nil {
		return nil, err
	}

	number, err := s.numbers.Take(ctx)
	if err != nil {
		logger.Error(ctx, "card number unavailable", "holder_id", holderID, "error", err)
		return nil, apperror.NewCardGenerationFailed(err)
	}

	encrypted, err := s.enc.Encrypt(number.String())
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("encrypt card number: %w", err))
	}

	now := s.now().UTC()
	card := &Card{
		ID:              id.New(),
		EncryptedNumber: encrypted,
		HolderID:        holder.ID,
		HolderName:      holder.FullName,
		Status:          StatusActive,
		Balance:         types.Zero(),
		ExpiryDate:      ExpiryFrom(now, s.config.ValidityYears),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, card); err != nil {
			return fmt.Errorf("create card: %w", err)
		}
		return s.publishCard(ctx, EventCardIssued, card, number.Masked())
	})
	if err != nil {
		// The number was claimed from the pool and is not reused.
		logger.Error(ctx, "card issuance failed, number discarded",
			"holder_id", holderID, "masked_number", number.Masked(), "error", err)
		return nil, err
	}

	logger.Info(ctx, "card issued", "card_id", card.ID, "holder_id", holder.ID)
	return &View{
		ID:           card.ID,
		MaskedNumber: number.Masked(),
		HolderID:     card.HolderID,
		HolderName:   card.HolderName,
		Status:       card.Status,
		Balance:      card.Balance,
		ExpiryDate:   card.ExpiryDate.Format(time.DateOnly),
	}, nil
}

// Block blocks a card (administrator).
func (s *Service) Block(ctx context.Context, cardID id.ID) (*View, error) {
	return s.mutate(ctx, cardID, EventCardBlocked, (*Card).Block)
}

// Activate re-activates a blocked card (administrator).
func (s *Service) Activate(ctx context.Context, cardID id.ID) (*View, error) {
	return s.mutate(ctx, cardID, EventCardActivated, (*Card).Activate)
}

// Delete removes a card (administrator).
func (s *Service) Delete(ctx context.Context, cardID id.ID) error {
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		card, err := s.repo.GetByID(ctx, cardID)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, cardID); err != nil {
			return fmt.Errorf("delete card: %w", err)
		}
		return s.publishCard(ctx, EventCardDeleted, card, "")
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "card deleted", "card_id", cardID)
	return nil
}

// ListAll lists every card with masked numbers (administrator).
func (s *Service) ListAll(ctx context.Context, filter ListFilter) (*List, error) {
	filter.Page = filter.Page.Normalize()

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return s.list(ctx, items, total, filter.Page)
}

// ListMine lists the caller's cards. A search keeps cards whose number
// contains the digits of search; other characters are ignored.
func (s *Service) ListMine(ctx context.Context, page Page, search string) (*List, error) {
	holderID, err := currentHolder(ctx)
	if err != nil {
		return nil, err
	}
	page = page.Normalize()

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, search)

	if digits == "" {
		items, total, err := s.repo.List(ctx, ListFilter{HolderID: &holderID, Page: page})
		if err != nil {
			return nil, fmt.Errorf("list cards: %w", err)
		}
		return s.list(ctx, items, total, page)
	}

	// Numbers are encrypted at rest, so matching happens after decryption.
	all, err := s.repo.ListByHolder(ctx, holderID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	var matched []Card
	for _, card := range all {
		plain, err := s.enc.Decrypt(card.EncryptedNumber)
		if err != nil {
			return nil, s.decryptFailure(ctx, card.ID, err)
		}
		if strings.Contains(plain, digits) {
			matched = append(matched, card)
		}
	}

	start := min(page.Offset, len(matched))
	end := min(start+page.Limit, len(matched))
	return s.list(ctx, matched[start:end], len(matched), page)
}

// Balance returns the balance of one of the caller's cards.
func (s *Service) Balance(ctx context.Context, cardID id.ID) (*Balance, error) {
	card, err := s.ownedCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	masked, err := s.maskedNumber(ctx, card)
	if err != nil {
		return nil, err
	}
	return &Balance{CardID: card.ID, MaskedNumber: masked, Balance: card.Balance}, nil
}

// FullNumber reveals the number of one of the caller's cards.
func (s *Service) FullNumber(ctx context.Context, cardID id.ID) (*FullNumber, error) {
	card, err := s.ownedCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	plain, err := s.enc.Decrypt(card.EncryptedNumber)
	if err != nil {
		return nil, s.decryptFailure(ctx, card.ID, err)
	}

	logger.Info(ctx, "full card number revealed", "card_id", card.ID)
	return &FullNumber{CardID: card.ID, Number: plain}, nil
}

// RequestBlock lets a holder block their own card.
func (s *Service) RequestBlock(ctx context.Context, cardID id.ID) (*View, error) {
	holderID, err := currentHolder(ctx)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, cardID, EventCardBlocked, func(card *Card) error {
		if card.HolderID != holderID {
			return apperror.NewForbidden("card belongs to another user").WithDetail("cardId", cardID)
		}
		return card.Block()
	})
}

// Transfer moves money between two active cards of the caller. A transfer
// that lost an optimistic-lock race is retried with exponential backoff.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	holderID, err := currentHolder(ctx)
	if err != nil {
		return nil, err
	}
	if req.FromCardID == req.ToCardID {
		return nil, apperror.NewUnsafeOperation("choose a different card to receive the funds")
	}
	if req.Amount.LessThan(s.config.MinTransferAmount) {
		return nil, apperror.NewUnsafeOperation(
			fmt.Sprintf("amount must be at least %s", s.config.MinTransferAmount.String()))
	}

	maxAttempts := max(s.config.TransferMaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		result, err := s.transferOnce(ctx, holderID, req)
		if err == nil {
			result.Attempts = attempt
			logger.Info(ctx, "transfer completed",
				"transfer_id", result.TransferID,
				"from_card_id", req.FromCardID,
				"to_card_id", req.ToCardID,
				"amount", req.Amount.String(),
				"attempts", attempt)
			return result, nil
		}
		if !apperror.IsConcurrentModification(err) || attempt >= maxAttempts {
			return nil, err
		}

		delay := s.config.TransferBackoff << (attempt - 1)
		logger.Warn(ctx, "transfer lost a concurrent update, retrying",
			"attempt", attempt, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Service) transferOnce(ctx context.Context, holderID id.ID, req TransferRequest) (*TransferResult, error) {
	var result *TransferResult

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		from, err := s.repo.GetByID(ctx, req.FromCardID)
		if err != nil {
			return err
		}
		to, err := s.repo.GetByID(ctx, req.ToCardID)
		if err != nil {
			return err
		}

		if from.HolderID != holderID || to.HolderID != holderID {
			return apperror.NewUnsafeOperation("funds can only be moved between your own cards")
		}
		if from.Status != StatusActive || to.Status != StatusActive {
			return apperror.NewUnsafeOperation("both cards must be active")
		}
		if err := from.Debit(req.Amount); err != nil {
			return err
		}
		to.Credit(req.Amount)

		// Fixed update order keeps opposite transfers from deadlocking.
		pair := []*Card{from, to}
		slices.SortFunc(pair, func(a, b *Card) int { return bytes.Compare(a.ID[:], b.ID[:]) })
		for _, c := range pair {
			c.UpdatedAt = s.now().UTC()
			if err := s.repo.Update(ctx, c); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		transferID := id.New()
		err = s.repo.RecordTransactions(ctx, []Transaction{
			{ID: id.New(), TransferID: transferID, CardID: from.ID, Direction: DirectionDebit,
				Amount: req.Amount, BalanceAfter: from.Balance, CreatedAt: now},
			{ID: id.New(), TransferID: transferID, CardID: to.ID, Direction: DirectionCredit,
				Amount: req.Amount, BalanceAfter: to.Balance, CreatedAt: now},
		})
		if err != nil {
			return fmt.Errorf("record transfer: %w", err)
		}

		result = &TransferResult{
			TransferID:  transferID,
			FromCardID:  from.ID,
			ToCardID:    to.ID,
			Amount:      req.Amount,
			FromBalance: from.Balance,
		}
		return s.events.Publish(ctx, Event{
			Type:   EventTransferCompleted,
			CardID: from.ID,
			Payload: TransferPayload{
				TransferID: transferID,
				HolderID:   holderID,
				FromCardID: from.ID,
				ToCardID:   to.ID,
				Amount:     req.Amount.StringFixed(types.MoneyScale),
				OccurredAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExpireOverdue expires active and blocked cards whose expiry date is
// before today. Batches commit separately; returns the number expired.
func (s *Service) ExpireOverdue(ctx context.Context, today time.Time) (int, error) {
	batchSize := max(s.config.ExpiryBatchSize, 1)
	expired := 0

	for {
		overdue, err := s.repo.ListOverdue(ctx, truncateDay(today), batchSize)
		if err != nil {
			return expired, fmt.Errorf("list overdue cards: %w", err)
		}
		if len(overdue) == 0 {
			break
		}

		err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			for i := range overdue {
				card := &overdue[i]
				card.Expire()
				card.UpdatedAt = s.now().UTC()
				if err := s.repo.Update(ctx, card); err != nil {
					return err
				}
				if err := s.publishCard(ctx, EventCardExpired, card, ""); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return expired, fmt.Errorf("expire cards: %w", err)
		}

		expired += len(overdue)
		if len(overdue) < batchSize {
			break
		}
	}

	logger.Info(ctx, "overdue cards expired", "count", expired, "today", today.Format(time.DateOnly))
	return expired, nil
}

func (s *Service) mutate(ctx context.Context, cardID id.ID, eventType string, fn func(*Card) error) (*View, error) {
	var card *Card

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByID(ctx, cardID)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		c.UpdatedAt = s.now().UTC()
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		card = c
		return s.publishCard(ctx, eventType, c, "")
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "card status changed", "card_id", card.ID, "status", card.Status, "event", eventType)
	v, err := s.view(ctx, card)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Service) ownedCard(ctx context.Context, cardID id.ID) (*Card, error) {
	holderID, err := currentHolder(ctx)
	if err != nil {
		return nil, err
	}

	card, err := s.repo.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.HolderID != holderID {
		return nil, apperror.NewForbidden("card belongs to another user").WithDetail("cardId", cardID)
	}
	return card, nil
}

func (s *Service) publishCard(ctx context.Context, eventType string, card *Card, masked string) error {
	if masked == "" {
		var err error
		if masked, err = s.maskedNumber(ctx, card); err != nil {
			return err
		}
	}

	return s.events.Publish(ctx, Event{
		Type:   eventType,
		CardID: card.ID,
		Payload: CardPayload{
			CardID:       card.ID,
			HolderID:     card.HolderID,
			MaskedNumber: masked,
			Status:       card.Status,
			ActorID:      appctx.GetUserID(ctx),
			OccurredAt:   s.now().UTC(),
		},
	})
}

func (s *Service) list(ctx context.Context, items []Card, total int, page Page) (*List, error) {
	out := &List{
		Items:  make([]View, 0, len(items)),
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for i := range items {
		v, err := s.view(ctx, &items[i])
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, v)
	}
	return out, nil
}

func (s *Service) view(ctx context.Context, card *Card) (View, error) {
	masked, err := s.maskedNumber(ctx, card)
	if err != nil {
		return View{}, err
	}
	return View{
		ID:           card.ID,
		MaskedNumber: masked,
		HolderID:     card.HolderID,
		HolderName:   card.HolderName,
		Status:       card.Status,
		Balance:      card.Balance,
		ExpiryDate:   card.ExpiryDate.Format(time.DateOnly),
	}, nil
}

func (s *Service) maskedNumber(ctx context.Context, card *Card) (string, error) {
	plain, err := s.enc.Decrypt(card.EncryptedNumber)
	if err != nil {
		return "", s.decryptFailure(ctx, card.ID, err)
	}
	return numerator.Mask(plain), nil
}

func (s *Service) decryptFailure(ctx context.Context, cardID id.ID, err error) error {
	logger.Error(ctx, "stored card number cannot be decrypted", "card_id", cardID, "error", err)
	return apperror.NewInternal(fmt.Errorf("decrypt card %s: %w", cardID, err))
}

func currentHolder(ctx context.Context) (id.ID, error) {
	raw := appctx.GetUserID(ctx)
	if raw == "" {
		return id.ID{}, apperror.NewUnauthorized("authentication required")
	}
	holderID, err := id.Parse(raw)
	if err != nil {
		return id.ID{}, apperror.NewUnauthorized("invalid user identity")
	}
	return holderID, nil
}

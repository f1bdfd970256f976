// Package wallet exposes the two-bucket balance and the withdrawal
// flow. Funds enter the pending bucket on detected payment and move to
// the available bucket on completion; only the available bucket can be
// withdrawn.
package wallet

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PamellaBolsas/SafeTradeGames/internal/apperr"
	"github.com/PamellaBolsas/SafeTradeGames/internal/chat"
	"github.com/PamellaBolsas/SafeTradeGames/internal/models"
	"github.com/PamellaBolsas/SafeTradeGames/internal/store"
)

var (
	// MinWithdraw is the fixed floor on withdrawal amounts.
	MinWithdraw = decimal.NewFromInt(10)
	// FeeRate is the fixed withdrawal fee rate (0.5%).
	FeeRate = decimal.New(5, -3)
)

type Service struct {
	store store.Store
	hub   *chat.Hub
}

func NewService(st store.Store, hub *chat.Hub) *Service {
	return &Service{store: st, hub: hub}
}

// Balance holds the two buckets plus the append-only history.
type Balance struct {
	Pending   decimal.Decimal
	Available decimal.Decimal
	History   []models.LedgerEntry
}

func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "Usuário não encontrado")
	}
	if err != nil {
		return nil, err
	}

	history, err := s.store.ListLedgerEntries(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Balance{
		Pending:   u.PendingBalance,
		Available: u.AvailableBalance,
		History:   history,
	}, nil
}

// Withdraw debits the available balance by the full amount and records
// a processing withdraw entry with the fee/net breakdown. There is no
// settlement step afterwards; the request is fire-and-forget.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, pixKey, fullName string) (*models.LedgerEntry, error) {
	if amount.IsZero() || strings.TrimSpace(pixKey) == "" || strings.TrimSpace(fullName) == "" {
		return nil, apperr.New(apperr.Validation, "Todos os campos são obrigatórios")
	}
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.Validation, "Valor inválido")
	}

	amount = amount.Round(2)
	if amount.LessThan(MinWithdraw) {
		return nil, apperr.New(apperr.Validation, "Valor mínimo para saque: R$ 10.00")
	}

	fee := amount.Mul(FeeRate).Round(2)
	net := amount.Sub(fee)

	var (
		entry *models.LedgerEntry
		event chat.Event
	)

	err := s.store.Atomic(ctx, func(tx store.Store) error {
		u, err := tx.GetUserForUpdate(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, "Usuário não encontrado")
		}
		if err != nil {
			return err
		}

		if u.AvailableBalance.LessThan(amount) {
			return apperr.New(apperr.InsufficientFunds, "Saldo disponível insuficiente")
		}

		u.AvailableBalance = u.AvailableBalance.Sub(amount)
		if err := tx.UpdateUserBalances(ctx, u.ID, u.PendingBalance, u.AvailableBalance); err != nil {
			return err
		}

		entry = &models.LedgerEntry{
			ID:          uuid.New(),
			UserID:      u.ID,
			Type:        models.EntryWithdraw,
			Amount:      amount.Neg(),
			Fee:         &fee,
			Net:         &net,
			PixKey:      &pixKey,
			FullName:    &fullName,
			Description: "Saque via PIX para " + fullName,
			Status:      "processing",
			CreatedAt:   time.Now(),
		}
		if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
			return err
		}

		event = chat.Event{Name: "balance_updated", Data: models.BalanceUpdate{
			UserID:           u.ID,
			PendingBalance:   u.PendingBalance,
			AvailableBalance: u.AvailableBalance,
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.hub.PublishUser(userID, event)
	return entry, nil
}

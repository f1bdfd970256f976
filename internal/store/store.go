// Package store abstracts persistence behind a repository interface so
// the state machine and ledger mutate entities under a transactional
// guarantee instead of racing on read-modify-write.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PamellaBolsas/SafeTradeGames/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
// Services wrap it with a client-facing message.
var ErrNotFound = errors.New("not found")

// ErrEmailInUse is returned by CreateUser on a duplicate email.
var ErrEmailInUse = errors.New("email already in use")

// Store is the data-access interface. Atomic runs fn against a view of
// the store bound to a single transaction; every multi-entity state
// transition goes through it. The *ForUpdate getters lock the row for
// the remainder of the transaction.
type Store interface {
	Atomic(ctx context.Context, fn func(Store) error) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUserBalances(ctx context.Context, id uuid.UUID, pending, available decimal.Decimal) error

	CreateEscrow(ctx context.Context, e *models.Escrow) error
	GetEscrowByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	GetEscrowForUpdate(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	GetOpenEscrowByCode(ctx context.Context, code string) (*models.Escrow, error)
	CodeInUse(ctx context.Context, code string) (bool, error)
	ListEscrowsByUser(ctx context.Context, userID uuid.UUID) ([]models.Escrow, error)
	UpdateEscrow(ctx context.Context, e *models.Escrow) error
	ListPendingSettlements(ctx context.Context) ([]models.Escrow, error)

	AppendMessage(ctx context.Context, m *models.ChatMessage) error
	ListMessages(ctx context.Context, escrowID uuid.UUID) ([]models.ChatMessage, error)

	AppendLedgerEntry(ctx context.Context, e *models.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, userID uuid.UUID) ([]models.LedgerEntry, error)
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/PamellaBolsas/SafeTradeGames/internal/models"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// query code runs inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool}
}

// Atomic runs fn inside a single pgx transaction. A nested call reuses
// the enclosing transaction.
func (s *Postgres) Atomic(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Postgres{q: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const userColumns = `id, username, email, password_hash, pending_balance, available_balance, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.PendingBalance, &u.AvailableBalance, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	sql := `
		INSERT INTO users (id, username, email, password_hash, pending_balance, available_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.q.Exec(ctx, sql, u.ID, u.Username, u.Email, u.PasswordHash,
		u.PendingBalance, u.AvailableBalance, u.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailInUse
	}
	return err
}

func (s *Postgres) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (s *Postgres) GetUserForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

func (s *Postgres) UpdateUserBalances(ctx context.Context, id uuid.UUID, pending, available decimal.Decimal) error {
	sql := `UPDATE users SET pending_balance = $1, available_balance = $2 WHERE id = $3`
	tag, err := s.q.Exec(ctx, sql, pending, available, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const escrowColumns = `id, code, seller_id, seller_name, buyer_id, buyer_name, item_name,
	description, value, status, settlement_due_at, created_at, updated_at, paid_at, completed_at`

func scanEscrow(row pgx.Row) (*models.Escrow, error) {
	var e models.Escrow
	err := row.Scan(&e.ID, &e.Code, &e.SellerID, &e.SellerName, &e.BuyerID, &e.BuyerName,
		&e.ItemName, &e.Description, &e.Value, &e.Status, &e.SettlementDueAt,
		&e.CreatedAt, &e.UpdatedAt, &e.PaidAt, &e.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Postgres) CreateEscrow(ctx context.Context, e *models.Escrow) error {
	sql := `
		INSERT INTO escrows (id, code, seller_id, seller_name, buyer_id, buyer_name, item_name,
			description, value, status, settlement_due_at, created_at, updated_at, paid_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := s.q.Exec(ctx, sql, e.ID, e.Code, e.SellerID, e.SellerName, e.BuyerID, e.BuyerName,
		e.ItemName, e.Description, e.Value, e.Status, e.SettlementDueAt,
		e.CreatedAt, e.UpdatedAt, e.PaidAt, e.CompletedAt)
	return err
}

func (s *Postgres) GetEscrowByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return scanEscrow(s.q.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id))
}

func (s *Postgres) GetEscrowForUpdate(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return scanEscrow(s.q.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1 FOR UPDATE`, id))
}

func (s *Postgres) GetOpenEscrowByCode(ctx context.Context, code string) (*models.Escrow, error) {
	sql := `SELECT ` + escrowColumns + ` FROM escrows WHERE code = $1 AND status = $2 FOR UPDATE`
	return scanEscrow(s.q.QueryRow(ctx, sql, code, models.StatusAwaitingBuyer))
}

func (s *Postgres) CodeInUse(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM escrows WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

func (s *Postgres) ListEscrowsByUser(ctx context.Context, userID uuid.UUID) ([]models.Escrow, error) {
	sql := `SELECT ` + escrowColumns + ` FROM escrows WHERE seller_id = $1 OR buyer_id = $1 ORDER BY seq`
	rows, err := s.q.Query(ctx, sql, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	escrows := make([]models.Escrow, 0)
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, *e)
	}
	return escrows, rows.Err()
}

func (s *Postgres) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	sql := `
		UPDATE escrows
		SET buyer_id = $1, buyer_name = $2, status = $3, settlement_due_at = $4,
			updated_at = $5, paid_at = $6, completed_at = $7
		WHERE id = $8`
	tag, err := s.q.Exec(ctx, sql, e.BuyerID, e.BuyerName, e.Status, e.SettlementDueAt,
		e.UpdatedAt, e.PaidAt, e.CompletedAt, e.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) ListPendingSettlements(ctx context.Context) ([]models.Escrow, error) {
	sql := `SELECT ` + escrowColumns + ` FROM escrows
		WHERE status = $1 AND settlement_due_at IS NOT NULL ORDER BY seq`
	rows, err := s.q.Query(ctx, sql, models.StatusWaitingPayment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	escrows := make([]models.Escrow, 0)
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, *e)
	}
	return escrows, rows.Err()
}

func (s *Postgres) AppendMessage(ctx context.Context, m *models.ChatMessage) error {
	sql := `
		INSERT INTO chat_messages (id, escrow_id, sender_id, sender_name, body, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.q.Exec(ctx, sql, m.ID, m.EscrowID, m.SenderID, m.SenderName, m.Body, m.Role, m.CreatedAt)
	return err
}

func (s *Postgres) ListMessages(ctx context.Context, escrowID uuid.UUID) ([]models.ChatMessage, error) {
	sql := `
		SELECT id, escrow_id, sender_id, sender_name, body, role, created_at
		FROM chat_messages WHERE escrow_id = $1 ORDER BY seq`
	rows, err := s.q.Query(ctx, sql, escrowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.EscrowID, &m.SenderID, &m.SenderName, &m.Body, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *Postgres) AppendLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	sql := `
		INSERT INTO ledger_entries (id, user_id, type, amount, fee, net, escrow_id, escrow_code,
			pix_key, full_name, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := s.q.Exec(ctx, sql, e.ID, e.UserID, e.Type, e.Amount, e.Fee, e.Net, e.EscrowID,
		e.EscrowCode, e.PixKey, e.FullName, e.Description, e.Status, e.CreatedAt)
	return err
}

func (s *Postgres) ListLedgerEntries(ctx context.Context, userID uuid.UUID) ([]models.LedgerEntry, error) {
	sql := `
		SELECT id, user_id, type, amount, fee, net, escrow_id, escrow_code,
			pix_key, full_name, description, status, created_at
		FROM ledger_entries WHERE user_id = $1 ORDER BY seq`
	rows, err := s.q.Query(ctx, sql, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.LedgerEntry, 0)
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Fee, &e.Net, &e.EscrowID,
			&e.EscrowCode, &e.PixKey, &e.FullName, &e.Description, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

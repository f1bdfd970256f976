package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PamellaBolsas/SafeTradeGames/internal/models"
)

// Memory is an in-process Store used by unit tests and by single-process
// runs without Postgres. Atomic serializes all mutations under one
// mutex, which gives the same externally observable guarantee as the
// transactional implementation (no partially updated record is ever
// visible).
type Memory struct {
	mu   sync.Mutex
	data memData
}

func NewMemory() *Memory {
	return &Memory{
		data: memData{
			users:    map[uuid.UUID]*models.User{},
			emails:   map[string]uuid.UUID{},
			byID:     map[uuid.UUID]*models.Escrow{},
			byCode:   map[string]*models.Escrow{},
			messages: map[uuid.UUID][]models.ChatMessage{},
			ledger:   map[uuid.UUID][]models.LedgerEntry{},
		},
	}
}

func (m *Memory) Atomic(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{data: &m.data})
}

func (m *Memory) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.createUser(u)
}

func (m *Memory) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getUserByID(id)
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getUserByEmail(email)
}

func (m *Memory) GetUserForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getUserByID(id)
}

func (m *Memory) UpdateUserBalances(ctx context.Context, id uuid.UUID, pending, available decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateUserBalances(id, pending, available)
}

func (m *Memory) CreateEscrow(ctx context.Context, e *models.Escrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.createEscrow(e)
}

func (m *Memory) GetEscrowByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getEscrowByID(id)
}

func (m *Memory) GetEscrowForUpdate(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getEscrowByID(id)
}

func (m *Memory) GetOpenEscrowByCode(ctx context.Context, code string) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getOpenEscrowByCode(code)
}

func (m *Memory) CodeInUse(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data.byCode[code]
	return ok, nil
}

func (m *Memory) ListEscrowsByUser(ctx context.Context, userID uuid.UUID) ([]models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.listEscrowsByUser(userID)
}

func (m *Memory) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateEscrow(e)
}

func (m *Memory) ListPendingSettlements(ctx context.Context) ([]models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.listPendingSettlements()
}

func (m *Memory) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.appendMessage(msg)
}

func (m *Memory) ListMessages(ctx context.Context, escrowID uuid.UUID) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.listMessages(escrowID)
}

func (m *Memory) AppendLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.appendLedgerEntry(e)
}

func (m *Memory) ListLedgerEntries(ctx context.Context, userID uuid.UUID) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.listLedgerEntries(userID)
}

// memTx is the view handed to an Atomic closure; the enclosing Memory
// already holds the lock, so it accesses memData directly.
type memTx struct {
	data *memData
}

func (t *memTx) Atomic(ctx context.Context, fn func(Store) error) error {
	return fn(t)
}

func (t *memTx) CreateUser(ctx context.Context, u *models.User) error {
	return t.data.createUser(u)
}

func (t *memTx) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return t.data.getUserByID(id)
}

func (t *memTx) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return t.data.getUserByEmail(email)
}

func (t *memTx) GetUserForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return t.data.getUserByID(id)
}

func (t *memTx) UpdateUserBalances(ctx context.Context, id uuid.UUID, pending, available decimal.Decimal) error {
	return t.data.updateUserBalances(id, pending, available)
}

func (t *memTx) CreateEscrow(ctx context.Context, e *models.Escrow) error {
	return t.data.createEscrow(e)
}

func (t *memTx) GetEscrowByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return t.data.getEscrowByID(id)
}

func (t *memTx) GetEscrowForUpdate(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return t.data.getEscrowByID(id)
}

func (t *memTx) GetOpenEscrowByCode(ctx context.Context, code string) (*models.Escrow, error) {
	return t.data.getOpenEscrowByCode(code)
}

func (t *memTx) CodeInUse(ctx context.Context, code string) (bool, error) {
	_, ok := t.data.byCode[code]
	return ok, nil
}

func (t *memTx) ListEscrowsByUser(ctx context.Context, userID uuid.UUID) ([]models.Escrow, error) {
	return t.data.listEscrowsByUser(userID)
}

func (t *memTx) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	return t.data.updateEscrow(e)
}

func (t *memTx) ListPendingSettlements(ctx context.Context) ([]models.Escrow, error) {
	return t.data.listPendingSettlements()
}

func (t *memTx) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	return t.data.appendMessage(msg)
}

func (t *memTx) ListMessages(ctx context.Context, escrowID uuid.UUID) ([]models.ChatMessage, error) {
	return t.data.listMessages(escrowID)
}

func (t *memTx) AppendLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	return t.data.appendLedgerEntry(e)
}

func (t *memTx) ListLedgerEntries(ctx context.Context, userID uuid.UUID) ([]models.LedgerEntry, error) {
	return t.data.listLedgerEntries(userID)
}

type memData struct {
	users    map[uuid.UUID]*models.User
	emails   map[string]uuid.UUID
	escrows  []*models.Escrow
	byID     map[uuid.UUID]*models.Escrow
	byCode   map[string]*models.Escrow
	messages map[uuid.UUID][]models.ChatMessage
	ledger   map[uuid.UUID][]models.LedgerEntry
}

func cloneUser(u *models.User) *models.User {
	c := *u
	return &c
}

func cloneEscrow(e *models.Escrow) *models.Escrow {
	c := *e
	if e.BuyerID != nil {
		id := *e.BuyerID
		c.BuyerID = &id
	}
	if e.BuyerName != nil {
		n := *e.BuyerName
		c.BuyerName = &n
	}
	if e.PaidAt != nil {
		t := *e.PaidAt
		c.PaidAt = &t
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		c.CompletedAt = &t
	}
	if e.SettlementDueAt != nil {
		t := *e.SettlementDueAt
		c.SettlementDueAt = &t
	}
	c.Chat = nil
	return &c
}

func (d *memData) createUser(u *models.User) error {
	if _, ok := d.emails[u.Email]; ok {
		return ErrEmailInUse
	}
	d.users[u.ID] = cloneUser(u)
	d.emails[u.Email] = u.ID
	return nil
}

func (d *memData) getUserByID(id uuid.UUID) (*models.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (d *memData) getUserByEmail(email string) (*models.User, error) {
	id, ok := d.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(d.users[id]), nil
}

func (d *memData) updateUserBalances(id uuid.UUID, pending, available decimal.Decimal) error {
	u, ok := d.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PendingBalance = pending
	u.AvailableBalance = available
	return nil
}

func (d *memData) createEscrow(e *models.Escrow) error {
	c := cloneEscrow(e)
	d.escrows = append(d.escrows, c)
	d.byID[c.ID] = c
	d.byCode[c.Code] = c
	return nil
}

func (d *memData) getEscrowByID(id uuid.UUID) (*models.Escrow, error) {
	e, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEscrow(e), nil
}

func (d *memData) getOpenEscrowByCode(code string) (*models.Escrow, error) {
	e, ok := d.byCode[code]
	if !ok || e.Status != models.StatusAwaitingBuyer {
		return nil, ErrNotFound
	}
	return cloneEscrow(e), nil
}

func (d *memData) listEscrowsByUser(userID uuid.UUID) ([]models.Escrow, error) {
	out := make([]models.Escrow, 0)
	for _, e := range d.escrows {
		if e.IsParty(userID) {
			out = append(out, *cloneEscrow(e))
		}
	}
	return out, nil
}

func (d *memData) updateEscrow(e *models.Escrow) error {
	cur, ok := d.byID[e.ID]
	if !ok {
		return ErrNotFound
	}
	c := cloneEscrow(e)
	*cur = *c
	return nil
}

func (d *memData) listPendingSettlements() ([]models.Escrow, error) {
	out := make([]models.Escrow, 0)
	for _, e := range d.escrows {
		if e.Status == models.StatusWaitingPayment && e.SettlementDueAt != nil {
			out = append(out, *cloneEscrow(e))
		}
	}
	return out, nil
}

func (d *memData) appendMessage(m *models.ChatMessage) error {
	d.messages[m.EscrowID] = append(d.messages[m.EscrowID], *m)
	return nil
}

func (d *memData) listMessages(escrowID uuid.UUID) ([]models.ChatMessage, error) {
	msgs := d.messages[escrowID]
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (d *memData) appendLedgerEntry(e *models.LedgerEntry) error {
	d.ledger[e.UserID] = append(d.ledger[e.UserID], *e)
	return nil
}

func (d *memData) listLedgerEntries(userID uuid.UUID) ([]models.LedgerEntry, error) {
	entries := d.ledger[userID]
	out := make([]models.LedgerEntry, len(entries))
	copy(out, entries)
	return out, nil
}

package escrow

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PamellaBolsas/SafeTradeGames/internal/apperr"
	"github.com/PamellaBolsas/SafeTradeGames/internal/chat"
	"github.com/PamellaBolsas/SafeTradeGames/internal/models"
	"github.com/PamellaBolsas/SafeTradeGames/internal/store"
)

const testDelay = 20 * time.Millisecond

func newTestService(t *testing.T) (*Service, *store.Memory, *chat.Hub) {
	t.Helper()
	st := store.NewMemory()
	hub := chat.NewHub()
	return NewService(st, hub, testDelay), st, hub
}

func createUser(t *testing.T, st *store.Memory, name string) *models.User {
	t.Helper()
	u := &models.User{
		ID:               uuid.New(),
		Username:         name,
		Email:            name + "@example.com",
		PasswordHash:     "x",
		PendingBalance:   decimal.Zero,
		AvailableBalance: decimal.Zero,
		CreatedAt:        time.Now(),
	}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u
}

func mustCreate(t *testing.T, s *Service, seller *models.User, value string) *models.Escrow {
	t.Helper()
	v, err := decimal.NewFromString(value)
	require.NoError(t, err)
	e, err := s.Create(context.Background(), seller.ID, seller.Username, "Espada Flamejante", v, "item raro")
	require.NoError(t, err)
	return e
}

func mustJoin(t *testing.T, s *Service, e *models.Escrow, buyer *models.User) *models.Escrow {
	t.Helper()
	joined, err := s.Join(context.Background(), e.Code, buyer.ID, buyer.Username)
	require.NoError(t, err)
	return joined
}

func TestCreate(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")

	e := mustCreate(t, s, seller, "100.00")

	assert.Equal(t, models.StatusAwaitingBuyer, e.Status)
	assert.Equal(t, seller.ID, e.SellerID)
	assert.Nil(t, e.BuyerID)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{3}-[A-Z0-9]{3}-[A-Z0-9]{3}$`), e.Code)
	assert.True(t, e.Value.Equal(decimal.RequireFromString("100.00")))
	assert.Empty(t, e.Chat)
}

func TestCreateRoundsValue(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")

	e, err := s.Create(context.Background(), seller.ID, seller.Username, "item", decimal.RequireFromString("10.005"), "")
	require.NoError(t, err)
	assert.True(t, e.Value.Equal(decimal.RequireFromString("10.01")), "got %s", e.Value)
}

func TestCreateValidation(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")
	ctx := context.Background()

	_, err := s.Create(ctx, seller.ID, seller.Username, "", decimal.NewFromInt(10), "")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = s.Create(ctx, seller.ID, seller.Username, "item", decimal.Zero, "")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = s.Create(ctx, seller.ID, seller.Username, "item", decimal.NewFromInt(-5), "")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestJoin(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")
	buyer := createUser(t, st, "comprador")

	e := mustCreate(t, s, seller, "50.00")
	joined := mustJoin(t, s, e, buyer)

	assert.Equal(t, models.StatusWaitingPayment, joined.Status)
	require.NotNil(t, joined.BuyerID)
	assert.Equal(t, buyer.ID, *joined.BuyerID)

	require.Len(t, joined.Chat, 1)
	assert.Equal(t, models.RoleSystem, joined.Chat[0].Role)
	assert.Contains(t, joined.Chat[0].Body, buyer.Username)
}

func TestJoinUnknownCode(t *testing.T) {
	s, st, _ := newTestService(t)
	buyer := createUser(t, st, "comprador")

	_, err := s.Join(context.Background(), "ZZZ-ZZZ-ZZZ", buyer.ID, buyer.Username)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestJoinOwnEscrow(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")

	e := mustCreate(t, s, seller, "50.00")
	_, err := s.Join(context.Background(), e.Code, seller.ID, seller.Username)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	// State must be unchanged on failure.
	got, err := st.GetEscrowByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingBuyer, got.Status)
	assert.Nil(t, got.BuyerID)
}

func TestJoinAlreadyJoined(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")
	buyer := createUser(t, st, "comprador")
	other := createUser(t, st, "outro")

	e := mustCreate(t, s, seller, "50.00")
	mustJoin(t, s, e, buyer)

	// The code no longer matches an awaiting_buyer escrow.
	_, err := s.Join(context.Background(), e.Code, other.ID, other.Username)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestGetAccess(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")
	buyer := createUser(t, st, "comprador")
	outsider := createUser(t, st, "intruso")
	ctx := context.Background()

	e := mustCreate(t, s, seller, "50.00")
	mustJoin(t, s, e, buyer)

	_, err := s.Get(ctx, e.ID, seller.ID)
	assert.NoError(t, err)
	_, err = s.Get(ctx, e.ID, buyer.ID)
	assert.NoError(t, err)

	_, err = s.Get(ctx, e.ID, outsider.ID)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	_, err = s.Get(ctx, uuid.New(), seller.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestListInsertionOrder(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")
	other := createUser(t, st, "outra")

	first := mustCreate(t, s, seller, "10.00")
	_ = mustCreate(t, s, other, "20.00")
	second := mustCreate(t, s, seller, "30.00")

	escrows, err := s.List(context.Background(), seller.ID)
	require.NoError(t, err)
	require.Len(t, escrows, 2)
	assert.Equal(t, first.ID, escrows[0].ID)
	assert.Equal(t, second.ID, escrows[1].ID)
}

func TestHandleMessageRoles(t *testing.T) {
	s, st, hub := newTestService(t)
	seller := createUser(t, st, "vendedor")
	buyer := createUser(t, st, "comprador")
	ctx := context.Background()

	e := mustCreate(t, s, seller, "50.00")
	mustJoin(t, s, e, buyer)

	ch, cancel := hub.SubscribeEscrow(e.ID)
	defer cancel()

	fromSeller, err := s.HandleMessage(ctx, e.ID, seller.ID, seller.Username, "olá")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSeller, fromSeller.Role)

	fromBuyer, err := s.HandleMessage(ctx, e.ID, buyer.ID, buyer.Username, "oi, tudo bem")
	require.NoError(t, err)
	assert.Equal(t, models.RoleBuyer, fromBuyer.Role)

	// Both messages were relayed on the escrow channel.
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			assert.Equal(t, "new_message", ev.Name)
		case <-time.After(time.Second):
			t.Fatal("expected a relayed message")
		}
	}

	msgs, err := st.ListMessages(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 3) // join notice + two chat messages
}

func TestHandleMessageOutsider(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")
	outsider := createUser(t, st, "intruso")

	e := mustCreate(t, s, seller, "50.00")
	_, err := s.HandleMessage(context.Background(), e.ID, outsider.ID, outsider.Username, "oi")
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func waitForStatus(t *testing.T, st *store.Memory, id uuid.UUID, want models.EscrowStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		e, err := st.GetEscrowByID(context.Background(), id)
		return err == nil && e.Status == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPaymentDetectionFlow(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")
	buyer := createUser(t, st, "comprador")
	ctx := context.Background()

	e := mustCreate(t, s, seller, "100.00")
	mustJoin(t, s, e, buyer)

	_, err := s.HandleMessage(ctx, e.ID, buyer.ID, buyer.Username, "já paguei")
	require.NoError(t, err)

	// The settlement delay elapses and the escrow transitions to paid.
	waitForStatus(t, st, e.ID, models.StatusPaid)

	u, err := st.GetUserByID(ctx, seller.ID)
	require.NoError(t, err)
	assert.True(t, u.PendingBalance.Equal(decimal.RequireFromString("100.00")), "pending = %s", u.PendingBalance)
	assert.True(t, u.AvailableBalance.IsZero())

	// Buyer confirms receipt: funds move pending -> available.
	completed, err := s.Complete(ctx, e.ID, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	u, err = st.GetUserByID(ctx, seller.ID)
	require.NoError(t, err)
	assert.True(t, u.PendingBalance.IsZero(), "pending = %s", u.PendingBalance)
	assert.True(t, u.AvailableBalance.Equal(decimal.RequireFromString("100.00")), "available = %s", u.AvailableBalance)

	entries, err := st.ListLedgerEntries(ctx, seller.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.EntryPending, entries[0].Type)
	assert.Equal(t, models.EntryRelease, entries[1].Type)
}

func TestDetectionTriggersOnce(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")
	buyer := createUser(t, st, "comprador")
	ctx := context.Background()

	e := mustCreate(t, s, seller, "100.00")
	mustJoin(t, s, e, buyer)

	// Several trigger phrases while still waiting_payment.
	_, err := s.HandleMessage(ctx, e.ID, buyer.ID, buyer.Username, "pix enviado")
	require.NoError(t, err)
	_, err = s.HandleMessage(ctx, e.ID, buyer.ID, buyer.Username, "pagamento feito, confere aí")
	require.NoError(t, err)

	waitForStatus(t, st, e.ID, models.StatusPaid)
	time.Sleep(3 * testDelay)

	u, err := st.GetUserByID(ctx, seller.ID)
	require.NoError(t, err)
	assert.True(t, u.PendingBalance.Equal(decimal.RequireFromString("100.00")), "credited more than once: %s", u.PendingBalance)
}

func TestMarkPaidIdempotent(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")
	buyer := createUser(t, st, "comprador")
	ctx := context.Background()

	e := mustCreate(t, s, seller, "75.00")
	mustJoin(t, s, e, buyer)

	require.NoError(t, s.MarkPaid(ctx, e.ID))
	require.NoError(t, s.MarkPaid(ctx, e.ID))

	u, err := st.GetUserByID(ctx, seller.ID)
	require.NoError(t, err)
	assert.True(t, u.PendingBalance.Equal(decimal.RequireFromString("75.00")))

	entries, err := st.ListLedgerEntries(ctx, seller.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSellerDetectionIgnored(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")
	buyer := createUser(t, st, "comprador")
	ctx := context.Background()

	e := mustCreate(t, s, seller, "100.00")
	mustJoin(t, s, e, buyer)

	// Trigger phrase from the seller must not schedule settlement.
	_, err := s.HandleMessage(ctx, e.ID, seller.ID, seller.Username, "pagamento feito?")
	require.NoError(t, err)

	time.Sleep(3 * testDelay)
	got, err := st.GetEscrowByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingPayment, got.Status)
}

func TestCompleteGuards(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")
	buyer := createUser(t, st, "comprador")
	ctx := context.Background()

	e := mustCreate(t, s, seller, "100.00")
	mustJoin(t, s, e, buyer)

	// Not paid yet.
	_, err := s.Complete(ctx, e.ID, buyer.ID)
	assert.Equal(t, apperr.InvalidState, apperr.KindOf(err))

	require.NoError(t, s.MarkPaid(ctx, e.ID))

	// Only the buyer may complete.
	_, err = s.Complete(ctx, e.ID, seller.ID)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	got, err := st.GetEscrowByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, got.Status)

	_, err = s.Complete(ctx, e.ID, buyer.ID)
	require.NoError(t, err)

	// Terminal: a second complete fails and nothing moves.
	_, err = s.Complete(ctx, e.ID, buyer.ID)
	assert.Equal(t, apperr.InvalidState, apperr.KindOf(err))
}

func TestConfirmPayment(t *testing.T) {
	s, st, _ := newTestService(t)
	seller := createUser(t, st, "vendedor")
	buyer := createUser(t, st, "comprador")
	ctx := context.Background()

	e := mustCreate(t, s, seller, "40.00")
	mustJoin(t, s, e, buyer)

	err := s.ConfirmPayment(ctx, e.ID, seller.ID)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	require.NoError(t, s.ConfirmPayment(ctx, e.ID, buyer.ID))
	waitForStatus(t, st, e.ID, models.StatusPaid)

	// Already paid: confirming again is an invalid state.
	err = s.ConfirmPayment(ctx, e.ID, buyer.ID)
	assert.Equal(t, apperr.InvalidState, apperr.KindOf(err))
}

func TestRestoreScheduled(t *testing.T) {
	st := store.NewMemory()
	hub := chat.NewHub()
	seller := createUser(t, st, "vendedor")
	buyer := createUser(t, st, "comprador")
	ctx := context.Background()

	first := NewService(st, hub, testDelay)
	e := mustCreate(t, first, seller, "60.00")
	mustJoin(t, first, e, buyer)

	// Simulate a process that stopped after persisting the due time but
	// before the timer fired.
	due := time.Now().Add(-time.Second)
	stored, err := st.GetEscrowByID(ctx, e.ID)
	require.NoError(t, err)
	stored.SettlementDueAt = &due
	require.NoError(t, st.UpdateEscrow(ctx, stored))

	restarted := NewService(st, hub, testDelay)
	require.NoError(t, restarted.RestoreScheduled(ctx))

	waitForStatus(t, st, e.ID, models.StatusPaid)
}

func TestBalanceEventScopedToSeller(t *testing.T) {
	s, st, hub := newTestService(t)
	seller := createUser(t, st, "vendedor")
	buyer := createUser(t, st, "comprador")
	ctx := context.Background()

	e := mustCreate(t, s, seller, "30.00")
	mustJoin(t, s, e, buyer)

	sellerCh, cancelSeller := hub.SubscribeUser(seller.ID)
	defer cancelSeller()
	buyerCh, cancelBuyer := hub.SubscribeUser(buyer.ID)
	defer cancelBuyer()

	require.NoError(t, s.MarkPaid(ctx, e.ID))

	select {
	case ev := <-sellerCh:
		assert.Equal(t, "balance_updated", ev.Name)
		update, ok := ev.Data.(models.BalanceUpdate)
		require.True(t, ok)
		assert.Equal(t, seller.ID, update.UserID)
	case <-time.After(time.Second):
		t.Fatal("seller did not receive a balance event")
	}

	select {
	case ev := <-buyerCh:
		t.Fatalf("buyer received another user's balance event: %v", ev)
	default:
	}
}

// Package escrow implements the trade lifecycle: a seller opens an
// escrow, a buyer joins by code, payment is detected (or confirmed) and
// settles after a delay, and the buyer's final confirmation releases
// the funds for withdrawal.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PamellaBolsas/SafeTradeGames/internal/apperr"
	"github.com/PamellaBolsas/SafeTradeGames/internal/chat"
	"github.com/PamellaBolsas/SafeTradeGames/internal/models"
	"github.com/PamellaBolsas/SafeTradeGames/internal/payment"
	"github.com/PamellaBolsas/SafeTradeGames/internal/store"
)

type Service struct {
	store    store.Store
	hub      *chat.Hub
	detector *payment.Detector
	sched    *payment.Scheduler
	delay    time.Duration
}

// NewService wires the state machine to its store, the realtime hub and
// the settlement scheduler. delay is the simulated settlement latency
// between payment detection and the paid transition.
func NewService(st store.Store, hub *chat.Hub, delay time.Duration) *Service {
	return &Service{
		store:    st,
		hub:      hub,
		detector: payment.NewDetector(),
		sched:    payment.NewScheduler(),
		delay:    delay,
	}
}

// pendingEvent is a hub publication deferred until the surrounding
// transaction commits, so subscribers never observe uncommitted state.
type pendingEvent struct {
	escrowID *uuid.UUID
	userID   *uuid.UUID
	event    chat.Event
}

func (s *Service) publish(events []pendingEvent) {
	for _, pe := range events {
		if pe.escrowID != nil {
			s.hub.PublishEscrow(*pe.escrowID, pe.event)
		}
		if pe.userID != nil {
			s.hub.PublishUser(*pe.userID, pe.event)
		}
	}
}

func systemMessage(escrowID uuid.UUID, body string) *models.ChatMessage {
	return &models.ChatMessage{
		ID:         uuid.New(),
		EscrowID:   escrowID,
		SenderName: models.SystemSenderName,
		Body:       body,
		Role:       models.RoleSystem,
		CreatedAt:  time.Now(),
	}
}

func balanceEvent(u *models.User) chat.Event {
	return chat.Event{Name: "balance_updated", Data: models.BalanceUpdate{
		UserID:           u.ID,
		PendingBalance:   u.PendingBalance,
		AvailableBalance: u.AvailableBalance,
	}}
}

// Create opens a new escrow in awaiting_buyer with a fresh join code.
func (s *Service) Create(ctx context.Context, sellerID uuid.UUID, sellerName, itemName string, value decimal.Decimal, description string) (*models.Escrow, error) {
	if strings.TrimSpace(itemName) == "" || value.IsZero() {
		return nil, apperr.New(apperr.Validation, "Nome e valor do item são obrigatórios")
	}
	if value.IsNegative() {
		return nil, apperr.New(apperr.Validation, "Valor inválido")
	}

	code, err := newCode(ctx, s.store)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	e := &models.Escrow{
		ID:          uuid.New(),
		Code:        code,
		SellerID:    sellerID,
		SellerName:  sellerName,
		ItemName:    itemName,
		Description: description,
		Value:       value.Round(2),
		Status:      models.StatusAwaitingBuyer,
		CreatedAt:   now,
		UpdatedAt:   now,
		Chat:        []models.ChatMessage{},
	}

	if err := s.store.CreateEscrow(ctx, e); err != nil {
		return nil, fmt.Errorf("could not create escrow: %w", err)
	}

	return e, nil
}

// Join attaches the buyer to the escrow matching code and moves it to
// waiting_payment.
func (s *Service) Join(ctx context.Context, code string, buyerID uuid.UUID, buyerName string) (*models.Escrow, error) {
	var (
		joined *models.Escrow
		events []pendingEvent
	)

	err := s.store.Atomic(ctx, func(tx store.Store) error {
		e, err := tx.GetOpenEscrowByCode(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, "Código inválido ou intermédio não disponível")
		}
		if err != nil {
			return err
		}

		if e.SellerID == buyerID {
			return apperr.New(apperr.Validation, "Você não pode comprar seu próprio item")
		}

		now := time.Now()
		e.BuyerID = &buyerID
		e.BuyerName = &buyerName
		e.Status = models.StatusWaitingPayment
		e.UpdatedAt = now
		if err := tx.UpdateEscrow(ctx, e); err != nil {
			return err
		}

		msg := systemMessage(e.ID, fmt.Sprintf("🎉 %s entrou como comprador! Aguardando pagamento.", buyerName))
		if err := tx.AppendMessage(ctx, msg); err != nil {
			return err
		}

		msgs, err := tx.ListMessages(ctx, e.ID)
		if err != nil {
			return err
		}
		e.Chat = msgs

		joined = e
		events = append(events, pendingEvent{escrowID: &e.ID, event: chat.Event{Name: "new_message", Data: *msg}})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(events)
	return joined, nil
}

// Get returns one escrow with its chat log; only the seller or the
// recorded buyer may read it.
func (s *Service) Get(ctx context.Context, escrowID, requesterID uuid.UUID) (*models.Escrow, error) {
	e, err := s.store.GetEscrowByID(ctx, escrowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "Intermédio não encontrado")
	}
	if err != nil {
		return nil, err
	}

	if !e.IsParty(requesterID) {
		return nil, apperr.New(apperr.Forbidden, "Acesso negado")
	}

	msgs, err := s.store.ListMessages(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	e.Chat = msgs
	return e, nil
}

// List returns every escrow the requester is a party to, in insertion
// order.
func (s *Service) List(ctx context.Context, requesterID uuid.UUID) ([]models.Escrow, error) {
	escrows, err := s.store.ListEscrowsByUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	for i := range escrows {
		msgs, err := s.store.ListMessages(ctx, escrows[i].ID)
		if err != nil {
			return nil, err
		}
		escrows[i].Chat = msgs
	}
	return escrows, nil
}

// HandleMessage persists and relays a chat message, then, for
// buyer-authored messages, runs payment detection.
func (s *Service) HandleMessage(ctx context.Context, escrowID, senderID uuid.UUID, senderName, body string) (*models.ChatMessage, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperr.New(apperr.Validation, "Mensagem vazia")
	}

	var (
		msg       *models.ChatMessage
		fromBuyer bool
		waiting   bool
	)

	err := s.store.Atomic(ctx, func(tx store.Store) error {
		e, err := tx.GetEscrowForUpdate(ctx, escrowID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, "Intermédio não encontrado")
		}
		if err != nil {
			return err
		}

		if !e.IsParty(senderID) {
			return apperr.New(apperr.Forbidden, "Acesso negado")
		}

		role := models.RoleBuyer
		if senderID == e.SellerID {
			role = models.RoleSeller
		}

		msg = &models.ChatMessage{
			ID:         uuid.New(),
			EscrowID:   e.ID,
			SenderID:   &senderID,
			SenderName: senderName,
			Body:       body,
			Role:       role,
			CreatedAt:  time.Now(),
		}
		if err := tx.AppendMessage(ctx, msg); err != nil {
			return err
		}

		fromBuyer = e.BuyerID != nil && *e.BuyerID == senderID
		waiting = e.Status == models.StatusWaitingPayment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.hub.PublishEscrow(escrowID, chat.Event{Name: "new_message", Data: *msg})

	if fromBuyer && waiting && s.detector.Match(body) {
		if err := s.ScheduleSettlement(ctx, escrowID); err != nil {
			log.Printf("could not schedule settlement for escrow %s: %v", escrowID, err)
		}
	}

	return msg, nil
}

// ConfirmPayment is the buyer's explicit "I paid" action. It follows
// the same settlement path as the chat heuristic.
func (s *Service) ConfirmPayment(ctx context.Context, escrowID, requesterID uuid.UUID) error {
	e, err := s.store.GetEscrowByID(ctx, escrowID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, "Intermédio não encontrado")
	}
	if err != nil {
		return err
	}

	if e.BuyerID == nil || *e.BuyerID != requesterID {
		return apperr.New(apperr.Forbidden, "Apenas o comprador pode confirmar o pagamento")
	}
	if e.Status != models.StatusWaitingPayment {
		return apperr.New(apperr.InvalidState, "O intermédio não está aguardando pagamento")
	}

	return s.ScheduleSettlement(ctx, escrowID)
}

// ScheduleSettlement arms the delayed paid transition for the escrow.
// The due time is persisted so a restart can re-arm it, and the task is
// deduplicated per escrow.
func (s *Service) ScheduleSettlement(ctx context.Context, escrowID uuid.UUID) error {
	if s.sched.Pending(escrowID) {
		return nil
	}

	err := s.store.Atomic(ctx, func(tx store.Store) error {
		e, err := tx.GetEscrowForUpdate(ctx, escrowID)
		if err != nil {
			return err
		}
		if e.Status != models.StatusWaitingPayment {
			return nil
		}
		due := time.Now().Add(s.delay)
		e.SettlementDueAt = &due
		e.UpdatedAt = time.Now()
		return tx.UpdateEscrow(ctx, e)
	})
	if err != nil {
		return err
	}

	s.armSettlement(escrowID, s.delay)
	return nil
}

func (s *Service) armSettlement(escrowID uuid.UUID, delay time.Duration) {
	s.sched.Schedule(escrowID, delay, func() {
		if err := s.MarkPaid(context.Background(), escrowID); err != nil {
			log.Printf("settlement for escrow %s failed: %v", escrowID, err)
		}
	})
}

// RestoreScheduled re-arms settlement tasks that were pending when the
// process last stopped.
func (s *Service) RestoreScheduled(ctx context.Context) error {
	escrows, err := s.store.ListPendingSettlements(ctx)
	if err != nil {
		return err
	}
	for _, e := range escrows {
		delay := time.Until(*e.SettlementDueAt)
		if delay < 0 {
			delay = 0
		}
		s.armSettlement(e.ID, delay)
	}
	return nil
}

// MarkPaid moves waiting_payment to paid and credits the seller's
// pending balance. Any other status makes it a no-op, so repeated
// triggers cannot double-credit.
func (s *Service) MarkPaid(ctx context.Context, escrowID uuid.UUID) error {
	var events []pendingEvent

	err := s.store.Atomic(ctx, func(tx store.Store) error {
		e, err := tx.GetEscrowForUpdate(ctx, escrowID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, "Intermédio não encontrado")
		}
		if err != nil {
			return err
		}

		if e.Status != models.StatusWaitingPayment {
			return nil
		}

		now := time.Now()
		e.Status = models.StatusPaid
		e.PaidAt = &now
		e.UpdatedAt = now
		e.SettlementDueAt = nil
		if err := tx.UpdateEscrow(ctx, e); err != nil {
			return err
		}

		// A dangling seller id degrades to "seller not found": the
		// escrow still transitions, no funds move.
		seller, err := tx.GetUserForUpdate(ctx, e.SellerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if seller != nil {
			seller.PendingBalance = seller.PendingBalance.Add(e.Value)
			if err := tx.UpdateUserBalances(ctx, seller.ID, seller.PendingBalance, seller.AvailableBalance); err != nil {
				return err
			}

			entry := &models.LedgerEntry{
				ID:          uuid.New(),
				UserID:      seller.ID,
				Type:        models.EntryPending,
				Amount:      e.Value,
				EscrowID:    &e.ID,
				EscrowCode:  &e.Code,
				Description: fmt.Sprintf("Pagamento intermédio %s", e.Code),
				Status:      "credited",
				CreatedAt:   now,
			}
			if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
				return err
			}

			events = append(events, pendingEvent{userID: &seller.ID, event: balanceEvent(seller)})
		}

		msg := systemMessage(e.ID, fmt.Sprintf(
			"💰 PAGAMENTO CONFIRMADO! Valor de R$ %s foi creditado na conta do vendedor (saldo em andamento). Aguardando confirmação final do comprador para liberar para saque.",
			e.Value.StringFixed(2)))
		if err := tx.AppendMessage(ctx, msg); err != nil {
			return err
		}

		events = append(events, pendingEvent{escrowID: &e.ID, event: chat.Event{Name: "new_message", Data: *msg}})
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(events)
	return nil
}

// Complete is the buyer's final confirmation: paid becomes completed and
// the escrow value moves from the seller's pending bucket to the
// available one. This is the single point where funds become
// withdrawable.
func (s *Service) Complete(ctx context.Context, escrowID, requesterID uuid.UUID) (*models.Escrow, error) {
	var (
		completed *models.Escrow
		events    []pendingEvent
	)

	err := s.store.Atomic(ctx, func(tx store.Store) error {
		e, err := tx.GetEscrowForUpdate(ctx, escrowID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, "Intermédio não encontrado")
		}
		if err != nil {
			return err
		}

		if e.BuyerID == nil || *e.BuyerID != requesterID {
			return apperr.New(apperr.Forbidden, "Apenas o comprador pode finalizar")
		}
		if e.Status != models.StatusPaid {
			return apperr.New(apperr.InvalidState, "O intermédio precisa estar pago")
		}

		now := time.Now()
		e.Status = models.StatusCompleted
		e.CompletedAt = &now
		e.UpdatedAt = now
		if err := tx.UpdateEscrow(ctx, e); err != nil {
			return err
		}

		seller, err := tx.GetUserForUpdate(ctx, e.SellerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if seller != nil {
			// Straight transfer between buckets, not a re-derivation.
			seller.PendingBalance = seller.PendingBalance.Sub(e.Value)
			seller.AvailableBalance = seller.AvailableBalance.Add(e.Value)
			if err := tx.UpdateUserBalances(ctx, seller.ID, seller.PendingBalance, seller.AvailableBalance); err != nil {
				return err
			}

			entry := &models.LedgerEntry{
				ID:          uuid.New(),
				UserID:      seller.ID,
				Type:        models.EntryRelease,
				Amount:      e.Value,
				EscrowID:    &e.ID,
				EscrowCode:  &e.Code,
				Description: fmt.Sprintf("Liberação intermédio %s", e.Code),
				Status:      "released",
				CreatedAt:   now,
			}
			if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
				return err
			}

			events = append(events, pendingEvent{userID: &seller.ID, event: balanceEvent(seller)})
		}

		msg := systemMessage(e.ID, "🎉 Transação concluída! O vendedor já pode sacar o valor.")
		if err := tx.AppendMessage(ctx, msg); err != nil {
			return err
		}

		msgs, err := tx.ListMessages(ctx, e.ID)
		if err != nil {
			return err
		}
		e.Chat = msgs

		completed = e
		events = append(events, pendingEvent{escrowID: &e.ID, event: chat.Event{Name: "new_message", Data: *msg}})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sched.Cancel(escrowID)
	s.publish(events)
	return completed, nil
}

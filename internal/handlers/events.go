package handlers

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/PamellaBolsas/SafeTradeGames/internal/apperr"
	"github.com/PamellaBolsas/SafeTradeGames/internal/chat"
	"github.com/PamellaBolsas/SafeTradeGames/internal/models"
)

// streamEvents forwards hub events to the client as SSE until the
// client disconnects.
func streamEvents(c *gin.Context, ch <-chan chat.Event) {
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func sseHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
}

// EscrowEventsHandler subscribes the caller to one escrow's chat
// channel. The stored history is replayed first as a single
// chat_history event, then live new_message events follow.
func (h *Handler) EscrowEventsHandler(c *gin.Context) {
	userID, _ := currentUser(c)

	escrowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.New(apperr.NotFound, "Intermédio não encontrado"))
		return
	}

	// Get enforces that only a party may subscribe.
	e, err := h.Escrows.Get(c.Request.Context(), escrowID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	ch, cancel := h.Hub.SubscribeEscrow(escrowID)
	defer cancel()

	sseHeaders(c)
	c.SSEvent("chat_history", e.Chat)
	c.Writer.Flush()

	streamEvents(c, ch)
}

// BalanceEventsHandler streams balance_updated events scoped to the
// authenticated user, starting with a snapshot of the current balance.
func (h *Handler) BalanceEventsHandler(c *gin.Context) {
	userID, _ := currentUser(c)

	b, err := h.Wallet.Balance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	ch, cancel := h.Hub.SubscribeUser(userID)
	defer cancel()

	sseHeaders(c)
	c.SSEvent("balance_updated", models.BalanceUpdate{
		UserID:           userID,
		PendingBalance:   b.Pending,
		AvailableBalance: b.Available,
	})
	c.Writer.Flush()

	streamEvents(c, ch)
}

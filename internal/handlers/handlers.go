package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PamellaBolsas/SafeTradeGames/internal/apperr"
	"github.com/PamellaBolsas/SafeTradeGames/internal/auth"
	"github.com/PamellaBolsas/SafeTradeGames/internal/chat"
	"github.com/PamellaBolsas/SafeTradeGames/internal/escrow"
	"github.com/PamellaBolsas/SafeTradeGames/internal/users"
	"github.com/PamellaBolsas/SafeTradeGames/internal/wallet"
)

// Handler holds the services every route depends on.
type Handler struct {
	Users   *users.Service
	Wallet  *wallet.Service
	Escrows *escrow.Service
	Hub     *chat.Hub
}

func NewHandler(u *users.Service, w *wallet.Service, e *escrow.Service, hub *chat.Hub) *Handler {
	return &Handler{Users: u, Wallet: w, Escrows: e, Hub: hub}
}

// currentUser reads the identity the auth middleware stored in the
// context.
func currentUser(c *gin.Context) (uuid.UUID, string) {
	id := c.MustGet(auth.ContextUserID).(uuid.UUID)
	name := c.GetString(auth.ContextUsername)
	return id, name
}

func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"success": false, "error": apperr.Message(err)})
}

func bindError(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Dados inválidos"})
}

func (h *Handler) RegisterHandler(c *gin.Context) {
	var requestBody struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		bindError(c)
		return
	}

	user, token, err := h.Users.Register(c.Request.Context(), requestBody.Username, requestBody.Email, requestBody.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Conta criada com sucesso!",
		"token":   token,
		"user":    user,
	})
}

func (h *Handler) LoginHandler(c *gin.Context) {
	var requestBody struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		bindError(c)
		return
	}

	user, token, err := h.Users.Login(c.Request.Context(), requestBody.Email, requestBody.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login realizado!",
		"token":   token,
		"user":    user,
	})
}

func (h *Handler) ProfileHandler(c *gin.Context) {
	userID, _ := currentUser(c)

	user, err := h.Users.Profile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (h *Handler) BalanceHandler(c *gin.Context) {
	userID, _ := currentUser(c)

	b, err := h.Wallet.Balance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": gin.H{
			"pending":   b.Pending,
			"available": b.Available,
		},
		"history": b.History,
	})
}

func (h *Handler) WithdrawHandler(c *gin.Context) {
	userID, _ := currentUser(c)

	var requestBody struct {
		Amount   decimal.Decimal `json:"amount"`
		PixKey   string          `json:"pixKey"`
		FullName string          `json:"fullName"`
	}
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		bindError(c)
		return
	}

	entry, err := h.Wallet.Withdraw(c.Request.Context(), userID, requestBody.Amount, requestBody.PixKey, requestBody.FullName)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Saque solicitado com sucesso!",
		"withdraw": entry,
	})
}

func (h *Handler) CreateEscrowHandler(c *gin.Context) {
	userID, username := currentUser(c)

	var requestBody struct {
		ItemName    string          `json:"itemName"`
		Value       decimal.Decimal `json:"value"`
		Description string          `json:"description"`
	}
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		bindError(c)
		return
	}

	e, err := h.Escrows.Create(c.Request.Context(), userID, username, requestBody.ItemName, requestBody.Value, requestBody.Description)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Intermédio criado com sucesso!",
		"escrow":  e,
	})
}

func (h *Handler) JoinEscrowHandler(c *gin.Context) {
	userID, username := currentUser(c)

	var requestBody struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		bindError(c)
		return
	}

	e, err := h.Escrows.Join(c.Request.Context(), requestBody.Code, userID, username)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Você entrou no intermédio!",
		"escrow":  e,
	})
}

func (h *Handler) GetEscrowHandler(c *gin.Context) {
	userID, _ := currentUser(c)

	escrowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.New(apperr.NotFound, "Intermédio não encontrado"))
		return
	}

	e, err := h.Escrows.Get(c.Request.Context(), escrowID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "escrow": e})
}

func (h *Handler) ListEscrowsHandler(c *gin.Context) {
	userID, _ := currentUser(c)

	escrows, err := h.Escrows.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "escrows": escrows})
}

func (h *Handler) CompleteEscrowHandler(c *gin.Context) {
	userID, _ := currentUser(c)

	escrowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.New(apperr.NotFound, "Intermédio não encontrado"))
		return
	}

	e, err := h.Escrows.Complete(c.Request.Context(), escrowID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Intermédio concluído!",
		"escrow":  e,
	})
}

func (h *Handler) ConfirmPaymentHandler(c *gin.Context) {
	userID, _ := currentUser(c)

	escrowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.New(apperr.NotFound, "Intermédio não encontrado"))
		return
	}

	if err := h.Escrows.ConfirmPayment(c.Request.Context(), escrowID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Pagamento informado. Aguardando compensação.",
	})
}

func (h *Handler) SendMessageHandler(c *gin.Context) {
	userID, username := currentUser(c)

	escrowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.New(apperr.NotFound, "Intermédio não encontrado"))
		return
	}

	var requestBody struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		bindError(c)
		return
	}

	msg, err := h.Escrows.HandleMessage(c.Request.Context(), escrowID, userID, username, requestBody.Message)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "chatMessage": msg})
}

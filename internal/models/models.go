package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID               uuid.UUID       `json:"id"`
	Username         string          `json:"username"`
	Email            string          `json:"email"`
	PasswordHash     string          `json:"-"`
	PendingBalance   decimal.Decimal `json:"pendingBalance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	CreatedAt        time.Time       `json:"createdAt"`
}

type EscrowStatus string

const (
	StatusAwaitingBuyer  EscrowStatus = "awaiting_buyer"
	StatusWaitingPayment EscrowStatus = "waiting_payment"
	StatusPaid           EscrowStatus = "paid"
	StatusCompleted      EscrowStatus = "completed"
)

type Escrow struct {
	ID              uuid.UUID       `json:"id"`
	Code            string          `json:"code"`
	SellerID        uuid.UUID       `json:"sellerId"`
	SellerName      string          `json:"sellerName"`
	BuyerID         *uuid.UUID      `json:"buyerId,omitempty"`
	BuyerName       *string         `json:"buyerName,omitempty"`
	ItemName        string          `json:"itemName"`
	Description     string          `json:"description"`
	Value           decimal.Decimal `json:"value"`
	Status          EscrowStatus    `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	SettlementDueAt *time.Time      `json:"-"`
	Chat            []ChatMessage   `json:"chat"`
}

// IsParty reports whether userID is the seller or the recorded buyer.
func (e *Escrow) IsParty(userID uuid.UUID) bool {
	if e.SellerID == userID {
		return true
	}
	return e.BuyerID != nil && *e.BuyerID == userID
}

type MessageRole string

const (
	RoleSeller MessageRole = "seller"
	RoleBuyer  MessageRole = "buyer"
	RoleSystem MessageRole = "system"
)

// SystemSenderName is the display name attached to system messages.
const SystemSenderName = "Sistema"

// ChatMessage is immutable once appended; append order is the
// authoritative display order. SenderID is nil for system messages.
type ChatMessage struct {
	ID         uuid.UUID   `json:"id"`
	EscrowID   uuid.UUID   `json:"escrowId"`
	SenderID   *uuid.UUID  `json:"senderId,omitempty"`
	SenderName string      `json:"senderName"`
	Body       string      `json:"message"`
	Role       MessageRole `json:"type"`
	CreatedAt  time.Time   `json:"timestamp"`
}

type LedgerEntryType string

const (
	EntryPending  LedgerEntryType = "pending"
	EntryRelease  LedgerEntryType = "release"
	EntryWithdraw LedgerEntryType = "withdraw"
)

// LedgerEntry is one immutable record of a balance-affecting event.
type LedgerEntry struct {
	ID          uuid.UUID        `json:"id"`
	UserID      uuid.UUID        `json:"-"`
	Type        LedgerEntryType  `json:"type"`
	Amount      decimal.Decimal  `json:"amount"`
	Fee         *decimal.Decimal `json:"fee,omitempty"`
	Net         *decimal.Decimal `json:"netAmount,omitempty"`
	EscrowID    *uuid.UUID       `json:"escrowId,omitempty"`
	EscrowCode  *string          `json:"escrowCode,omitempty"`
	PixKey      *string          `json:"pixKey,omitempty"`
	FullName    *string          `json:"fullName,omitempty"`
	Description string           `json:"description"`
	Status      string           `json:"status"`
	CreatedAt   time.Time        `json:"timestamp"`
}

// BalanceUpdate is the payload of a balance_updated event, delivered
// only on the owning user's stream.
type BalanceUpdate struct {
	UserID           uuid.UUID       `json:"userId"`
	PendingBalance   decimal.Decimal `json:"pendingBalance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
}

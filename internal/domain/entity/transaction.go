package entity

import (
	"time"
)

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionInProgress TransactionStatus = "in_progress"
	TransactionCompleted  TransactionStatus = "completed"
	TransactionCancelled  TransactionStatus = "cancelled"
	TransactionDisputed   TransactionStatus = "disputed"
)

// IsOpen reports whether the transaction still holds its listing.
func (s TransactionStatus) IsOpen() bool {
	switch s {
	case TransactionPending, TransactionInProgress, TransactionDisputed:
		return true
	case TransactionCompleted, TransactionCancelled:
		return false
	}
	return false
}

func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionCompleted, TransactionCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCash     PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentTransfer, PaymentCash:
		return true
	}
	return false
}

type DisputeOutcome string

const (
	FavorCompletion   DisputeOutcome = "favor_completion"
	FavorCancellation DisputeOutcome = "favor_cancellation"
)

func (o DisputeOutcome) Valid() bool {
	return o == FavorCompletion || o == FavorCancellation
}

type Transaction struct {
	ID             string            `json:"id" firestore:"id"`
	ListingID      string            `json:"listing_id" firestore:"listingId"`
	BuyerID        string            `json:"buyer_id" firestore:"buyerId"`
	SellerID       string            `json:"seller_id" firestore:"sellerId"`
	ConversationID string            `json:"conversation_id,omitempty" firestore:"conversationId,omitempty"`
	Amount         int64             `json:"amount" firestore:"amount"`
	PaymentMethod  PaymentMethod     `json:"payment_method" firestore:"paymentMethod"`
	Status         TransactionStatus `json:"status" firestore:"status"`
	Notes          string            `json:"notes,omitempty" firestore:"notes,omitempty"`

	DisputeReason      string         `json:"dispute_reason,omitempty" firestore:"disputeReason,omitempty"`
	Resolution         DisputeOutcome `json:"resolution,omitempty" firestore:"resolution,omitempty"`
	CancellationReason string         `json:"cancellation_reason,omitempty" firestore:"cancellationReason,omitempty"`

	Version int64 `json:"version" firestore:"version"`

	CreatedAt        time.Time  `json:"created_at" firestore:"createdAt"`
	UpdatedAt        time.Time  `json:"updated_at" firestore:"updatedAt"`
	FundsConfirmedAt *time.Time `json:"funds_confirmed_at,omitempty" firestore:"fundsConfirmedAt,omitempty"`
	DisputedAt       *time.Time `json:"disputed_at,omitempty" firestore:"disputedAt,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" firestore:"completedAt,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty" firestore:"cancelledAt,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty" firestore:"resolvedAt,omitempty"`
}

func (t *Transaction) IsParty(userID string) bool {
	return userID != "" && (t.BuyerID == userID || t.SellerID == userID)
}

func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}

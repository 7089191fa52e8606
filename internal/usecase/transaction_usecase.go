package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/internal/infrastructure/lock"
	"pasarbekas/pkg/config"
	"pasarbekas/pkg/errors"
	"pasarbekas/pkg/logger"
)

type TransactionUseCase struct {
	transactionRepo repository.TransactionRepository
	listingRepo     repository.ListingRepository
	listings        *ListingUseCase
	chat            *ChatUseCase
	audit           *AuditUseCase
	authorizer      Authorizer
	locks           *lock.KeyedMutex
	clock           clockwork.Clock
	config          config.TransactionConfig
	validate        *validator.Validate
}

func NewTransactionUseCase(
	transactionRepo repository.TransactionRepository,
	listingRepo repository.ListingRepository,
	listings *ListingUseCase,
	chat *ChatUseCase,
	audit *AuditUseCase,
	authorizer Authorizer,
	locks *lock.KeyedMutex,
	clock clockwork.Clock,
	cfg config.TransactionConfig,
) *TransactionUseCase {
	return &TransactionUseCase{
		transactionRepo: transactionRepo,
		listingRepo:     listingRepo,
		listings:        listings,
		chat:            chat,
		audit:           audit,
		authorizer:      authorizer,
		locks:           locks,
		clock:           clock,
		config:          cfg,
		validate:        NewValidate(),
	}
}

type OpenTransactionInput struct {
	ListingID     string               `json:"listing_id" validate:"required"`
	Amount        int64                `json:"amount" validate:"gt=0"`
	PaymentMethod entity.PaymentMethod `json:"payment_method" validate:"required,payment_method"`
	// BuyerID defaults to the caller. The seller or an admin may open on a buyer's behalf.
	BuyerID        string `json:"buyer_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// DisputeContext is everything an admin needs to adjudicate a dispute.
type DisputeContext struct {
	Transaction  *entity.Transaction  `json:"transaction"`
	Listing      *entity.Listing      `json:"listing"`
	Conversation *entity.Conversation `json:"conversation,omitempty"`
	Messages     []*entity.Message    `json:"messages"`
	NextCursor   int64                `json:"next_cursor,omitempty"`
	Logs         []*entity.AuditEvent `json:"logs"`
}

func (uc *TransactionUseCase) Open(ctx context.Context, actor entity.Actor, input OpenTransactionInput) (*entity.Transaction, error) {
	if actor.IsZero() {
		return nil, errors.Unauthorized("Authentication required", nil)
	}
	input.Notes = strings.TrimSpace(input.Notes)
	if err := validateInput(uc.validate, input); err != nil {
		return nil, err
	}
	if uc.config.MaxNotesLength > 0 && len(input.Notes) > uc.config.MaxNotesLength {
		return nil, errors.Validation("Notes are too long", nil).With("max_length", uc.config.MaxNotesLength)
	}

	unlock := uc.locks.Lock(lock.ListingKey(input.ListingID))
	defer unlock()

	listing, err := uc.listingRepo.GetByID(ctx, input.ListingID)
	if err != nil {
		return nil, err
	}

	buyerID := input.BuyerID
	if buyerID == "" {
		buyerID = actor.ID
	}
	if buyerID == listing.SellerID {
		return nil, errors.Validation("Buyer and seller must be different users", nil).With("listing_id", listing.ID)
	}
	if actor.ID != buyerID && actor.ID != listing.SellerID && !uc.authorizer.HasCapability(actor, entity.CapabilityComplete) {
		return nil, errors.Forbidden("Only the buyer, the seller or an admin can open a transaction", nil)
	}

	if listing.Status != entity.ListingActive {
		return nil, errors.InvalidTransition("transaction", listing.ID, "none", string(entity.TransactionPending)).
			With("listing_status", string(listing.Status))
	}
	if input.Amount != listing.Price {
		return nil, errors.Validation("Amount must equal the listing price", nil).
			With("listing_id", listing.ID).
			With("amount", input.Amount).
			With("price", listing.Price)
	}

	if input.ConversationID != "" {
		if err := uc.checkConversation(ctx, input.ConversationID, listing, buyerID); err != nil {
			return nil, err
		}
	}

	now := uc.clock.Now().UTC()
	transaction := &entity.Transaction{
		ID:             uuid.New().String(),
		ListingID:      listing.ID,
		BuyerID:        buyerID,
		SellerID:       listing.SellerID,
		ConversationID: input.ConversationID,
		Amount:         listing.Price,
		PaymentMethod:  input.PaymentMethod,
		Status:         entity.TransactionPending,
		Notes:          input.Notes,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := uc.transactionRepo.Create(ctx, transaction); err != nil {
		return nil, err
	}

	uc.audit.Emit(ctx, actor.ID, entity.EventTransactionOpened, transaction.ID, map[string]interface{}{
		"listing_id":     listing.ID,
		"buyer_id":       transaction.BuyerID,
		"seller_id":      transaction.SellerID,
		"amount":         transaction.Amount,
		"payment_method": string(transaction.PaymentMethod),
	})
	uc.announce(ctx, transaction, fmt.Sprintf("Transaction opened for %d via %s.", transaction.Amount, transaction.PaymentMethod))

	return transaction, nil
}

func (uc *TransactionUseCase) checkConversation(ctx context.Context, conversationID string, listing *entity.Listing, buyerID string) error {
	conv, err := uc.chat.chatRepo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return errors.Validation("Conversation not found", err).With("conversation_id", conversationID)
		}
		return err
	}
	if conv.ListingID != listing.ID || !conv.HasParticipant(buyerID) || !conv.HasParticipant(listing.SellerID) {
		return errors.Validation("Conversation does not belong to this listing and buyer", nil).
			With("conversation_id", conversationID)
	}
	return nil
}

// step describes one edge of the transaction state machine.
type step struct {
	event entity.AuditEventType
	from  []entity.TransactionStatus
	to    entity.TransactionStatus
	// listingTarget is the status the listing must end in, or "" when the listing is untouched.
	listingTarget entity.ListingStatus
	authorize     func(actor entity.Actor, t *entity.Transaction) error
	apply         func(t *entity.Transaction, now time.Time)
	payload       map[string]interface{}
	announcement  string
}

func (uc *TransactionUseCase) ConfirmFunds(ctx context.Context, actor entity.Actor, transactionID string) (*entity.Transaction, error) {
	return uc.advance(ctx, actor, transactionID, step{
		event:     entity.EventTransactionFundsConfirmed,
		from:      []entity.TransactionStatus{entity.TransactionPending},
		to:        entity.TransactionInProgress,
		authorize: uc.partyOnly,
		apply: func(t *entity.Transaction, now time.Time) {
			t.FundsConfirmedAt = &now
		},
		announcement: "Funds confirmed. The transaction is in progress.",
	})
}

// Complete marks the sale done and the listing sold in one storage transaction.
func (uc *TransactionUseCase) Complete(ctx context.Context, actor entity.Actor, transactionID string) (*entity.Transaction, error) {
	return uc.advance(ctx, actor, transactionID, step{
		event:         entity.EventTransactionCompleted,
		from:          []entity.TransactionStatus{entity.TransactionInProgress},
		to:            entity.TransactionCompleted,
		listingTarget: entity.ListingSold,
		authorize:     uc.partyOr(entity.CapabilityComplete),
		apply: func(t *entity.Transaction, now time.Time) {
			t.CompletedAt = &now
		},
		announcement: "Transaction completed. The listing is now sold.",
	})
}

func (uc *TransactionUseCase) RaiseDispute(ctx context.Context, actor entity.Actor, transactionID, reason string) (*entity.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.Validation("A dispute reason is required", nil).With("id", transactionID)
	}

	return uc.advance(ctx, actor, transactionID, step{
		event:     entity.EventTransactionDisputed,
		from:      []entity.TransactionStatus{entity.TransactionInProgress},
		to:        entity.TransactionDisputed,
		authorize: uc.partyOnly,
		apply: func(t *entity.Transaction, now time.Time) {
			t.DisputeReason = reason
			t.DisputedAt = &now
		},
		payload:      map[string]interface{}{"reason": reason},
		announcement: "A dispute was raised: " + reason,
	})
}

// Resolve closes a dispute. Only actors with the resolve capability may call it,
// unlike Cancel which either party can use before a dispute.
func (uc *TransactionUseCase) Resolve(ctx context.Context, actor entity.Actor, transactionID string, outcome entity.DisputeOutcome) (*entity.Transaction, error) {
	if !outcome.Valid() {
		return nil, errors.Validation("Unknown dispute outcome", nil).With("outcome", string(outcome))
	}

	to, listingTarget := entity.TransactionCompleted, entity.ListingSold
	if outcome == entity.FavorCancellation {
		to, listingTarget = entity.TransactionCancelled, entity.ListingActive
	}

	return uc.advance(ctx, actor, transactionID, step{
		event:         entity.EventTransactionResolved,
		from:          []entity.TransactionStatus{entity.TransactionDisputed},
		to:            to,
		listingTarget: listingTarget,
		authorize: func(actor entity.Actor, _ *entity.Transaction) error {
			if !uc.authorizer.HasCapability(actor, entity.CapabilityResolve) {
				return errors.Forbidden("Resolving disputes requires the resolve capability", nil)
			}
			return nil
		},
		apply: func(t *entity.Transaction, now time.Time) {
			t.Resolution = outcome
			t.ResolvedAt = &now
			if to == entity.TransactionCompleted {
				t.CompletedAt = &now
			} else {
				t.CancelledAt = &now
			}
		},
		payload:      map[string]interface{}{"outcome": string(outcome)},
		announcement: fmt.Sprintf("The dispute was resolved (%s).", outcome),
	})
}

// Cancel aborts a transaction that has not been disputed and returns the listing to active.
func (uc *TransactionUseCase) Cancel(ctx context.Context, actor entity.Actor, transactionID, reason string) (*entity.Transaction, error) {
	reason = strings.TrimSpace(reason)
	return uc.advance(ctx, actor, transactionID, step{
		event:         entity.EventTransactionCancelled,
		from:          []entity.TransactionStatus{entity.TransactionPending, entity.TransactionInProgress},
		to:            entity.TransactionCancelled,
		listingTarget: entity.ListingActive,
		authorize:     uc.partyOr(entity.CapabilityCancel),
		apply: func(t *entity.Transaction, now time.Time) {
			t.CancellationReason = reason
			t.CancelledAt = &now
		},
		payload:      map[string]interface{}{"reason": reason},
		announcement: "Transaction cancelled. The listing is available again.",
	})
}

// advance applies s to the transaction. Locks are taken listing first, then transaction.
func (uc *TransactionUseCase) advance(ctx context.Context, actor entity.Actor, transactionID string, s step) (*entity.Transaction, error) {
	snapshot, err := uc.transactionRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	unlock := uc.locks.LockAll(lock.ListingKey(snapshot.ListingID), lock.TransactionKey(transactionID))
	defer unlock()

	current, err := uc.transactionRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, current); err != nil {
		return nil, err
	}
	if !statusIn(current.Status, s.from) {
		return nil, errors.InvalidTransition("transaction", current.ID, string(current.Status), string(s.to))
	}

	now := uc.clock.Now().UTC()
	next := current.Clone()
	next.Status = s.to
	next.Version = current.Version + 1
	next.UpdatedAt = now
	s.apply(next, now)

	var listingFrom entity.ListingStatus
	var listingNext *entity.Listing
	if s.listingTarget == "" {
		if err := uc.transactionRepo.CompareAndSwap(ctx, next, current.Version); err != nil {
			return nil, err
		}
	} else {
		listing, err := uc.listingRepo.GetByID(ctx, current.ListingID)
		if err != nil {
			return nil, err
		}
		listingFrom = listing.Status

		// A listing already in the target state is written back unchanged so its version is still checked.
		write := listing
		if listing.Status != s.listingTarget {
			if listingNext, err = uc.listings.nextState(listing, s.listingTarget); err != nil {
				return nil, err
			}
			write = listingNext
		}
		if err := uc.transactionRepo.CompareAndSwapWithListing(ctx, next, current.Version, write, listing.Version); err != nil {
			return nil, err
		}
	}

	if listingNext != nil {
		uc.listings.recordTransition(ctx, actor, listingFrom, listingNext)
	}

	payload := map[string]interface{}{
		"listing_id": next.ListingID,
		"buyer_id":   next.BuyerID,
		"seller_id":  next.SellerID,
		"from":       string(current.Status),
		"to":         string(next.Status),
	}
	for k, v := range s.payload {
		payload[k] = v
	}
	uc.audit.Emit(ctx, actor.ID, s.event, next.ID, payload)
	uc.announce(ctx, next, s.announcement)

	return next, nil
}

func statusIn(status entity.TransactionStatus, set []entity.TransactionStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func (uc *TransactionUseCase) partyOnly(actor entity.Actor, t *entity.Transaction) error {
	if !t.IsParty(actor.ID) {
		return errors.Forbidden("Only the buyer or the seller can do this", nil).With("id", t.ID)
	}
	return nil
}

func (uc *TransactionUseCase) partyOr(capability entity.Capability) func(entity.Actor, *entity.Transaction) error {
	return func(actor entity.Actor, t *entity.Transaction) error {
		if t.IsParty(actor.ID) || uc.authorizer.HasCapability(actor, capability) {
			return nil
		}
		return errors.Forbidden(fmt.Sprintf("Only the buyer, the seller or an actor with %s can do this", capability), nil).
			With("id", t.ID)
	}
}

// announce posts a system message into the linked conversation when enabled.
func (uc *TransactionUseCase) announce(ctx context.Context, t *entity.Transaction, text string) {
	if !uc.config.PostSystemMessages || t.ConversationID == "" || text == "" {
		return
	}
	if _, err := uc.chat.SendSystem(ctx, t.ConversationID, text); err != nil {
		logger.LogTransactionError(t.ID, "announce", err)
	}
}

func (uc *TransactionUseCase) canView(actor entity.Actor, t *entity.Transaction) bool {
	return t.IsParty(actor.ID) ||
		uc.authorizer.HasCapability(actor, entity.CapabilityResolve) ||
		uc.authorizer.HasCapability(actor, entity.CapabilityComplete)
}

func (uc *TransactionUseCase) Get(ctx context.Context, actor entity.Actor, transactionID string) (*entity.Transaction, error) {
	t, err := uc.transactionRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !uc.canView(actor, t) {
		return nil, errors.Forbidden("You don't have permission to view this transaction", nil)
	}
	return t, nil
}

// ListByUser lists the caller's transactions. role is buyer, seller or empty for both.
func (uc *TransactionUseCase) ListByUser(ctx context.Context, userID, role string, status entity.TransactionStatus, limit, offset int) ([]*entity.Transaction, int64, error) {
	return uc.transactionRepo.ListByUserID(ctx, userID, role, status, limit, offset)
}

// ListAll is the admin view over every transaction.
func (uc *TransactionUseCase) ListAll(ctx context.Context, actor entity.Actor, status entity.TransactionStatus, limit, offset int) ([]*entity.Transaction, int64, error) {
	if !uc.authorizer.HasCapability(actor, entity.CapabilityResolve) {
		return nil, 0, errors.Forbidden("Listing all transactions requires the resolve capability", nil)
	}
	return uc.transactionRepo.List(ctx, status, limit, offset)
}

func (uc *TransactionUseCase) ListByListing(ctx context.Context, actor entity.Actor, listingID string) ([]*entity.Transaction, error) {
	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != actor.ID && !uc.authorizer.HasCapability(actor, entity.CapabilityResolve) {
		return nil, errors.Forbidden("Only the seller can list transactions for this listing", nil)
	}
	return uc.transactionRepo.ListByListing(ctx, listingID)
}

// Logs returns the audit trail recorded against the transaction.
func (uc *TransactionUseCase) Logs(ctx context.Context, actor entity.Actor, transactionID string) ([]*entity.AuditEvent, error) {
	if _, err := uc.Get(ctx, actor, transactionID); err != nil {
		return nil, err
	}
	return uc.audit.List(ctx, repository.AuditFilter{SubjectID: transactionID}, 0, 0)
}

// DisputeContext gathers the transaction, its listing, audit trail and chat history for adjudication.
func (uc *TransactionUseCase) DisputeContext(ctx context.Context, actor entity.Actor, transactionID string, page Pagination) (*DisputeContext, error) {
	if !uc.authorizer.HasCapability(actor, entity.CapabilityResolve) {
		return nil, errors.Forbidden("Dispute review requires the resolve capability", nil)
	}

	t, err := uc.transactionRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	listing, err := uc.listingRepo.GetByID(ctx, t.ListingID)
	if err != nil {
		return nil, err
	}
	logs, err := uc.audit.List(ctx, repository.AuditFilter{SubjectID: transactionID}, 0, 0)
	if err != nil {
		return nil, err
	}

	out := &DisputeContext{
		Transaction: t,
		Listing:     listing,
		Messages:    []*entity.Message{},
		Logs:        logs,
	}

	var conv *entity.Conversation
	if t.ConversationID != "" {
		conv, err = uc.chat.chatRepo.GetConversation(ctx, t.ConversationID)
	} else {
		conv, err = uc.chat.conversationFor(ctx, t.ListingID, t.BuyerID, t.SellerID)
	}
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return out, nil
		}
		return nil, err
	}

	out.Conversation = conv
	out.Messages, out.NextCursor, err = collectPage(uc.chat.history(ctx, conv, page), conv, page)
	if err != nil {
		return nil, err
	}
	return out, nil
}

package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/pkg/errors"
)

func openTransaction(t *testing.T, h *harness, l *entity.Listing, conversationID string) *entity.Transaction {
	t.Helper()
	tx, err := h.transactions.Open(context.Background(), buyer, OpenTransactionInput{
		ListingID:      l.ID,
		Amount:         l.Price,
		PaymentMethod:  entity.PaymentCard,
		ConversationID: conversationID,
	})
	require.NoError(t, err)
	return tx
}

func listingStatus(t *testing.T, h *harness, id string) entity.ListingStatus {
	t.Helper()
	l, err := h.listings.Get(context.Background(), id)
	require.NoError(t, err)
	return l.Status
}

func TestTransaction_OpenGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.activeListing(t, 5000)

	_, err := h.transactions.Open(ctx, buyer, OpenTransactionInput{ListingID: l.ID, Amount: 4999, PaymentMethod: entity.PaymentCard})
	assert.True(t, errors.Is(err, errors.CodeValidation), "amount must match price")

	_, err = h.transactions.Open(ctx, buyer, OpenTransactionInput{ListingID: l.ID, Amount: 5000, PaymentMethod: "barter"})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = h.transactions.Open(ctx, seller, OpenTransactionInput{ListingID: l.ID, Amount: 5000, PaymentMethod: entity.PaymentCash})
	assert.True(t, errors.Is(err, errors.CodeValidation), "seller can't buy their own listing")

	_, err = h.transactions.Open(ctx, other, OpenTransactionInput{ListingID: l.ID, Amount: 5000, PaymentMethod: entity.PaymentCash, BuyerID: buyer.ID})
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	pending := h.createListing(t, 900000)
	_, err = h.transactions.Open(ctx, buyer, OpenTransactionInput{ListingID: pending.ID, Amount: 900000, PaymentMethod: entity.PaymentCard})
	assert.True(t, errors.Is(err, errors.CodeInvalidTransition))

	tx := openTransaction(t, h, l, "")
	assert.Equal(t, entity.TransactionPending, tx.Status)
	assert.Equal(t, seller.ID, tx.SellerID)
	assert.Equal(t, entity.ListingActive, listingStatus(t, h, l.ID))

	_, err = h.transactions.Open(ctx, other, OpenTransactionInput{ListingID: l.ID, Amount: 5000, PaymentMethod: entity.PaymentCard})
	assert.True(t, errors.Is(err, errors.CodeConcurrentModification), "one open transaction per listing")
}

func TestTransaction_ConcurrentOpenOneWins(t *testing.T) {
	h := newHarness(t)
	l := h.activeListing(t, 5000)

	buyers := []entity.Actor{buyer, other}
	errs := make([]error, len(buyers))
	var wg sync.WaitGroup
	for i, b := range buyers {
		wg.Add(1)
		go func(i int, b entity.Actor) {
			defer wg.Done()
			_, errs[i] = h.transactions.Open(context.Background(), b, OpenTransactionInput{
				ListingID:     l.ID,
				Amount:        l.Price,
				PaymentMethod: entity.PaymentTransfer,
			})
		}(i, b)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errors.CodeConcurrentModification):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
}

func TestTransaction_CompleteSellsListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.activeListing(t, 5000)
	tx := openTransaction(t, h, l, "")

	_, err := h.transactions.Complete(ctx, buyer, tx.ID)
	assert.True(t, errors.Is(err, errors.CodeInvalidTransition), "pending can't complete")

	_, err = h.transactions.ConfirmFunds(ctx, other, tx.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	tx, err = h.transactions.ConfirmFunds(ctx, seller, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionInProgress, tx.Status)
	require.NotNil(t, tx.FundsConfirmedAt)

	done, err := h.transactions.Complete(ctx, buyer, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, entity.ListingSold, listingStatus(t, h, l.ID))

	_, err = h.transactions.Cancel(ctx, buyer, tx.ID, "changed my mind")
	assert.True(t, errors.Is(err, errors.CodeInvalidTransition), "completed is terminal")
	assert.Equal(t, entity.ListingSold, listingStatus(t, h, l.ID))

	events := h.auditEvents(t, repository.AuditFilter{SubjectID: l.ID, EventType: entity.EventListingTransition})
	require.NotEmpty(t, events)
	assert.Equal(t, "sold", events[len(events)-1].Payload["to"])
}

func TestTransaction_AdminCanCompleteOnBehalf(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.activeListing(t, 5000)
	tx := openTransaction(t, h, l, "")
	_, err := h.transactions.ConfirmFunds(ctx, buyer, tx.ID)
	require.NoError(t, err)

	_, err = h.transactions.Complete(ctx, other, tx.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = h.transactions.Complete(ctx, admin, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingSold, listingStatus(t, h, l.ID))
}

func TestTransaction_CancelRevertsListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.activeListing(t, 5000)

	tx := openTransaction(t, h, l, "")
	_, err := h.transactions.ConfirmFunds(ctx, buyer, tx.ID)
	require.NoError(t, err)

	cancelled, err := h.transactions.Cancel(ctx, seller, tx.ID, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionCancelled, cancelled.Status)
	assert.Equal(t, "out of stock", cancelled.CancellationReason)
	assert.Equal(t, entity.ListingActive, listingStatus(t, h, l.ID))

	// The listing is free again.
	again := openTransaction(t, h, l, "")
	assert.NotEqual(t, tx.ID, again.ID)
}

func TestTransaction_DisputeRequiresResolveCapability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.activeListing(t, 5000)
	tx := openTransaction(t, h, l, "")

	_, err := h.transactions.RaiseDispute(ctx, buyer, tx.ID, "broken")
	assert.True(t, errors.Is(err, errors.CodeInvalidTransition), "only in-progress transactions can be disputed")

	_, err = h.transactions.ConfirmFunds(ctx, buyer, tx.ID)
	require.NoError(t, err)

	_, err = h.transactions.RaiseDispute(ctx, buyer, tx.ID, "  ")
	assert.True(t, errors.Is(err, errors.CodeValidation))

	disputed, err := h.transactions.RaiseDispute(ctx, buyer, tx.ID, "broken")
	require.NoError(t, err)
	assert.Equal(t, "broken", disputed.DisputeReason)

	_, err = h.transactions.Cancel(ctx, buyer, tx.ID, "")
	assert.True(t, errors.Is(err, errors.CodeInvalidTransition), "disputes are only closed by resolve")

	_, err = h.transactions.Resolve(ctx, seller, tx.ID, entity.FavorCompletion)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = h.transactions.Resolve(ctx, admin, tx.ID, "split")
	assert.True(t, errors.Is(err, errors.CodeValidation))

	resolved, err := h.transactions.Resolve(ctx, admin, tx.ID, entity.FavorCompletion)
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionCompleted, resolved.Status)
	assert.Equal(t, entity.FavorCompletion, resolved.Resolution)
	assert.Equal(t, entity.ListingSold, listingStatus(t, h, l.ID))
}

func TestTransaction_VisibilityAndLogs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.activeListing(t, 5000)
	tx := openTransaction(t, h, l, "")

	_, err := h.transactions.Get(ctx, other, tx.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	got, err := h.transactions.Get(ctx, seller, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)

	mine, total, err := h.transactions.ListByUser(ctx, buyer.ID, "buyer", "", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, mine, 1)

	_, err = h.transactions.ListByListing(ctx, buyer, l.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	logs, err := h.transactions.Logs(ctx, buyer, tx.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, entity.EventTransactionOpened, logs[0].EventType)
}

func TestTransaction_EndToEndDisputeCancellation(t *testing.T) {
	h := newHarness(t, withAutoApproveThreshold(500000), withSystemMessages())
	ctx := context.Background()

	l := h.createListing(t, 100000)
	l, err := h.moderation.SubmitForReview(ctx, seller, l.ID)
	require.NoError(t, err)
	require.Equal(t, entity.ListingActive, l.Status)

	conv, err := h.chat.OpenConversation(ctx, l.ID, buyer.ID, seller.ID)
	require.NoError(t, err)
	for _, m := range []struct{ from, body string }{
		{buyer.ID, "Hi, is the bike available?"},
		{seller.ID, "Yes it is."},
		{buyer.ID, "Great, paying by card."},
	} {
		_, err := h.chat.Send(ctx, conv.ID, m.from, m.body)
		require.NoError(t, err)
	}

	tx, err := h.transactions.Open(ctx, buyer, OpenTransactionInput{
		ListingID:      l.ID,
		Amount:         100000,
		PaymentMethod:  entity.PaymentCard,
		ConversationID: conv.ID,
	})
	require.NoError(t, err)
	_, err = h.transactions.ConfirmFunds(ctx, buyer, tx.ID)
	require.NoError(t, err)
	_, err = h.transactions.RaiseDispute(ctx, buyer, tx.ID, "item broken")
	require.NoError(t, err)

	review, err := h.transactions.DisputeContext(ctx, admin, tx.ID, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, review.Conversation.ID)
	assert.Len(t, review.Messages, 6, "three chat messages plus three system notices")

	final, err := h.transactions.Resolve(ctx, admin, tx.ID, entity.FavorCancellation)
	require.NoError(t, err)

	assert.Equal(t, entity.TransactionCancelled, final.Status)
	assert.Equal(t, entity.ListingActive, listingStatus(t, h, l.ID))

	assert.Equal(t, 3, h.auditCount(entity.EventMessageSent))
	txEvents := h.auditEvents(t, repository.AuditFilter{SubjectID: tx.ID})
	types := make([]entity.AuditEventType, 0, len(txEvents))
	for _, e := range txEvents {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []entity.AuditEventType{
		entity.EventTransactionOpened,
		entity.EventTransactionFundsConfirmed,
		entity.EventTransactionDisputed,
		entity.EventTransactionResolved,
	}, types)
	assert.Equal(t, "favor_cancellation", txEvents[3].Payload["outcome"])

	history, _, err := h.chat.HistoryPage(ctx, buyer, conv.ID, Pagination{})
	require.NoError(t, err)
	assert.Len(t, history, 7)
	assert.Equal(t, entity.MessageSystem, history[len(history)-1].Type)
}

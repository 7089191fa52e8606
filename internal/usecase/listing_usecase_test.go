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

func TestListingUseCase_CreateValidates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.listings.Create(ctx, seller, CreateListingInput{Title: " ", Price: 0, Category: "weapons", Condition: entity.ConditionGood})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = h.listings.Create(ctx, entity.Actor{}, CreateListingInput{Title: "x", Price: 1, Category: entity.CategoryBooks, Condition: entity.ConditionNew})
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))

	l := h.createListing(t, 5000)
	assert.Equal(t, entity.ListingPending, l.Status)
	assert.EqualValues(t, 1, l.Version)
	assert.Equal(t, seller.ID, l.SellerID)
	assert.Equal(t, 1, h.auditCount(entity.EventListingCreated))
}

func TestListingUseCase_TransitionEdges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.createListing(t, 5000)

	_, err := h.listings.Transition(ctx, l.ID, entity.ListingSold, admin)
	assert.True(t, errors.Is(err, errors.CodeInvalidTransition), "pending -> sold is not an edge")

	active, err := h.listings.Transition(ctx, l.ID, entity.ListingActive, admin)
	require.NoError(t, err)
	assert.EqualValues(t, 2, active.Version)

	_, err = h.listings.Transition(ctx, l.ID, entity.ListingPending, admin)
	assert.True(t, errors.Is(err, errors.CodeInvalidTransition))

	_, err = h.listings.Transition(ctx, l.ID, "archived", admin)
	assert.True(t, errors.Is(err, errors.CodeValidation))

	sold, err := h.listings.Transition(ctx, l.ID, entity.ListingSold, admin)
	require.NoError(t, err)
	assert.EqualValues(t, 3, sold.Version)

	events := h.auditEvents(t, repository.AuditFilter{SubjectID: l.ID, EventType: entity.EventListingTransition})
	require.Len(t, events, 2)
	assert.Equal(t, "pending", events[0].Payload["from"])
	assert.Equal(t, "sold", events[1].Payload["to"])
}

func TestListingUseCase_TransitionAtStaleVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.createListing(t, 5000)

	_, err := h.listings.TransitionAt(ctx, l.ID, l.Version, entity.ListingActive, admin)
	require.NoError(t, err)

	_, err = h.listings.TransitionAt(ctx, l.ID, l.Version, entity.ListingRejected, admin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeConcurrentModification))

	got, err := h.listings.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingActive, got.Status)
}

func TestListingUseCase_ConcurrentTransitionsHaveOneWinner(t *testing.T) {
	for run := 0; run < 20; run++ {
		h := newHarness(t)
		ctx := context.Background()
		l := h.createListing(t, 5000)

		targets := []entity.ListingStatus{entity.ListingActive, entity.ListingRejected}
		results := make([]*entity.Listing, len(targets))
		errs := make([]error, len(targets))

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i, target := range targets {
			wg.Add(1)
			go func(i int, target entity.ListingStatus) {
				defer wg.Done()
				<-start
				results[i], errs[i] = h.listings.Transition(ctx, l.ID, target, admin)
			}(i, target)
		}
		close(start)
		wg.Wait()

		var winner *entity.Listing
		for i, err := range errs {
			if err == nil {
				require.Nil(t, winner, "only one transition may win")
				winner = results[i]
				continue
			}
			assert.True(t, errors.Is(err, errors.CodeConcurrentModification) || errors.Is(err, errors.CodeInvalidTransition), err.Error())
		}
		require.NotNil(t, winner)

		got, err := h.listings.Get(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, winner.Status, got.Status)
		assert.EqualValues(t, 2, got.Version)

		events := h.auditEvents(t, repository.AuditFilter{SubjectID: l.ID, EventType: entity.EventListingTransition})
		assert.Len(t, events, 1)
	}
}

func TestListingUseCase_Update(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.createListing(t, 5000)

	price := int64(6000)
	title := "Road bike, barely used"
	updated, err := h.listings.Update(ctx, seller, l.ID, UpdateListingInput{Title: &title, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.EqualValues(t, 6000, updated.Price)
	assert.EqualValues(t, 2, updated.Version)

	_, err = h.listings.Update(ctx, other, l.ID, UpdateListingInput{Title: &title})
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = h.listings.Transition(ctx, l.ID, entity.ListingActive, admin)
	require.NoError(t, err)

	price = 7000
	_, err = h.listings.Update(ctx, seller, l.ID, UpdateListingInput{Price: &price})
	assert.Error(t, err, "price is frozen once active")
}

func TestListingUseCase_AdminEdit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.createListing(t, 5000)

	title := "Bicycle"
	_, err := h.listings.AdminEdit(ctx, seller, l.ID, AdminEditInput{UpdateListingInput: UpdateListingInput{Title: &title}, Reason: "typo"})
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	edited, err := h.listings.AdminEdit(ctx, admin, l.ID, AdminEditInput{UpdateListingInput: UpdateListingInput{Title: &title}, Reason: "typo"})
	require.NoError(t, err)
	assert.Equal(t, "Bicycle", edited.Title)

	events := h.auditEvents(t, repository.AuditFilter{SubjectID: l.ID, EventType: entity.EventListingAdminEdited})
	require.Len(t, events, 1)
	assert.Equal(t, admin.ID, events[0].Actor)
	assert.Equal(t, "typo", events[0].Payload["reason"])
}

func TestListingUseCase_ListWithPredicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createListing(t, 1000)
	h.createListing(t, 2000)
	h.createListing(t, 3000)

	items, total, err := h.listings.List(ctx, ListingQuery{
		ListingFilter: repository.ListingFilter{SellerID: seller.ID},
		Predicate:     func(l *entity.Listing) bool { return l.Price >= 2000 },
	}, 1, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 1)
}

func TestModeration_AutoApproveThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cheap := h.createListing(t, 100000)
	got, err := h.moderation.SubmitForReview(ctx, seller, cheap.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingActive, got.Status, "at the threshold is auto-approved")

	events := h.auditEvents(t, repository.AuditFilter{SubjectID: cheap.ID, EventType: entity.EventListingTransition})
	require.Len(t, events, 1)
	assert.Equal(t, entity.SystemActorID, events[0].Actor)
	assert.Equal(t, 1, h.auditCount(entity.EventModerationAutoApproved))

	pricey := h.createListing(t, 100001)
	got, err = h.moderation.SubmitForReview(ctx, seller, pricey.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingPending, got.Status)
	assert.Equal(t, 1, h.auditCount(entity.EventModerationSubmitted))

	pending, total, err := h.moderation.ListPending(ctx, admin, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, pricey.ID, pending[0].ID)

	_, _, err = h.moderation.ListPending(ctx, seller, 10, 0)
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestModeration_RejectAndResubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.createListing(t, 900000)

	_, err := h.moderation.Reject(ctx, seller, l.ID, "no")
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = h.moderation.Reject(ctx, admin, l.ID, "   ")
	assert.True(t, errors.Is(err, errors.CodeValidation))

	rejected, err := h.moderation.Reject(ctx, admin, l.ID, "blurry photos")
	require.NoError(t, err)
	assert.Equal(t, entity.ListingRejected, rejected.Status)
	assert.Equal(t, "blurry photos", rejected.RejectionReason)

	_, err = h.moderation.Approve(ctx, admin, l.ID)
	assert.True(t, errors.Is(err, errors.CodeInvalidTransition), "rejected listings can't be approved directly")

	_, err = h.moderation.Resubmit(ctx, other, l.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	again, err := h.moderation.Resubmit(ctx, seller, l.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingPending, again.Status)
	assert.Empty(t, again.RejectionReason)

	approved, err := h.moderation.Approve(ctx, admin, l.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingActive, approved.Status)
}

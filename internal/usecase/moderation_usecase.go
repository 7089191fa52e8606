package usecase

import (
	"context"
	"strings"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/pkg/config"
	"pasarbekas/pkg/errors"
)

type ModerationUseCase struct {
	listings   *ListingUseCase
	audit      *AuditUseCase
	authorizer Authorizer
	config     config.ModerationConfig
}

func NewModerationUseCase(
	listings *ListingUseCase,
	audit *AuditUseCase,
	authorizer Authorizer,
	cfg config.ModerationConfig,
) *ModerationUseCase {
	return &ModerationUseCase{
		listings:   listings,
		audit:      audit,
		authorizer: authorizer,
		config:     cfg,
	}
}

// SubmitForReview queues a pending listing. Listings priced at or below the auto-approve
// threshold go live immediately on behalf of the system actor.
func (uc *ModerationUseCase) SubmitForReview(ctx context.Context, actor entity.Actor, listingID string) (*entity.Listing, error) {
	listing, err := uc.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != actor.ID && !uc.authorizer.HasCapability(actor, entity.CapabilityModerate) {
		return nil, errors.Forbidden("Only the seller can submit this listing for review", nil)
	}
	if listing.Status != entity.ListingPending {
		return nil, errors.InvalidTransition("listing", listing.ID, string(listing.Status), string(entity.ListingActive)).
			With("reason", "only pending listings can be submitted for review")
	}

	if listing.Price <= uc.config.AutoApproveThreshold {
		approved, err := uc.listings.transitionFrom(ctx, listing, entity.ListingActive, entity.SystemActor(), nil)
		if err != nil {
			return nil, err
		}
		uc.audit.Emit(ctx, entity.SystemActorID, entity.EventModerationAutoApproved, listing.ID, map[string]interface{}{
			"seller_id":    listing.SellerID,
			"submitted_by": actor.ID,
			"price":        listing.Price,
			"threshold":    uc.config.AutoApproveThreshold,
		})
		return approved, nil
	}

	uc.audit.Emit(ctx, actor.ID, entity.EventModerationSubmitted, listing.ID, map[string]interface{}{
		"seller_id": listing.SellerID,
		"price":     listing.Price,
		"threshold": uc.config.AutoApproveThreshold,
	})
	return listing, nil
}

func (uc *ModerationUseCase) Approve(ctx context.Context, actor entity.Actor, listingID string) (*entity.Listing, error) {
	if err := uc.requireModerator(actor); err != nil {
		return nil, err
	}

	listing, err := uc.listings.Transition(ctx, listingID, entity.ListingActive, actor)
	if err != nil {
		return nil, err
	}

	uc.audit.Emit(ctx, actor.ID, entity.EventModerationApproved, listing.ID, map[string]interface{}{
		"seller_id": listing.SellerID,
	})
	return listing, nil
}

// Reject requires a reason. A rejected listing stays rejected until its seller resubmits it.
func (uc *ModerationUseCase) Reject(ctx context.Context, actor entity.Actor, listingID, reason string) (*entity.Listing, error) {
	if err := uc.requireModerator(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.Validation("A rejection reason is required", nil).With("id", listingID)
	}

	snapshot, err := uc.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	listing, err := uc.listings.transitionFrom(ctx, snapshot, entity.ListingRejected, actor, func(l *entity.Listing) {
		l.RejectionReason = reason
	})
	if err != nil {
		return nil, err
	}

	uc.audit.Emit(ctx, actor.ID, entity.EventModerationRejected, listing.ID, map[string]interface{}{
		"seller_id": listing.SellerID,
		"reason":    reason,
	})
	return listing, nil
}

// Resubmit moves a rejected listing back to pending and runs it through review again.
func (uc *ModerationUseCase) Resubmit(ctx context.Context, actor entity.Actor, listingID string) (*entity.Listing, error) {
	snapshot, err := uc.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if snapshot.SellerID != actor.ID {
		return nil, errors.Forbidden("Only the seller can resubmit this listing", nil)
	}

	pending, err := uc.listings.transitionFrom(ctx, snapshot, entity.ListingPending, actor, nil)
	if err != nil {
		return nil, err
	}

	uc.audit.Emit(ctx, actor.ID, entity.EventModerationResubmitted, pending.ID, map[string]interface{}{
		"seller_id":       pending.SellerID,
		"previous_reason": snapshot.RejectionReason,
	})

	return uc.SubmitForReview(ctx, actor, listingID)
}

func (uc *ModerationUseCase) ListPending(ctx context.Context, actor entity.Actor, limit, offset int) ([]*entity.Listing, int64, error) {
	if err := uc.requireModerator(actor); err != nil {
		return nil, 0, err
	}
	return uc.listings.List(ctx, ListingQuery{
		ListingFilter: repository.ListingFilter{Status: entity.ListingPending},
	}, limit, offset)
}

func (uc *ModerationUseCase) requireModerator(actor entity.Actor) error {
	if !uc.authorizer.HasCapability(actor, entity.CapabilityModerate) {
		return errors.Forbidden("Moderation requires the moderate capability", nil)
	}
	return nil
}

package usecase

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/internal/infrastructure/lock"
	"pasarbekas/pkg/errors"
)

type ListingUseCase struct {
	listingRepo repository.ListingRepository
	audit       *AuditUseCase
	authorizer  Authorizer
	locks       *lock.KeyedMutex
	clock       clockwork.Clock
	validate    *validator.Validate
}

func NewListingUseCase(
	listingRepo repository.ListingRepository,
	audit *AuditUseCase,
	authorizer Authorizer,
	locks *lock.KeyedMutex,
	clock clockwork.Clock,
) *ListingUseCase {
	return &ListingUseCase{
		listingRepo: listingRepo,
		audit:       audit,
		authorizer:  authorizer,
		locks:       locks,
		clock:       clock,
		validate:    NewValidate(),
	}
}

type CreateListingInput struct {
	Title       string           `json:"title" validate:"required,max=120"`
	Description string           `json:"description" validate:"max=5000"`
	Price       int64            `json:"price" validate:"gt=0"`
	Category    entity.Category  `json:"category" validate:"required,listing_category"`
	Condition   entity.Condition `json:"condition" validate:"required,listing_condition"`
	Location    string           `json:"location" validate:"max=120"`
}

// UpdateListingInput carries the fields a seller wants to change. Nil fields are left alone.
type UpdateListingInput struct {
	Title       *string           `json:"title,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string           `json:"description,omitempty" validate:"omitempty,max=5000"`
	Price       *int64            `json:"price,omitempty" validate:"omitempty,gt=0"`
	Category    *entity.Category  `json:"category,omitempty" validate:"omitempty,listing_category"`
	Condition   *entity.Condition `json:"condition,omitempty" validate:"omitempty,listing_condition"`
	Location    *string           `json:"location,omitempty" validate:"omitempty,max=120"`
}

type AdminEditInput struct {
	UpdateListingInput
	Reason string `json:"reason" validate:"required,max=500"`
}

// ListingQuery filters listings in storage, then applies Predicate in memory.
type ListingQuery struct {
	repository.ListingFilter
	Predicate func(*entity.Listing) bool
}

func (uc *ListingUseCase) Create(ctx context.Context, actor entity.Actor, input CreateListingInput) (*entity.Listing, error) {
	if actor.IsZero() {
		return nil, errors.Unauthorized("Authentication required", nil)
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Location = strings.TrimSpace(input.Location)
	if err := validateInput(uc.validate, input); err != nil {
		return nil, err
	}

	now := uc.clock.Now().UTC()
	listing := &entity.Listing{
		ID:          uuid.New().String(),
		Title:       input.Title,
		Description: input.Description,
		Price:       input.Price,
		Category:    input.Category,
		Condition:   input.Condition,
		Location:    input.Location,
		SellerID:    actor.ID,
		Status:      entity.ListingPending,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.listingRepo.Create(ctx, listing); err != nil {
		return nil, err
	}

	uc.audit.Emit(ctx, actor.ID, entity.EventListingCreated, listing.ID, map[string]interface{}{
		"seller_id": listing.SellerID,
		"price":     listing.Price,
		"category":  string(listing.Category),
	})

	return listing, nil
}

func (uc *ListingUseCase) Get(ctx context.Context, id string) (*entity.Listing, error) {
	return uc.listingRepo.GetByID(ctx, id)
}

func (uc *ListingUseCase) List(ctx context.Context, query ListingQuery, limit, offset int) ([]*entity.Listing, int64, error) {
	if query.Predicate == nil {
		return uc.listingRepo.List(ctx, query.ListingFilter, limit, offset)
	}

	all, _, err := uc.listingRepo.List(ctx, query.ListingFilter, 0, 0)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*entity.Listing, 0, len(all))
	for _, l := range all {
		if query.Predicate(l) {
			matched = append(matched, l)
		}
	}

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*entity.Listing{}, total, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

// Transition moves a listing along one edge of its state machine.
// The edge is checked against a snapshot and committed only if nobody wrote in between.
func (uc *ListingUseCase) Transition(ctx context.Context, listingID string, target entity.ListingStatus, actor entity.Actor) (*entity.Listing, error) {
	snapshot, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	return uc.transitionFrom(ctx, snapshot, target, actor, nil)
}

// TransitionAt is Transition for callers that already hold a version, e.g. from an If-Match header.
func (uc *ListingUseCase) TransitionAt(ctx context.Context, listingID string, expectedVersion int64, target entity.ListingStatus, actor entity.Actor) (*entity.Listing, error) {
	snapshot, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if snapshot.Version != expectedVersion {
		return nil, errors.ConcurrentModification("listing", listingID).
			With("expected_version", expectedVersion).
			With("current_version", snapshot.Version)
	}
	return uc.transitionFrom(ctx, snapshot, target, actor, nil)
}

func (uc *ListingUseCase) transitionFrom(ctx context.Context, snapshot *entity.Listing, target entity.ListingStatus, actor entity.Actor, mutate func(*entity.Listing)) (*entity.Listing, error) {
	next, err := uc.nextState(snapshot, target)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(next)
	}

	unlock := uc.locks.Lock(lock.ListingKey(snapshot.ID))
	defer unlock()

	if err := uc.listingRepo.CompareAndSwap(ctx, next, snapshot.Version); err != nil {
		return nil, err
	}

	uc.recordTransition(ctx, actor, snapshot.Status, next)
	return next, nil
}

// nextState validates the edge from current to target and returns the successor.
// current is not modified.
func (uc *ListingUseCase) nextState(current *entity.Listing, target entity.ListingStatus) (*entity.Listing, error) {
	if !target.Valid() {
		return nil, errors.Validation("Unknown listing status", nil).With("status", string(target))
	}
	if !current.Status.CanTransitionTo(target) {
		return nil, errors.InvalidTransition("listing", current.ID, string(current.Status), string(target))
	}

	next := current.Clone()
	next.Status = target
	next.Version = current.Version + 1
	next.UpdatedAt = uc.clock.Now().UTC()
	if target != entity.ListingRejected {
		next.RejectionReason = ""
	}
	return next, nil
}

func (uc *ListingUseCase) recordTransition(ctx context.Context, actor entity.Actor, from entity.ListingStatus, next *entity.Listing) {
	uc.audit.Emit(ctx, actor.ID, entity.EventListingTransition, next.ID, map[string]interface{}{
		"seller_id": next.SellerID,
		"from":      string(from),
		"to":        string(next.Status),
		"version":   next.Version,
	})
}

// Update applies a seller's edits. Price and category are frozen once the listing leaves pending.
func (uc *ListingUseCase) Update(ctx context.Context, actor entity.Actor, listingID string, input UpdateListingInput) (*entity.Listing, error) {
	if err := validateInput(uc.validate, input); err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(lock.ListingKey(listingID))
	defer unlock()

	current, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if current.SellerID != actor.ID {
		return nil, errors.Forbidden("Only the seller can edit this listing", nil)
	}
	if current.Status == entity.ListingSold {
		return nil, errors.Validation("Sold listings cannot be edited", nil).With("id", current.ID)
	}

	priceChanged := input.Price != nil && *input.Price != current.Price
	categoryChanged := input.Category != nil && *input.Category != current.Category
	if (priceChanged || categoryChanged) && current.Status != entity.ListingPending {
		return nil, errors.Validation("Price and category can only change while the listing is pending", nil).
			With("id", current.ID).
			With("status", string(current.Status))
	}

	next, changes := applyListingEdits(current, input.fields())
	if len(changes) == 0 {
		return current, nil
	}
	next.Version = current.Version + 1
	next.UpdatedAt = uc.clock.Now().UTC()

	if err := uc.listingRepo.CompareAndSwap(ctx, next, current.Version); err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}
	uc.audit.Emit(ctx, actor.ID, entity.EventListingUpdated, next.ID, map[string]interface{}{
		"seller_id": next.SellerID,
		"fields":    fields,
	})
	return next, nil
}

// AdminEdit changes any editable field, including price and category after moderation.
// It is audited separately from status transitions.
func (uc *ListingUseCase) AdminEdit(ctx context.Context, actor entity.Actor, listingID string, input AdminEditInput) (*entity.Listing, error) {
	if !uc.authorizer.HasCapability(actor, entity.CapabilityEditListing) {
		return nil, errors.Forbidden("Listing edits require the edit_listing capability", nil)
	}
	input.Reason = strings.TrimSpace(input.Reason)
	if err := validateInput(uc.validate, input); err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(lock.ListingKey(listingID))
	defer unlock()

	current, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if current.Status == entity.ListingSold {
		return nil, errors.Validation("Sold listings cannot be edited", nil).With("id", current.ID)
	}

	next, changes := applyListingEdits(current, input.fields())
	if len(changes) == 0 {
		return current, nil
	}
	next.Version = current.Version + 1
	next.UpdatedAt = uc.clock.Now().UTC()

	if err := uc.listingRepo.CompareAndSwap(ctx, next, current.Version); err != nil {
		return nil, err
	}

	uc.audit.Emit(ctx, actor.ID, entity.EventListingAdminEdited, next.ID, map[string]interface{}{
		"seller_id": next.SellerID,
		"reason":    input.Reason,
		"changes":   changes,
	})
	return next, nil
}

type listingFields struct {
	title, description, location *string
	price                        *int64
	category                     *entity.Category
	condition                    *entity.Condition
}

func (in UpdateListingInput) fields() listingFields {
	return listingFields{
		title:       in.Title,
		description: in.Description,
		location:    in.Location,
		price:       in.Price,
		category:    in.Category,
		condition:   in.Condition,
	}
}

// applyListingEdits returns a modified clone and a field -> {from, to} map of what actually changed.
func applyListingEdits(current *entity.Listing, f listingFields) (*entity.Listing, map[string]interface{}) {
	next := current.Clone()
	changes := map[string]interface{}{}
	diff := func(field string, from, to interface{}) {
		changes[field] = map[string]interface{}{"from": from, "to": to}
	}

	if f.title != nil {
		if t := strings.TrimSpace(*f.title); t != "" && t != current.Title {
			diff("title", current.Title, t)
			next.Title = t
		}
	}
	if f.description != nil && strings.TrimSpace(*f.description) != current.Description {
		d := strings.TrimSpace(*f.description)
		diff("description", current.Description, d)
		next.Description = d
	}
	if f.location != nil && strings.TrimSpace(*f.location) != current.Location {
		l := strings.TrimSpace(*f.location)
		diff("location", current.Location, l)
		next.Location = l
	}
	if f.price != nil && *f.price != current.Price {
		diff("price", current.Price, *f.price)
		next.Price = *f.price
	}
	if f.category != nil && *f.category != current.Category {
		diff("category", string(current.Category), string(*f.category))
		next.Category = *f.category
	}
	if f.condition != nil && *f.condition != current.Condition {
		diff("condition", string(current.Condition), string(*f.condition))
		next.Condition = *f.condition
	}
	return next, changes
}

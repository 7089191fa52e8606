package repository

import (
	"context"

	"pasarbekas/internal/domain/entity"
)

type ListingFilter struct {
	Status   entity.ListingStatus
	Category entity.Category
	SellerID string
	MinPrice int64
	MaxPrice int64 // 0 means unbounded
}

type ListingRepository interface {
	Create(ctx context.Context, listing *entity.Listing) error
	GetByID(ctx context.Context, id string) (*entity.Listing, error)
	List(ctx context.Context, filter ListingFilter, limit, offset int) ([]*entity.Listing, int64, error)

	// CompareAndSwap replaces the stored listing only if its version still equals expectedVersion.
	// The caller sets listing.Version to the new version. A mismatch yields CONCURRENT_MODIFICATION.
	CompareAndSwap(ctx context.Context, listing *entity.Listing, expectedVersion int64) error
}

package repository

import (
	"context"

	"pasarbekas/internal/domain/entity"
)

type TransactionRepository interface {
	// Create stores a new open transaction. If the listing already has an open transaction
	// the call fails with CONCURRENT_MODIFICATION and nothing is written.
	Create(ctx context.Context, transaction *entity.Transaction) error
	GetByID(ctx context.Context, id string) (*entity.Transaction, error)
	FindOpenByListing(ctx context.Context, listingID string) (*entity.Transaction, error)
	ListByListing(ctx context.Context, listingID string) ([]*entity.Transaction, error)
	ListByUserID(ctx context.Context, userID string, role string, status entity.TransactionStatus, limit, offset int) ([]*entity.Transaction, int64, error)
	List(ctx context.Context, status entity.TransactionStatus, limit, offset int) ([]*entity.Transaction, int64, error)

	CompareAndSwap(ctx context.Context, transaction *entity.Transaction, expectedVersion int64) error
	// CompareAndSwapWithListing writes the transaction and its listing together. Either both
	// versions match and both are written, or neither is.
	CompareAndSwapWithListing(ctx context.Context, transaction *entity.Transaction, expectedVersion int64, listing *entity.Listing, expectedListingVersion int64) error
}

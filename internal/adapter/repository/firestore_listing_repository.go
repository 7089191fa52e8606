package repository

import (
	"context"

	"cloud.google.com/go/firestore"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/pkg/errors"
)

type firestoreListingRepository struct {
	client *firestore.Client
}

func NewFirestoreListingRepository(client *firestore.Client) repository.ListingRepository {
	return &firestoreListingRepository{
		client: client,
	}
}

func (r *firestoreListingRepository) Create(ctx context.Context, listing *entity.Listing) error {
	_, err := r.client.Collection(colListings).Doc(listing.ID).Create(ctx, listing)
	if err != nil {
		return wrapFirestore("Failed to create listing", err)
	}
	return nil
}

func (r *firestoreListingRepository) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	doc, err := r.client.Collection(colListings).Doc(id).Get(ctx)
	if err != nil {
		if isFirestoreNotFound(err) {
			return nil, errors.NotFound("Listing", err)
		}
		return nil, wrapFirestore("Failed to get listing", err)
	}
	return decodeListing(doc)
}

func decodeListing(doc *firestore.DocumentSnapshot) (*entity.Listing, error) {
	var listing entity.Listing
	if err := doc.DataTo(&listing); err != nil {
		return nil, errors.Internal("Failed to parse listing data", err)
	}
	return &listing, nil
}

// List pushes equality filters to Firestore and applies the price range in memory,
// which avoids a composite index per filter combination.
func (r *firestoreListingRepository) List(ctx context.Context, filter repository.ListingFilter, limit, offset int) ([]*entity.Listing, int64, error) {
	query := r.client.Collection(colListings).Query
	if filter.Status != "" {
		query = query.Where("status", "==", string(filter.Status))
	}
	if filter.Category != "" {
		query = query.Where("category", "==", string(filter.Category))
	}
	if filter.SellerID != "" {
		query = query.Where("sellerId", "==", filter.SellerID)
	}
	query = query.OrderBy("createdAt", firestore.Desc)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, wrapFirestore("Failed to list listings", err)
	}

	var matched []*entity.Listing
	for _, doc := range docs {
		listing, err := decodeListing(doc)
		if err != nil {
			return nil, 0, err
		}
		if filter.MinPrice > 0 && listing.Price < filter.MinPrice {
			continue
		}
		if filter.MaxPrice > 0 && listing.Price > filter.MaxPrice {
			continue
		}
		matched = append(matched, listing)
	}

	return window(matched, limit, offset), int64(len(matched)), nil
}

func (r *firestoreListingRepository) CompareAndSwap(ctx context.Context, listing *entity.Listing, expectedVersion int64) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := checkListingVersion(tx, r.client, listing.ID, expectedVersion); err != nil {
			return err
		}
		return tx.Set(r.client.Collection(colListings).Doc(listing.ID), listing)
	})
	if err != nil {
		return wrapFirestore("Failed to update listing", err)
	}
	return nil
}

// checkListingVersion reads the listing inside tx. Reads must precede writes in a Firestore transaction.
func checkListingVersion(tx *firestore.Transaction, client *firestore.Client, id string, expectedVersion int64) error {
	doc, err := tx.Get(client.Collection(colListings).Doc(id))
	if err != nil {
		if isFirestoreNotFound(err) {
			return errors.NotFound("Listing", err)
		}
		return err
	}
	current, err := decodeListing(doc)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return errors.ConcurrentModification("listing", id)
	}
	return nil
}

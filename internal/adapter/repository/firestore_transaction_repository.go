package repository

import (
	"context"

	"cloud.google.com/go/firestore"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/pkg/errors"
)

type firestoreTransactionRepository struct {
	client *firestore.Client
}

func NewFirestoreTransactionRepository(client *firestore.Client) repository.TransactionRepository {
	return &firestoreTransactionRepository{
		client: client,
	}
}

func (r *firestoreTransactionRepository) transactions() *firestore.CollectionRef {
	return r.client.Collection(colTransactions)
}

func (r *firestoreTransactionRepository) lockRef(listingID string) *firestore.DocumentRef {
	return r.client.Collection(colListingLocks).Doc(listingID)
}

// Create claims listing_locks/{listingID} for the new transaction. The lock document exists
// exactly while the listing has an open transaction.
func (r *firestoreTransactionRepository) Create(ctx context.Context, transaction *entity.Transaction) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		lock := r.lockRef(transaction.ListingID)
		if _, err := tx.Get(lock); err == nil {
			return errors.ConcurrentModification("listing", transaction.ListingID).
				With("reason", "listing already has an open transaction")
		} else if !isFirestoreNotFound(err) {
			return err
		}

		if err := tx.Create(lock, map[string]interface{}{"transactionId": transaction.ID}); err != nil {
			return err
		}
		return tx.Create(r.transactions().Doc(transaction.ID), transaction)
	})
	if err != nil {
		return wrapFirestore("Failed to create transaction", err)
	}
	return nil
}

func (r *firestoreTransactionRepository) GetByID(ctx context.Context, id string) (*entity.Transaction, error) {
	doc, err := r.transactions().Doc(id).Get(ctx)
	if err != nil {
		if isFirestoreNotFound(err) {
			return nil, errors.NotFound("Transaction", err)
		}
		return nil, wrapFirestore("Failed to get transaction", err)
	}
	return decodeTransaction(doc)
}

func decodeTransaction(doc *firestore.DocumentSnapshot) (*entity.Transaction, error) {
	var transaction entity.Transaction
	if err := doc.DataTo(&transaction); err != nil {
		return nil, errors.Internal("Failed to parse transaction data", err)
	}
	return &transaction, nil
}

func decodeTransactions(docs []*firestore.DocumentSnapshot) ([]*entity.Transaction, error) {
	out := make([]*entity.Transaction, 0, len(docs))
	for _, doc := range docs {
		t, err := decodeTransaction(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *firestoreTransactionRepository) FindOpenByListing(ctx context.Context, listingID string) (*entity.Transaction, error) {
	lock, err := r.lockRef(listingID).Get(ctx)
	if err != nil {
		if isFirestoreNotFound(err) {
			return nil, errors.NotFound("Open transaction", err)
		}
		return nil, wrapFirestore("Failed to find open transaction", err)
	}
	id, err := lock.DataAt("transactionId")
	if err != nil {
		return nil, errors.Internal("Failed to parse listing lock", err)
	}
	return r.GetByID(ctx, id.(string))
}

func (r *firestoreTransactionRepository) ListByListing(ctx context.Context, listingID string) ([]*entity.Transaction, error) {
	docs, err := r.transactions().Where("listingId", "==", listingID).OrderBy("createdAt", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapFirestore("Failed to list transactions for listing", err)
	}
	return decodeTransactions(docs)
}

func (r *firestoreTransactionRepository) ListByUserID(ctx context.Context, userID string, role string, status entity.TransactionStatus, limit, offset int) ([]*entity.Transaction, int64, error) {
	var fields []string
	switch role {
	case "buyer":
		fields = []string{"buyerId"}
	case "seller":
		fields = []string{"sellerId"}
	case "":
		fields = []string{"buyerId", "sellerId"}
	default:
		return nil, 0, errors.Validation("Invalid role", nil).With("role", role)
	}

	var all []*entity.Transaction
	for _, field := range fields {
		query := r.transactions().Where(field, "==", userID)
		if status != "" {
			query = query.Where("status", "==", string(status))
		}
		docs, err := query.Documents(ctx).GetAll()
		if err != nil {
			return nil, 0, wrapFirestore("Failed to list user transactions", err)
		}
		batch, err := decodeTransactions(docs)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, batch...)
	}

	sortTransactionsNewestFirst(all)
	return window(all, limit, offset), int64(len(all)), nil
}

func (r *firestoreTransactionRepository) List(ctx context.Context, status entity.TransactionStatus, limit, offset int) ([]*entity.Transaction, int64, error) {
	query := r.transactions().Query
	if status != "" {
		query = query.Where("status", "==", string(status))
	}
	docs, err := query.OrderBy("createdAt", firestore.Desc).Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, wrapFirestore("Failed to list transactions", err)
	}
	all, err := decodeTransactions(docs)
	if err != nil {
		return nil, 0, err
	}
	return window(all, limit, offset), int64(len(all)), nil
}

func (r *firestoreTransactionRepository) CompareAndSwap(ctx context.Context, transaction *entity.Transaction, expectedVersion int64) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := r.checkVersion(tx, transaction.ID, expectedVersion); err != nil {
			return err
		}
		return r.write(tx, transaction)
	})
	if err != nil {
		return wrapFirestore("Failed to update transaction", err)
	}
	return nil
}

func (r *firestoreTransactionRepository) CompareAndSwapWithListing(ctx context.Context, transaction *entity.Transaction, expectedVersion int64, listing *entity.Listing, expectedListingVersion int64) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := checkListingVersion(tx, r.client, listing.ID, expectedListingVersion); err != nil {
			return err
		}
		if err := r.checkVersion(tx, transaction.ID, expectedVersion); err != nil {
			return err
		}
		if err := tx.Set(r.client.Collection(colListings).Doc(listing.ID), listing); err != nil {
			return err
		}
		return r.write(tx, transaction)
	})
	if err != nil {
		return wrapFirestore("Failed to update transaction", err)
	}
	return nil
}

func (r *firestoreTransactionRepository) checkVersion(tx *firestore.Transaction, id string, expectedVersion int64) error {
	doc, err := tx.Get(r.transactions().Doc(id))
	if err != nil {
		if isFirestoreNotFound(err) {
			return errors.NotFound("Transaction", err)
		}
		return err
	}
	current, err := decodeTransaction(doc)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return errors.ConcurrentModification("transaction", id)
	}
	return nil
}

// write stores the transaction and releases the listing lock once it reaches a terminal state.
func (r *firestoreTransactionRepository) write(tx *firestore.Transaction, transaction *entity.Transaction) error {
	if err := tx.Set(r.transactions().Doc(transaction.ID), transaction); err != nil {
		return err
	}
	if transaction.Status.IsTerminal() {
		return tx.Delete(r.lockRef(transaction.ListingID))
	}
	return nil
}

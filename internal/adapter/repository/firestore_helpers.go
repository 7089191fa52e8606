package repository

import (
	"context"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/pkg/errors"
)

const (
	colListings      = "listings"
	colListingLocks  = "listing_locks"
	colConversations = "conversations"
	colConvKeys      = "conversation_keys"
	colMessages      = "messages"
	colTransactions  = "transactions"
	colAuditEvents   = "audit_events"
	colCounters      = "counters"
)

func isFirestoreNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// wrapFirestore keeps AppErrors raised inside RunTransaction callbacks and maps the rest.
func wrapFirestore(message string, err error) error {
	if _, ok := err.(*errors.AppError); ok {
		return err
	}
	return errors.Persistence(message, err)
}

// window applies offset/limit pagination to an in-memory slice.
func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func sortTransactionsNewestFirst(items []*entity.Transaction) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// FirestorePinger reports whether Firestore answers a trivial read.
type FirestorePinger struct {
	client *firestore.Client
}

func NewFirestorePinger(client *firestore.Client) *FirestorePinger {
	return &FirestorePinger{client: client}
}

func (p *FirestorePinger) PingContext(ctx context.Context) error {
	_, err := p.client.Collection(colCounters).Limit(1).Documents(ctx).Next()
	if err != nil && err != iterator.Done {
		return err
	}
	return nil
}

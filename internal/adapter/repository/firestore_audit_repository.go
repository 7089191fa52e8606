package repository

import (
	"context"

	"cloud.google.com/go/firestore"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/pkg/errors"
)

type firestoreAuditRepository struct {
	client *firestore.Client
}

func NewFirestoreAuditRepository(client *firestore.Client) repository.AuditRepository {
	return &firestoreAuditRepository{
		client: client,
	}
}

// Append assigns Seq from counters/audit_events in the same transaction that stores the event.
func (r *firestoreAuditRepository) Append(ctx context.Context, event *entity.AuditEvent) error {
	counter := r.client.Collection(colCounters).Doc(colAuditEvents)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var next int64 = 1
		doc, err := tx.Get(counter)
		switch {
		case err == nil:
			v, err := doc.DataAt("value")
			if err != nil {
				return err
			}
			next = v.(int64) + 1
		case !isFirestoreNotFound(err):
			return err
		}

		stored := *event
		stored.Seq = next
		if err := tx.Set(counter, map[string]interface{}{"value": next}); err != nil {
			return err
		}
		if err := tx.Create(r.client.Collection(colAuditEvents).Doc(event.ID), &stored); err != nil {
			return err
		}
		event.Seq = next
		return nil
	})
	if err != nil {
		return wrapFirestore("Failed to append audit event", err)
	}
	return nil
}

func (r *firestoreAuditRepository) List(ctx context.Context, filter repository.AuditFilter, limit, offset int) ([]*entity.AuditEvent, error) {
	query := r.client.Collection(colAuditEvents).Query
	if filter.SubjectID != "" {
		query = query.Where("subjectId", "==", filter.SubjectID)
	}
	if filter.EventType != "" {
		query = query.Where("eventType", "==", string(filter.EventType))
	}
	if filter.Actor != "" {
		query = query.Where("actor", "==", filter.Actor)
	}

	docs, err := query.OrderBy("seq", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapFirestore("Failed to list audit events", err)
	}

	events := make([]*entity.AuditEvent, 0, len(docs))
	for _, doc := range docs {
		var ev entity.AuditEvent
		if err := doc.DataTo(&ev); err != nil {
			return nil, errors.Internal("Failed to parse audit event", err)
		}
		if !filter.Since.IsZero() && ev.OccurredAt.Before(filter.Since) {
			continue
		}
		events = append(events, &ev)
	}
	return window(events, limit, offset), nil
}

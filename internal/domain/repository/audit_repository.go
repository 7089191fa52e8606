package repository

import (
	"context"
	"time"

	"pasarbekas/internal/domain/entity"
)

type AuditFilter struct {
	SubjectID string
	EventType entity.AuditEventType
	Actor     string
	Since     time.Time
}

// AuditRepository is append-only: there is no update or delete.
type AuditRepository interface {
	// Append stores event and assigns its Seq.
	Append(ctx context.Context, event *entity.AuditEvent) error
	List(ctx context.Context, filter AuditFilter, limit, offset int) ([]*entity.AuditEvent, error)
}

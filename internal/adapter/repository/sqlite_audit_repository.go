package repository

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jmoiron/sqlx"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
)

type auditRow struct {
	Seq        int64  `db:"seq"`
	ID         string `db:"id"`
	OccurredAt int64  `db:"occurred_at"`
	Actor      string `db:"actor"`
	EventType  string `db:"event_type"`
	SubjectID  string `db:"subject_id"`
	Payload    string `db:"payload"`
}

func (r auditRow) toEntity() (*entity.AuditEvent, error) {
	ev := &entity.AuditEvent{
		ID:         r.ID,
		Seq:        r.Seq,
		OccurredAt: fromNanos(r.OccurredAt),
		Actor:      r.Actor,
		EventType:  entity.AuditEventType(r.EventType),
		SubjectID:  r.SubjectID,
	}
	if r.Payload != "" && r.Payload != "{}" {
		if err := json.Unmarshal([]byte(r.Payload), &ev.Payload); err != nil {
			return nil, err
		}
	}
	return ev, nil
}

type sqliteAuditRepository struct {
	db *sqlx.DB
}

func NewSQLiteAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &sqliteAuditRepository{db: db}
}

func (r *sqliteAuditRepository) Append(ctx context.Context, event *entity.AuditEvent) error {
	payload := []byte("{}")
	if len(event.Payload) > 0 {
		var err error
		if payload, err = json.Marshal(event.Payload); err != nil {
			return wrapSQL("Failed to encode audit payload", err)
		}
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO audit_events(id, occurred_at, actor, event_type, subject_id, payload)
		VALUES(?, ?, ?, ?, ?, ?)`,
		event.ID, toNanos(event.OccurredAt), event.Actor, string(event.EventType), event.SubjectID, string(payload))
	if err != nil {
		return wrapSQL("Failed to append audit event", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return wrapSQL("Failed to read audit sequence", err)
	}
	event.Seq = seq
	return nil
}

func (r *sqliteAuditRepository) List(ctx context.Context, filter repository.AuditFilter, limit, offset int) ([]*entity.AuditEvent, error) {
	var where []string
	var args []interface{}

	if filter.SubjectID != "" {
		where = append(where, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if filter.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(filter.EventType))
	}
	if filter.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, filter.Actor)
	}
	if !filter.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, toNanos(filter.Since))
	}

	query := `SELECT seq, id, occurred_at, actor, event_type, subject_id, payload FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq ASC LIMIT ? OFFSET ?`

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, append(args, sqlLimit(limit), offset)...); err != nil {
		return nil, wrapSQL("Failed to list audit events", err)
	}

	events := make([]*entity.AuditEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := row.toEntity()
		if err != nil {
			return nil, wrapSQL("Failed to decode audit payload", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

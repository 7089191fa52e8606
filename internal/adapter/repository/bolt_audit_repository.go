package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/pkg/errors"
)

const auditBucket = "audit_events"

// BoltAuditRepository is a single-file append-only audit journal. Keys are the
// big-endian event Seq, so a cursor walk yields events in append order.
type BoltAuditRepository struct {
	db *bolt.DB
}

func OpenBoltAuditRepository(path string) (*BoltAuditRepository, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(auditBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltAuditRepository{db: db}, nil
}

func (r *BoltAuditRepository) Close() error {
	return r.db.Close()
}

var _ repository.AuditRepository = (*BoltAuditRepository)(nil)

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func (r *BoltAuditRepository) Append(ctx context.Context, event *entity.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(auditBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		stored := *event
		stored.Seq = int64(seq)
		data, err := json.Marshal(&stored)
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}
		event.Seq = int64(seq)
		return nil
	})
	if err != nil {
		return errors.Persistence("Failed to append audit event", err)
	}
	return nil
}

func (r *BoltAuditRepository) List(ctx context.Context, filter repository.AuditFilter, limit, offset int) ([]*entity.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events := []*entity.AuditEvent{}
	skipped := 0
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(auditBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var ev entity.AuditEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			if !matchesAudit(&ev, filter) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			events = append(events, &ev)
			if limit > 0 && len(events) == limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Persistence("Failed to list audit events", err)
	}
	return events, nil
}

func matchesAudit(ev *entity.AuditEvent, filter repository.AuditFilter) bool {
	if filter.SubjectID != "" && ev.SubjectID != filter.SubjectID {
		return false
	}
	if filter.EventType != "" && ev.EventType != filter.EventType {
		return false
	}
	if filter.Actor != "" && ev.Actor != filter.Actor {
		return false
	}
	if !filter.Since.IsZero() && ev.OccurredAt.Before(filter.Since) {
		return false
	}
	return true
}

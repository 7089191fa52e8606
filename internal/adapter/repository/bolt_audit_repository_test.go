package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
)

func TestBoltAudit_AppendAndFilter(t *testing.T) {
	ctx := context.Background()
	repo, err := OpenBoltAuditRepository(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer repo.Close()

	types := []entity.AuditEventType{entity.EventListingCreated, entity.EventModerationApproved, entity.EventListingCreated}
	for i, typ := range types {
		ev := &entity.AuditEvent{
			ID: fmt.Sprintf("ev-%d", i), OccurredAt: testNow.Add(time.Duration(i) * time.Minute),
			Actor: "system", EventType: typ, SubjectID: "l1",
		}
		require.NoError(t, repo.Append(ctx, ev))
		assert.EqualValues(t, i+1, ev.Seq)
	}

	created, err := repo.List(ctx, repository.AuditFilter{EventType: entity.EventListingCreated}, 0, 0)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.EqualValues(t, 1, created[0].Seq)
	assert.EqualValues(t, 3, created[1].Seq)

	paged, err := repo.List(ctx, repository.AuditFilter{}, 1, 1)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.EqualValues(t, 2, paged[0].Seq)

	recent, err := repo.List(ctx, repository.AuditFilter{Since: testNow.Add(90 * time.Second)}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

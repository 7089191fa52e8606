package usecase

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/pkg/errors"
)

type flakyAuditRepo struct {
	failures int
	calls    int
	stored   []*entity.AuditEvent
}

func (r *flakyAuditRepo) Append(_ context.Context, event *entity.AuditEvent) error {
	r.calls++
	if r.failures > 0 {
		r.failures--
		return errors.Persistence("disk hiccup", nil)
	}
	event.Seq = int64(len(r.stored) + 1)
	r.stored = append(r.stored, event)
	return nil
}

func (r *flakyAuditRepo) List(context.Context, repository.AuditFilter, int, int) ([]*entity.AuditEvent, error) {
	return r.stored, nil
}

func TestAudit_RecordStampsAndNotifies(t *testing.T) {
	repo := &flakyAuditRepo{}
	notifier := &recordingNotifier{}
	clock := clockwork.NewFakeClockAt(testNow)
	uc := NewAuditUseCase(repo, notifier, clock, prometheus.NewRegistry())

	event := &entity.AuditEvent{
		EventType: entity.EventTransactionOpened,
		SubjectID: "tx-1",
		Payload:   map[string]interface{}{"buyer_id": "b", "seller_id": "s"},
	}
	require.NoError(t, uc.Record(context.Background(), event))

	assert.NotEmpty(t, event.ID)
	assert.EqualValues(t, 1, event.Seq)
	assert.True(t, event.OccurredAt.Equal(testNow))
	assert.Equal(t, entity.SystemActorID, event.Actor)
	assert.Equal(t, 1.0, testutil.ToFloat64(uc.Counter().WithLabelValues(string(entity.EventTransactionOpened))))

	pushes := notifier.ofType(NotificationAudit)
	require.Len(t, pushes, 1)
	assert.Equal(t, []string{"b", "s"}, pushes[0].userIDs)
}

func TestAudit_RecordRejectsMalformed(t *testing.T) {
	uc := NewAuditUseCase(&flakyAuditRepo{}, nil, clockwork.NewFakeClock(), nil)

	err := uc.Record(context.Background(), &entity.AuditEvent{EventType: entity.EventListingCreated})
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.True(t, errors.Is(uc.Record(context.Background(), nil), errors.CodeValidation))
}

func TestAudit_RetriesTransientFailureOnce(t *testing.T) {
	repo := &flakyAuditRepo{failures: 1}
	uc := NewAuditUseCase(repo, nil, clockwork.NewFakeClock(), nil)

	require.NoError(t, uc.Record(context.Background(), &entity.AuditEvent{EventType: entity.EventListingCreated, SubjectID: "l1"}))
	assert.Equal(t, 2, repo.calls)

	repo.failures = 2
	err := uc.Record(context.Background(), &entity.AuditEvent{EventType: entity.EventListingCreated, SubjectID: "l2"})
	assert.True(t, errors.Is(err, errors.CodePersistence))
	assert.Len(t, repo.stored, 1)

	// Emit swallows the error.
	repo.failures = 2
	uc.Emit(context.Background(), "u1", entity.EventListingCreated, "l3", nil)
	assert.Len(t, repo.stored, 1)
}

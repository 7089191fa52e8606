package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/pkg/errors"
	"pasarbekas/pkg/logger"
)

const NotificationAudit = "audit"

// AuditUseCase is the single sink every engine funnels state changes through.
type AuditUseCase struct {
	auditRepo repository.AuditRepository
	notifier  Notifier
	clock     clockwork.Clock
	events    *prometheus.CounterVec
}

func NewAuditUseCase(
	auditRepo repository.AuditRepository,
	notifier Notifier,
	clock clockwork.Clock,
	registerer prometheus.Registerer,
) *AuditUseCase {
	if notifier == nil {
		notifier = noopNotifier{}
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pasarbekas",
		Name:      "audit_events_total",
		Help:      "Audit events recorded, by event type.",
	}, []string{"event_type"})
	if registerer != nil {
		registerer.MustRegister(events)
	}

	return &AuditUseCase{
		auditRepo: auditRepo,
		notifier:  notifier,
		clock:     clock,
		events:    events,
	}
}

// Record appends event. A transient storage failure is retried once before it is reported.
func (uc *AuditUseCase) Record(ctx context.Context, event *entity.AuditEvent) error {
	if event == nil || event.EventType == "" || event.SubjectID == "" {
		return errors.Validation("Audit event needs an event type and a subject", nil)
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = uc.clock.Now().UTC()
	}
	if event.Actor == "" {
		event.Actor = entity.SystemActorID
	}

	err := uc.auditRepo.Append(ctx, event)
	if err != nil && errors.Is(err, errors.CodePersistence) {
		err = uc.auditRepo.Append(ctx, event)
	}
	if err != nil {
		return err
	}

	uc.events.WithLabelValues(string(event.EventType)).Inc()
	if recipients := event.Recipients(); len(recipients) > 0 {
		uc.notifier.Notify(recipients, NotificationAudit, event)
	}
	return nil
}

// Emit records an event on behalf of an engine. Failures are logged, never returned:
// the state change the event describes has already been committed.
func (uc *AuditUseCase) Emit(ctx context.Context, actorID string, eventType entity.AuditEventType, subjectID string, payload map[string]interface{}) {
	event := &entity.AuditEvent{
		Actor:     actorID,
		EventType: eventType,
		SubjectID: subjectID,
		Payload:   payload,
	}
	if err := uc.Record(ctx, event); err != nil {
		logger.With("event_type", eventType, "subject_id", subjectID, "actor", actorID).
			Errorw("failed to record audit event", "error", err)
	}
}

func (uc *AuditUseCase) List(ctx context.Context, filter repository.AuditFilter, limit, offset int) ([]*entity.AuditEvent, error) {
	return uc.auditRepo.List(ctx, filter, limit, offset)
}

// Counter exposes the per-type counter, mainly for tests.
func (uc *AuditUseCase) Counter() *prometheus.CounterVec {
	return uc.events
}

package entity

import "time"

type AuditEventType string

const (
	EventListingCreated     AuditEventType = "listing.created"
	EventListingTransition  AuditEventType = "listing.transitioned"
	EventListingUpdated     AuditEventType = "listing.updated"
	EventListingAdminEdited AuditEventType = "listing.admin_edited"

	EventModerationSubmitted    AuditEventType = "moderation.submitted"
	EventModerationAutoApproved AuditEventType = "moderation.auto_approved"
	EventModerationApproved     AuditEventType = "moderation.approved"
	EventModerationRejected     AuditEventType = "moderation.rejected"
	EventModerationResubmitted  AuditEventType = "moderation.resubmitted"

	EventConversationOpened AuditEventType = "chat.conversation_opened"
	EventMessageSent        AuditEventType = "chat.message_sent"
	EventSystemMessage      AuditEventType = "chat.system_message"
	EventMessagesRead       AuditEventType = "chat.messages_read"

	EventTransactionOpened         AuditEventType = "transaction.opened"
	EventTransactionFundsConfirmed AuditEventType = "transaction.funds_confirmed"
	EventTransactionCompleted      AuditEventType = "transaction.completed"
	EventTransactionDisputed       AuditEventType = "transaction.disputed"
	EventTransactionResolved       AuditEventType = "transaction.resolved"
	EventTransactionCancelled      AuditEventType = "transaction.cancelled"
)

// AuditEvent is append-only. Seq is assigned by the sink when the event is stored.
type AuditEvent struct {
	ID         string                 `json:"id" firestore:"id"`
	Seq        int64                  `json:"seq" firestore:"seq"`
	OccurredAt time.Time              `json:"occurred_at" firestore:"occurredAt"`
	Actor      string                 `json:"actor" firestore:"actor"`
	EventType  AuditEventType         `json:"event_type" firestore:"eventType"`
	SubjectID  string                 `json:"subject_id" firestore:"subjectId"`
	Payload    map[string]interface{} `json:"payload,omitempty" firestore:"payload,omitempty"`
}

// Recipients lists user ids named in the payload that should be notified about the event.
func (e *AuditEvent) Recipients() []string {
	var out []string
	seen := map[string]bool{}
	for _, key := range []string{"buyer_id", "seller_id", "receiver_id", "sender_id", "participant_a", "participant_b"} {
		if v, ok := e.Payload[key].(string); ok && v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

package entity

import "time"

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
)

// Message is immutable once stored, apart from the read receipt fields.
type Message struct {
	ID             string      `json:"id" firestore:"id"`
	ConversationID string      `json:"conversation_id" firestore:"conversationId"`
	Seq            int64       `json:"seq" firestore:"seq"`
	SenderID       string      `json:"sender_id" firestore:"senderId"`
	ReceiverID     string      `json:"receiver_id" firestore:"receiverId"`
	Body           string      `json:"body" firestore:"body"`
	Type           MessageType `json:"type" firestore:"type"`
	IsRead         bool        `json:"is_read" firestore:"isRead"`
	ReadAt         *time.Time  `json:"read_at,omitempty" firestore:"readAt,omitempty"`
	SentAt         time.Time   `json:"sent_at" firestore:"sentAt"`
}

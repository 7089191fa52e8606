package repository

import (
	"context"
	"time"

	"pasarbekas/internal/domain/entity"
)

type ChatRepository interface {
	// CreateConversation inserts conv unless one already exists for the same listing and canonical pair.
	// It returns the stored conversation and whether this call created it.
	CreateConversation(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (*entity.Conversation, error)
	FindConversation(ctx context.Context, listingID, participantA, participantB string) (*entity.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error)

	// AppendMessage stores msg and advances the conversation head in one step.
	// msg.Seq must equal the stored LastSeq+1, otherwise CONCURRENT_MODIFICATION is returned.
	AppendMessage(ctx context.Context, msg *entity.Message) error
	GetMessage(ctx context.Context, conversationID, messageID string) (*entity.Message, error)
	// ListMessages returns up to limit messages with Seq > afterSeq in ascending order.
	ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]*entity.Message, error)
	// MarkRead flags unread messages addressed to receiverID with Seq <= uptoSeq and returns how many changed.
	MarkRead(ctx context.Context, conversationID, receiverID string, uptoSeq int64, readAt time.Time) (int64, error)
	CountUnread(ctx context.Context, conversationID, receiverID string) (int64, error)
}

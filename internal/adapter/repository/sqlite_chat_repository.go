package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jmoiron/sqlx"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/pkg/errors"
)

type conversationRow struct {
	ID           string `db:"id"`
	ListingID    string `db:"listing_id"`
	ParticipantA string `db:"participant_a"`
	ParticipantB string `db:"participant_b"`
	LastSeq      int64  `db:"last_seq"`
	LastSentAt   int64  `db:"last_sent_at"`
	CreatedAt    int64  `db:"created_at"`
}

func (r conversationRow) toEntity() *entity.Conversation {
	return &entity.Conversation{
		ID:           r.ID,
		ListingID:    r.ListingID,
		ParticipantA: r.ParticipantA,
		ParticipantB: r.ParticipantB,
		LastSeq:      r.LastSeq,
		LastSentAt:   fromNanos(r.LastSentAt),
		CreatedAt:    fromNanos(r.CreatedAt),
	}
}

type messageRow struct {
	ID             string        `db:"id"`
	ConversationID string        `db:"conversation_id"`
	Seq            int64         `db:"seq"`
	SenderID       string        `db:"sender_id"`
	ReceiverID     string        `db:"receiver_id"`
	Body           string        `db:"body"`
	Type           string        `db:"type"`
	IsRead         bool          `db:"is_read"`
	ReadAt         sql.NullInt64 `db:"read_at"`
	SentAt         int64         `db:"sent_at"`
}

func (r messageRow) toEntity() *entity.Message {
	return &entity.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Seq:            r.Seq,
		SenderID:       r.SenderID,
		ReceiverID:     r.ReceiverID,
		Body:           r.Body,
		Type:           entity.MessageType(r.Type),
		IsRead:         r.IsRead,
		ReadAt:         fromNullNanos(r.ReadAt),
		SentAt:         fromNanos(r.SentAt),
	}
}

const (
	conversationColumns = `id, listing_id, participant_a, participant_b, last_seq, last_sent_at, created_at`
	messageColumns      = `id, conversation_id, seq, sender_id, receiver_id, body, type, is_read, read_at, sent_at`
)

type sqliteChatRepository struct {
	db *sqlx.DB
}

func NewSQLiteChatRepository(db *sqlx.DB) repository.ChatRepository {
	return &sqliteChatRepository{db: db}
}

func (r *sqliteChatRepository) CreateConversation(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	_, err := r.db.ExecContext(ctx, `INSERT INTO conversations(`+conversationColumns+`) VALUES(?, ?, ?, ?, 0, 0, ?)`,
		conv.ID, conv.ListingID, conv.ParticipantA, conv.ParticipantB, toNanos(conv.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			existing, findErr := r.FindConversation(ctx, conv.ListingID, conv.ParticipantA, conv.ParticipantB)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, wrapSQL("Failed to create conversation", err)
	}

	created := *conv
	created.LastSeq = 0
	created.LastSentAt = time.Time{}
	return &created, true, nil
}

func (r *sqliteChatRepository) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	var row conversationRow
	err := r.db.GetContext(ctx, &row, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, wrapSQL("Failed to get conversation", err)
	}
	return row.toEntity(), nil
}

func (r *sqliteChatRepository) FindConversation(ctx context.Context, listingID, participantA, participantB string) (*entity.Conversation, error) {
	var row conversationRow
	err := r.db.GetContext(ctx, &row, `SELECT `+conversationColumns+` FROM conversations
		WHERE listing_id = ? AND participant_a = ? AND participant_b = ?`, listingID, participantA, participantB)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, wrapSQL("Failed to find conversation", err)
	}
	return row.toEntity(), nil
}

func (r *sqliteChatRepository) ListConversationsByUser(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM conversations WHERE participant_a = ? OR participant_b = ?`, userID, userID); err != nil {
		return nil, 0, wrapSQL("Failed to count conversations", err)
	}

	var rows []conversationRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+conversationColumns+` FROM conversations
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY MAX(last_sent_at, created_at) DESC, id LIMIT ? OFFSET ?`, userID, userID, sqlLimit(limit), offset)
	if err != nil {
		return nil, 0, wrapSQL("Failed to list conversations", err)
	}

	convs := make([]*entity.Conversation, 0, len(rows))
	for _, row := range rows {
		convs = append(convs, row.toEntity())
	}
	return convs, total, nil
}

func (r *sqliteChatRepository) AppendMessage(ctx context.Context, msg *entity.Message) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapSQL("Failed to begin message append", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET last_seq = ?, last_sent_at = ? WHERE id = ? AND last_seq = ?`,
		msg.Seq, toNanos(msg.SentAt), msg.ConversationID, msg.Seq-1)
	if err != nil {
		return wrapSQL("Failed to advance conversation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM conversations WHERE id = ?`, msg.ConversationID); err != nil {
			return wrapSQL("Failed to check conversation", err)
		}
		if exists == 0 {
			return errors.NotFound("Conversation", nil)
		}
		return errors.ConcurrentModification("conversation", msg.ConversationID)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO messages(`+messageColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Seq, msg.SenderID, msg.ReceiverID, msg.Body, string(msg.Type),
		msg.IsRead, toNullNanos(msg.ReadAt), toNanos(msg.SentAt))
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ConcurrentModification("conversation", msg.ConversationID)
		}
		return wrapSQL("Failed to create message", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapSQL("Failed to commit message", err)
	}
	return nil
}

func (r *sqliteChatRepository) GetMessage(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND id = ?`, conversationID, messageID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("Message", err)
		}
		return nil, wrapSQL("Failed to get message", err)
	}
	return row.toEntity(), nil
}

func (r *sqliteChatRepository) ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]*entity.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND seq > ? ORDER BY seq ASC LIMIT ?`, conversationID, afterSeq, sqlLimit(limit))
	if err != nil {
		return nil, wrapSQL("Failed to list messages", err)
	}

	messages := make([]*entity.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.toEntity())
	}
	return messages, nil
}

func (r *sqliteChatRepository) MarkRead(ctx context.Context, conversationID, receiverID string, uptoSeq int64, readAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = 1, read_at = ?
		WHERE conversation_id = ? AND receiver_id = ? AND seq <= ? AND is_read = 0`,
		toNanos(readAt), conversationID, receiverID, uptoSeq)
	if err != nil {
		return 0, wrapSQL("Failed to mark messages read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapSQL("Failed to mark messages read", err)
	}
	return n, nil
}

func (r *sqliteChatRepository) CountUnread(ctx context.Context, conversationID, receiverID string) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND receiver_id = ? AND is_read = 0`,
		conversationID, receiverID)
	if err != nil {
		return 0, wrapSQL("Failed to count unread messages", err)
	}
	return n, nil
}

package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/pkg/errors"
)

// conversationDoc adds the query-only fields Firestore needs for array-contains
// lookups and activity ordering.
type conversationDoc struct {
	ID           string    `firestore:"id"`
	ListingID    string    `firestore:"listingId"`
	ParticipantA string    `firestore:"participantA"`
	ParticipantB string    `firestore:"participantB"`
	Participants []string  `firestore:"participants"`
	LastSeq      int64     `firestore:"lastSeq"`
	LastSentAt   time.Time `firestore:"lastSentAt"`
	ActivityAt   time.Time `firestore:"activityAt"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

func newConversationDoc(c *entity.Conversation) conversationDoc {
	activity := c.CreatedAt
	if c.LastSentAt.After(activity) {
		activity = c.LastSentAt
	}
	return conversationDoc{
		ID:           c.ID,
		ListingID:    c.ListingID,
		ParticipantA: c.ParticipantA,
		ParticipantB: c.ParticipantB,
		Participants: []string{c.ParticipantA, c.ParticipantB},
		LastSeq:      c.LastSeq,
		LastSentAt:   c.LastSentAt,
		ActivityAt:   activity,
		CreatedAt:    c.CreatedAt,
	}
}

func (d conversationDoc) toEntity() *entity.Conversation {
	return &entity.Conversation{
		ID:           d.ID,
		ListingID:    d.ListingID,
		ParticipantA: d.ParticipantA,
		ParticipantB: d.ParticipantB,
		LastSeq:      d.LastSeq,
		LastSentAt:   d.LastSentAt,
		CreatedAt:    d.CreatedAt,
	}
}

func decodeConversation(doc *firestore.DocumentSnapshot) (*entity.Conversation, error) {
	var d conversationDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	return d.toEntity(), nil
}

func conversationKey(listingID, participantA, participantB string) string {
	return listingID + "|" + participantA + "|" + participantB
}

type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func (r *firestoreChatRepository) conversations() *firestore.CollectionRef {
	return r.client.Collection(colConversations)
}

func (r *firestoreChatRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.conversations().Doc(conversationID).Collection(colMessages)
}

// CreateConversation claims a key document for the (listing, pair) tuple so that two racing
// callers converge on a single conversation.
func (r *firestoreChatRepository) CreateConversation(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	var result *entity.Conversation
	var created bool

	keyRef := r.client.Collection(colConvKeys).Doc(conversationKey(conv.ListingID, conv.ParticipantA, conv.ParticipantB))
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		keyDoc, err := tx.Get(keyRef)
		if err == nil {
			id, err := keyDoc.DataAt("conversationId")
			if err != nil {
				return err
			}
			existing, err := tx.Get(r.conversations().Doc(id.(string)))
			if err != nil {
				return err
			}
			result, err = decodeConversation(existing)
			created = false
			return err
		}
		if !isFirestoreNotFound(err) {
			return err
		}

		fresh := *conv
		fresh.LastSeq = 0
		fresh.LastSentAt = time.Time{}
		if err := tx.Create(keyRef, map[string]interface{}{"conversationId": conv.ID}); err != nil {
			return err
		}
		if err := tx.Create(r.conversations().Doc(conv.ID), newConversationDoc(&fresh)); err != nil {
			return err
		}
		result, created = &fresh, true
		return nil
	})
	if err != nil {
		return nil, false, wrapFirestore("Failed to create conversation", err)
	}
	return result, created, nil
}

func (r *firestoreChatRepository) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.conversations().Doc(id).Get(ctx)
	if err != nil {
		if isFirestoreNotFound(err) {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, wrapFirestore("Failed to get conversation", err)
	}
	return decodeConversation(doc)
}

func (r *firestoreChatRepository) FindConversation(ctx context.Context, listingID, participantA, participantB string) (*entity.Conversation, error) {
	keyDoc, err := r.client.Collection(colConvKeys).Doc(conversationKey(listingID, participantA, participantB)).Get(ctx)
	if err != nil {
		if isFirestoreNotFound(err) {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, wrapFirestore("Failed to find conversation", err)
	}
	id, err := keyDoc.DataAt("conversationId")
	if err != nil {
		return nil, errors.Internal("Failed to parse conversation key", err)
	}
	return r.GetConversation(ctx, id.(string))
}

func (r *firestoreChatRepository) ListConversationsByUser(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	query := r.conversations().Where("participants", "array-contains", userID).OrderBy("activityAt", firestore.Desc)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, wrapFirestore("Failed to fetch conversations", err)
	}

	convs := make([]*entity.Conversation, 0, len(docs))
	for _, doc := range docs {
		conv, err := decodeConversation(doc)
		if err != nil {
			return nil, 0, err
		}
		convs = append(convs, conv)
	}
	return window(convs, limit, offset), int64(len(convs)), nil
}

func (r *firestoreChatRepository) AppendMessage(ctx context.Context, msg *entity.Message) error {
	convRef := r.conversations().Doc(msg.ConversationID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(convRef)
		if err != nil {
			if isFirestoreNotFound(err) {
				return errors.NotFound("Conversation", err)
			}
			return err
		}
		conv, err := decodeConversation(doc)
		if err != nil {
			return err
		}
		if conv.LastSeq != msg.Seq-1 {
			return errors.ConcurrentModification("conversation", msg.ConversationID)
		}

		conv.LastSeq = msg.Seq
		conv.LastSentAt = msg.SentAt
		if err := tx.Set(convRef, newConversationDoc(conv)); err != nil {
			return err
		}
		return tx.Create(r.messages(msg.ConversationID).Doc(msg.ID), msg)
	})
	if err != nil {
		return wrapFirestore("Failed to create message", err)
	}
	return nil
}

func (r *firestoreChatRepository) GetMessage(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	doc, err := r.messages(conversationID).Doc(messageID).Get(ctx)
	if err != nil {
		if isFirestoreNotFound(err) {
			return nil, errors.NotFound("Message", err)
		}
		return nil, wrapFirestore("Failed to get message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &message, nil
}

func (r *firestoreChatRepository) ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]*entity.Message, error) {
	query := r.messages(conversationID).Where("seq", ">", afterSeq).OrderBy("seq", firestore.Asc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapFirestore("Failed to list messages", err)
	}

	messages := make([]*entity.Message, 0, len(docs))
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}
	return messages, nil
}

func (r *firestoreChatRepository) MarkRead(ctx context.Context, conversationID, receiverID string, uptoSeq int64, readAt time.Time) (int64, error) {
	query := r.messages(conversationID).
		Where("receiverId", "==", receiverID).
		Where("isRead", "==", false).
		Where("seq", "<=", uptoSeq)

	var marked int64
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		marked = 0
		docs, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := tx.Update(doc.Ref, []firestore.Update{
				{Path: "isRead", Value: true},
				{Path: "readAt", Value: readAt},
			}); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return 0, wrapFirestore("Failed to mark messages read", err)
	}
	return marked, nil
}

func (r *firestoreChatRepository) CountUnread(ctx context.Context, conversationID, receiverID string) (int64, error) {
	docs, err := r.messages(conversationID).
		Where("receiverId", "==", receiverID).
		Where("isRead", "==", false).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, wrapFirestore("Failed to count unread messages", err)
	}
	return int64(len(docs)), nil
}

package usecase

import (
	"context"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/internal/infrastructure/lock"
	"pasarbekas/pkg/errors"
)

const (
	NotificationMessage     = "message"
	NotificationReadReceipt = "read_receipt"

	// messageTick is the gap enforced between consecutive sentAt values in one conversation.
	messageTick      = time.Microsecond
	maxMessageLength = 4000
	historyBatchSize = 50

	actionSendMessage = "send_message"
)

// Pagination walks a conversation by sequence number. AfterSeq is exclusive;
// Limit <= 0 means every message up to the head at the time iteration starts.
type Pagination struct {
	AfterSeq int64 `json:"after_seq"`
	Limit    int   `json:"limit"`
}

type ChatUseCase struct {
	chatRepo    repository.ChatRepository
	listingRepo repository.ListingRepository
	audit       *AuditUseCase
	authorizer  Authorizer
	notifier    Notifier
	limiter     RateLimiter
	locks       *lock.KeyedMutex
	clock       clockwork.Clock
}

func NewChatUseCase(
	chatRepo repository.ChatRepository,
	listingRepo repository.ListingRepository,
	audit *AuditUseCase,
	authorizer Authorizer,
	notifier Notifier,
	limiter RateLimiter,
	locks *lock.KeyedMutex,
	clock clockwork.Clock,
) *ChatUseCase {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &ChatUseCase{
		chatRepo:    chatRepo,
		listingRepo: listingRepo,
		audit:       audit,
		authorizer:  authorizer,
		notifier:    notifier,
		limiter:     limiter,
		locks:       locks,
		clock:       clock,
	}
}

// OpenConversation returns the conversation for the listing and the unordered pair, creating it on first use.
func (uc *ChatUseCase) OpenConversation(ctx context.Context, listingID, userA, userB string) (*entity.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, errors.Validation("Both participants are required", nil)
	}
	if userA == userB {
		return nil, errors.SelfConversation(userA)
	}

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	a, b := entity.CanonicalPair(userA, userB)
	existing, err := uc.chatRepo.FindConversation(ctx, listingID, a, b)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	if listing.Status != entity.ListingActive {
		return nil, errors.Validation("Conversations can only be opened on active listings", nil).
			With("id", listing.ID).
			With("status", string(listing.Status))
	}
	if listing.SellerID != a && listing.SellerID != b {
		return nil, errors.Validation("One participant must be the seller of the listing", nil).With("id", listing.ID)
	}

	conv, created, err := uc.chatRepo.CreateConversation(ctx, &entity.Conversation{
		ID:           uuid.New().String(),
		ListingID:    listingID,
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    uc.clock.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if created {
		uc.audit.Emit(ctx, userA, entity.EventConversationOpened, conv.ID, map[string]interface{}{
			"listing_id":    listingID,
			"participant_a": a,
			"participant_b": b,
		})
	}
	return conv, nil
}

func (uc *ChatUseCase) Send(ctx context.Context, conversationID, senderID, body string) (*entity.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.EmptyMessage(conversationID)
	}
	if utf8.RuneCountInString(body) > maxMessageLength {
		return nil, errors.Validation("Message is too long", nil).With("max_length", maxMessageLength)
	}

	if uc.limiter != nil {
		if ok, wait := uc.limiter.Allow(senderID, actionSendMessage); !ok {
			return nil, errors.TooManyRequests("Too many messages, slow down").With("retry_after", wait.String())
		}
	}

	return uc.appendMessage(ctx, conversationID, senderID, body, entity.MessageText)
}

// SendSystem posts an informational message from the system actor, visible to both participants.
func (uc *ChatUseCase) SendSystem(ctx context.Context, conversationID, body string) (*entity.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.EmptyMessage(conversationID)
	}
	return uc.appendMessage(ctx, conversationID, entity.SystemActorID, body, entity.MessageSystem)
}

func (uc *ChatUseCase) appendMessage(ctx context.Context, conversationID, senderID, body string, msgType entity.MessageType) (*entity.Message, error) {
	unlock := uc.locks.Lock(lock.ConversationKey(conversationID))
	defer unlock()

	conv, err := uc.chatRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	var receiverID string
	recipients := []string{conv.ParticipantA, conv.ParticipantB}
	if msgType == entity.MessageText {
		if !conv.HasParticipant(senderID) {
			return nil, errors.NotAParticipant(conversationID, senderID)
		}
		receiverID = conv.Counterpart(senderID)
		recipients = []string{receiverID}
	}

	sentAt := uc.clock.Now().UTC()
	if !conv.LastSentAt.IsZero() && !sentAt.After(conv.LastSentAt) {
		sentAt = conv.LastSentAt.Add(messageTick)
	}

	msg := &entity.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Seq:            conv.LastSeq + 1,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           body,
		Type:           msgType,
		SentAt:         sentAt,
	}
	if err := uc.chatRepo.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"listing_id": conv.ListingID,
		"message_id": msg.ID,
		"seq":        msg.Seq,
	}
	event := entity.EventMessageSent
	if msgType == entity.MessageSystem {
		event = entity.EventSystemMessage
		payload["participant_a"] = conv.ParticipantA
		payload["participant_b"] = conv.ParticipantB
	} else {
		payload["sender_id"] = senderID
		payload["receiver_id"] = receiverID
	}
	uc.audit.Emit(ctx, senderID, event, conversationID, payload)

	uc.notifier.Notify(recipients, NotificationMessage, msg)
	return msg, nil
}

// MarkRead flags every unread message addressed to receiverID up to and including uptoMessageID.
// Repeating the call changes nothing.
func (uc *ChatUseCase) MarkRead(ctx context.Context, conversationID, receiverID, uptoMessageID string) (int64, error) {
	conv, err := uc.chatRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(receiverID) {
		return 0, errors.NotAParticipant(conversationID, receiverID)
	}

	upto, err := uc.chatRepo.GetMessage(ctx, conversationID, uptoMessageID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return 0, errors.Validation("Message does not belong to this conversation", err).
				With("conversation_id", conversationID).
				With("message_id", uptoMessageID)
		}
		return 0, err
	}

	marked, err := uc.chatRepo.MarkRead(ctx, conversationID, receiverID, upto.Seq, uc.clock.Now().UTC())
	if err != nil {
		return 0, err
	}

	if marked > 0 {
		counterpart := conv.Counterpart(receiverID)
		uc.audit.Emit(ctx, receiverID, entity.EventMessagesRead, conversationID, map[string]interface{}{
			"receiver_id": receiverID,
			"upto_seq":    upto.Seq,
			"count":       marked,
		})
		uc.notifier.Notify([]string{counterpart}, NotificationReadReceipt, map[string]interface{}{
			"conversation_id": conversationID,
			"reader_id":       receiverID,
			"upto_message_id": uptoMessageID,
			"upto_seq":        upto.Seq,
		})
	}
	return marked, nil
}

// History yields messages in ascending Seq order. The sequence is lazy and restartable:
// every range over it checks access and re-reads storage in batches.
func (uc *ChatUseCase) History(ctx context.Context, viewer entity.Actor, conversationID string, page Pagination) iter.Seq2[*entity.Message, error] {
	return func(yield func(*entity.Message, error) bool) {
		conv, err := uc.authorizeViewer(ctx, viewer, conversationID)
		if err != nil {
			yield(nil, err)
			return
		}
		uc.history(ctx, conv, page)(yield)
	}
}

func (uc *ChatUseCase) history(ctx context.Context, conv *entity.Conversation, page Pagination) iter.Seq2[*entity.Message, error] {
	return func(yield func(*entity.Message, error) bool) {
		head := conv.LastSeq
		after := page.AfterSeq
		remaining := page.Limit

		for after < head {
			batch := historyBatchSize
			if page.Limit > 0 && remaining < batch {
				batch = remaining
			}

			msgs, err := uc.chatRepo.ListMessages(ctx, conv.ID, after, batch)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, m := range msgs {
				if m.Seq > head {
					return
				}
				if !yield(m, nil) {
					return
				}
				after = m.Seq
				remaining--
				if page.Limit > 0 && remaining == 0 {
					return
				}
			}
			if len(msgs) < batch {
				return
			}
		}
	}
}

// HistoryPage collects one page of History and returns the cursor for the next page, 0 when exhausted.
func (uc *ChatUseCase) HistoryPage(ctx context.Context, viewer entity.Actor, conversationID string, page Pagination) ([]*entity.Message, int64, error) {
	conv, err := uc.authorizeViewer(ctx, viewer, conversationID)
	if err != nil {
		return nil, 0, err
	}
	return collectPage(uc.history(ctx, conv, page), conv, page)
}

func collectPage(seq iter.Seq2[*entity.Message, error], conv *entity.Conversation, page Pagination) ([]*entity.Message, int64, error) {
	messages := []*entity.Message{}
	for m, err := range seq {
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, m)
	}

	var next int64
	if n := len(messages); n > 0 && page.Limit > 0 && n == page.Limit && messages[n-1].Seq < conv.LastSeq {
		next = messages[n-1].Seq
	}
	return messages, next, nil
}

func (uc *ChatUseCase) GetConversation(ctx context.Context, viewer entity.Actor, conversationID string) (*entity.Conversation, error) {
	return uc.authorizeViewer(ctx, viewer, conversationID)
}

func (uc *ChatUseCase) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	return uc.chatRepo.ListConversationsByUser(ctx, userID, limit, offset)
}

func (uc *ChatUseCase) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	conv, err := uc.chatRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(userID) {
		return 0, errors.NotAParticipant(conversationID, userID)
	}
	return uc.chatRepo.CountUnread(ctx, conversationID, userID)
}

// authorizeViewer admits participants and actors allowed to read other people's conversations.
func (uc *ChatUseCase) authorizeViewer(ctx context.Context, viewer entity.Actor, conversationID string) (*entity.Conversation, error) {
	conv, err := uc.chatRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.HasParticipant(viewer.ID) || uc.authorizer.HasCapability(viewer, entity.CapabilityViewConversations) {
		return conv, nil
	}
	return nil, errors.NotAParticipant(conversationID, viewer.ID)
}

// conversationFor finds the thread between buyer and seller on a listing, if any.
func (uc *ChatUseCase) conversationFor(ctx context.Context, listingID, buyerID, sellerID string) (*entity.Conversation, error) {
	a, b := entity.CanonicalPair(buyerID, sellerID)
	return uc.chatRepo.FindConversation(ctx, listingID, a, b)
}

package websocket

import (
	"context"
	"encoding/json"
	"time"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/pkg/errors"
	"pasarbekas/pkg/logger"
)

const (
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeSendMessage = "send_message"
	MessageTypeMarkRead    = "mark_read"
	MessageTypeAck         = "ack"
	MessageTypeError       = "error"
)

// ChatService is the part of the chat engine reachable over the socket.
type ChatService interface {
	Send(ctx context.Context, conversationID, senderID, body string) (*entity.Message, error)
	MarkRead(ctx context.Context, conversationID, receiverID, uptoMessageID string) (int64, error)
}

type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type inbound struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

type SendMessageData struct {
	ConversationID string `json:"conversation_id"`
	Body           string `json:"body"`
}

type MarkReadData struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HandleClientMessage dispatches one frame from client. Replies go back on the same connection.
func (m *Manager) HandleClientMessage(ctx context.Context, client *Client, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		m.replyError(client, "", errors.Validation("Invalid message format", err))
		return
	}

	switch msg.Type {
	case MessageTypePing:
		m.reply(client, WSMessage{Type: MessageTypePong, RequestID: msg.RequestID})

	case MessageTypeSendMessage:
		var data SendMessageData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.ConversationID == "" {
			m.replyError(client, msg.RequestID, errors.Validation("conversation_id and body are required", err))
			return
		}
		sent, err := m.chat.Send(ctx, data.ConversationID, client.UserID, data.Body)
		if err != nil {
			m.replyError(client, msg.RequestID, err)
			return
		}
		m.reply(client, WSMessage{Type: MessageTypeAck, RequestID: msg.RequestID, Data: sent})

	case MessageTypeMarkRead:
		var data MarkReadData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.ConversationID == "" || data.MessageID == "" {
			m.replyError(client, msg.RequestID, errors.Validation("conversation_id and message_id are required", err))
			return
		}
		marked, err := m.chat.MarkRead(ctx, data.ConversationID, client.UserID, data.MessageID)
		if err != nil {
			m.replyError(client, msg.RequestID, err)
			return
		}
		m.reply(client, WSMessage{Type: MessageTypeAck, RequestID: msg.RequestID, Data: map[string]int64{"marked": marked}})

	default:
		m.replyError(client, msg.RequestID, errors.BadRequest("Unknown message type "+msg.Type, nil))
	}
}

func (m *Manager) reply(client *Client, msg WSMessage) {
	msg.Timestamp = m.clock.Now().UTC().Format(time.RFC3339Nano)
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to encode websocket reply: %v", err)
		return
	}
	select {
	case client.Send <- payload:
	default:
		logger.Warn("Websocket reply to %s dropped, buffer full", client.UserID)
	}
}

func (m *Manager) replyError(client *Client, requestID string, err error) {
	data := ErrorData{Code: errors.CodeInternal, Message: "Internal server error"}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		data = ErrorData{Code: appErr.Code, Message: appErr.Message}
	} else {
		logger.Error("Websocket request from %s failed: %v", client.UserID, err)
	}
	m.reply(client, WSMessage{Type: MessageTypeError, RequestID: requestID, Data: data})
}

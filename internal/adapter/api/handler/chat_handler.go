package handler

import (
	"github.com/labstack/echo/v4"

	"pasarbekas/internal/adapter/api/middleware"
	"pasarbekas/internal/usecase"
	"pasarbekas/pkg/response"
	"pasarbekas/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type openConversationRequest struct {
	ListingID     string `json:"listing_id" validate:"required"`
	CounterpartID string `json:"counterpart_id" validate:"required"`
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

type markReadRequest struct {
	MessageID string `json:"message_id" validate:"required"`
}

func (h *ChatHandler) OpenConversation(c echo.Context) error {
	var req openConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := middleware.ActorFrom(c).ID
	conv, err := h.chatUseCase.OpenConversation(c.Request().Context(), req.ListingID, userID, req.CounterpartID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}

func (h *ChatHandler) ListConversations(c echo.Context) error {
	pagination := utils.GetPaginationParams(c)

	convs, total, err := h.chatUseCase.ListConversations(c.Request().Context(), middleware.ActorFrom(c).ID, pagination.PageSize, pagination.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, convs, total, pagination.Page, pagination.PageSize)
}

func (h *ChatHandler) GetConversation(c echo.Context) error {
	conv, err := h.chatUseCase.GetConversation(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}

// SendMessage takes the body as-is; blank bodies are rejected by the chat engine with EMPTY_MESSAGE.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	msg, err := h.chatUseCase.Send(c.Request().Context(), c.Param("id"), middleware.ActorFrom(c).ID, req.Body)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, msg)
}

// GetMessages pages by sequence: ?after=<seq>&limit=<n>.
func (h *ChatHandler) GetMessages(c echo.Context) error {
	pagination := utils.GetPaginationParams(c)
	page := usecase.Pagination{
		AfterSeq: utils.QueryInt64(c, "after", 0),
		Limit:    pagination.PageSize,
	}

	msgs, next, err := h.chatUseCase.HistoryPage(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), page)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Cursor(c, msgs, next)
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	marked, err := h.chatUseCase.MarkRead(c.Request().Context(), c.Param("id"), middleware.ActorFrom(c).ID, req.MessageID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]int64{"marked": marked})
}

func (h *ChatHandler) UnreadCount(c echo.Context) error {
	count, err := h.chatUseCase.UnreadCount(c.Request().Context(), c.Param("id"), middleware.ActorFrom(c).ID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]int64{"unread": count})
}

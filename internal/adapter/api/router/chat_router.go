package router

import (
	"github.com/labstack/echo/v4"

	"pasarbekas/internal/adapter/api/handler"
	"pasarbekas/internal/adapter/api/middleware"
)

func SetupChatRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimit echo.MiddlewareFunc) {
	chatHandler := handler.GetChatHandler()

	conversations := e.Group("/v1/conversations")
	conversations.Use(authMiddleware.Authenticate, rateLimit)

	conversations.POST("", chatHandler.OpenConversation)
	conversations.GET("", chatHandler.ListConversations)
	conversations.GET("/:id", chatHandler.GetConversation)
	conversations.GET("/:id/unread", chatHandler.UnreadCount)
	conversations.POST("/:id/read", chatHandler.MarkRead)

	conversations.POST("/:id/messages", chatHandler.SendMessage)
	conversations.GET("/:id/messages", chatHandler.GetMessages)
}

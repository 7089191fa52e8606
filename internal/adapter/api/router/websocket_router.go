package router

import (
	"github.com/labstack/echo/v4"

	"pasarbekas/internal/adapter/api/handler"
	"pasarbekas/internal/adapter/api/middleware"
)

func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler, authMiddleware *middleware.AuthMiddleware) {
	// Browsers can't send headers on upgrade; the firebase verifier also accepts ?token=.
	e.GET("/v1/ws", wsHandler.HandleWebSocket, authMiddleware.Authenticate)
}

package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"pasarbekas/internal/adapter/api/handler"
	"pasarbekas/internal/adapter/api/middleware"
)

func Setup(
	e *echo.Echo,
	authMiddleware *middleware.AuthMiddleware,
	adminMiddleware *middleware.AdminMiddleware,
	rateLimit echo.MiddlewareFunc,
	wsHandler *handler.WebSocketHandler,
	gatherer prometheus.Gatherer,
) {
	SetupListingRouter(e, authMiddleware, rateLimit)
	SetupChatRouter(e, authMiddleware, rateLimit)
	SetupTransactionRouter(e, authMiddleware, rateLimit)
	SetupAdminRouter(e, authMiddleware, adminMiddleware)
	SetupWebSocketRouter(e, wsHandler, authMiddleware)
	SetupHealthRouter(e, gatherer)
}

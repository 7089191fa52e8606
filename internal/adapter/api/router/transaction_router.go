package router

import (
	"github.com/labstack/echo/v4"

	"pasarbekas/internal/adapter/api/handler"
	"pasarbekas/internal/adapter/api/middleware"
)

func SetupTransactionRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimit echo.MiddlewareFunc) {
	transactionHandler := handler.GetTransactionHandler()

	transactions := e.Group("/v1/transactions")
	transactions.Use(authMiddleware.Authenticate, rateLimit)

	transactions.POST("", transactionHandler.OpenTransaction)
	transactions.GET("", transactionHandler.ListTransactions)
	transactions.GET("/:id", transactionHandler.GetTransaction)
	transactions.GET("/:id/logs", transactionHandler.GetLogs)

	transactions.POST("/:id/confirm-funds", transactionHandler.ConfirmFunds)
	transactions.POST("/:id/complete", transactionHandler.Complete)
	transactions.POST("/:id/dispute", transactionHandler.RaiseDispute)
	transactions.POST("/:id/cancel", transactionHandler.Cancel)
}

package router

import (
	"github.com/labstack/echo/v4"

	"pasarbekas/internal/adapter/api/handler"
	"pasarbekas/internal/adapter/api/middleware"
	"pasarbekas/internal/domain/entity"
)

func SetupAdminRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, adminMiddleware *middleware.AdminMiddleware) {
	moderationHandler := handler.GetModerationHandler()
	transactionHandler := handler.GetTransactionHandler()
	auditHandler := handler.GetAuditHandler()

	admin := e.Group("/v1/admin")
	admin.Use(authMiddleware.Authenticate)

	moderate := adminMiddleware.Require(entity.CapabilityModerate)
	admin.GET("/listings/pending", moderationHandler.ListPending, moderate)
	admin.POST("/listings/:id/approve", moderationHandler.Approve, moderate)
	admin.POST("/listings/:id/reject", moderationHandler.Reject, moderate)
	admin.PATCH("/listings/:id", moderationHandler.AdminEdit, adminMiddleware.Require(entity.CapabilityEditListing))

	resolve := adminMiddleware.Require(entity.CapabilityResolve)
	admin.GET("/transactions", transactionHandler.ListAllTransactions, resolve)
	admin.GET("/transactions/:id/dispute", transactionHandler.GetDisputeContext, resolve)
	admin.POST("/transactions/:id/resolve", transactionHandler.Resolve, resolve)

	admin.GET("/audit", auditHandler.ListEvents, resolve)
}

package router

import (
	"github.com/labstack/echo/v4"

	"pasarbekas/internal/adapter/api/handler"
	"pasarbekas/internal/adapter/api/middleware"
)

func SetupListingRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimit echo.MiddlewareFunc) {
	listingHandler := handler.GetListingHandler()

	// Public catalogue
	e.GET("/v1/listings", listingHandler.ListListings, rateLimit)
	e.GET("/v1/listings/:id", listingHandler.GetListing, rateLimit)

	listings := e.Group("/v1/listings")
	listings.Use(authMiddleware.Authenticate, rateLimit)

	listings.POST("", listingHandler.CreateListing)
	listings.GET("/mine", listingHandler.ListMyListings)
	listings.PATCH("/:id", listingHandler.UpdateListing)
	listings.POST("/:id/submit", listingHandler.SubmitForReview)
	listings.POST("/:id/resubmit", listingHandler.Resubmit)
	listings.GET("/:id/transactions", listingHandler.ListTransactions)
}

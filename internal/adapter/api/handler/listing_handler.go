package handler

import (
	"github.com/labstack/echo/v4"

	"pasarbekas/internal/adapter/api/middleware"
	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/internal/usecase"
	"pasarbekas/pkg/response"
	"pasarbekas/pkg/utils"
)

type ListingHandler struct {
	listingUseCase     *usecase.ListingUseCase
	moderationUseCase  *usecase.ModerationUseCase
	transactionUseCase *usecase.TransactionUseCase
}

func NewListingHandler(
	listingUseCase *usecase.ListingUseCase,
	moderationUseCase *usecase.ModerationUseCase,
	transactionUseCase *usecase.TransactionUseCase,
) *ListingHandler {
	return &ListingHandler{
		listingUseCase:     listingUseCase,
		moderationUseCase:  moderationUseCase,
		transactionUseCase: transactionUseCase,
	}
}

func (h *ListingHandler) CreateListing(c echo.Context) error {
	var req usecase.CreateListingInput
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	listing, err := h.listingUseCase.Create(c.Request().Context(), middleware.ActorFrom(c), req)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, listing)
}

func (h *ListingHandler) GetListing(c echo.Context) error {
	listing, err := h.listingUseCase.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, listing)
}

// ListListings is the public catalogue. It only ever shows active listings.
func (h *ListingHandler) ListListings(c echo.Context) error {
	pagination := utils.GetPaginationParams(c)
	filter := repository.ListingFilter{
		Status:   entity.ListingActive,
		Category: entity.Category(c.QueryParam("category")),
		SellerID: c.QueryParam("seller_id"),
		MinPrice: utils.QueryInt64(c, "min_price", 0),
		MaxPrice: utils.QueryInt64(c, "max_price", 0),
	}

	listings, total, err := h.listingUseCase.List(c.Request().Context(), usecase.ListingQuery{ListingFilter: filter}, pagination.PageSize, pagination.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, listings, total, pagination.Page, pagination.PageSize)
}

// ListMyListings shows the caller's listings in every status.
func (h *ListingHandler) ListMyListings(c echo.Context) error {
	pagination := utils.GetPaginationParams(c)
	filter := repository.ListingFilter{
		Status:   entity.ListingStatus(c.QueryParam("status")),
		SellerID: middleware.ActorFrom(c).ID,
	}

	listings, total, err := h.listingUseCase.List(c.Request().Context(), usecase.ListingQuery{ListingFilter: filter}, pagination.PageSize, pagination.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, listings, total, pagination.Page, pagination.PageSize)
}

func (h *ListingHandler) UpdateListing(c echo.Context) error {
	var req usecase.UpdateListingInput
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	listing, err := h.listingUseCase.Update(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), req)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, listing)
}

func (h *ListingHandler) SubmitForReview(c echo.Context) error {
	listing, err := h.moderationUseCase.SubmitForReview(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, listing)
}

func (h *ListingHandler) Resubmit(c echo.Context) error {
	listing, err := h.moderationUseCase.Resubmit(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, listing)
}

func (h *ListingHandler) ListTransactions(c echo.Context) error {
	transactions, err := h.transactionUseCase.ListByListing(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, transactions)
}

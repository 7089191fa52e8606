package handler

import (
	"github.com/labstack/echo/v4"

	"pasarbekas/internal/adapter/api/middleware"
	"pasarbekas/internal/usecase"
	"pasarbekas/pkg/response"
	"pasarbekas/pkg/utils"
)

type ModerationHandler struct {
	moderationUseCase *usecase.ModerationUseCase
	listingUseCase    *usecase.ListingUseCase
}

func NewModerationHandler(moderationUseCase *usecase.ModerationUseCase, listingUseCase *usecase.ListingUseCase) *ModerationHandler {
	return &ModerationHandler{
		moderationUseCase: moderationUseCase,
		listingUseCase:    listingUseCase,
	}
}

type rejectListingRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *ModerationHandler) ListPending(c echo.Context) error {
	pagination := utils.GetPaginationParams(c)

	listings, total, err := h.moderationUseCase.ListPending(c.Request().Context(), middleware.ActorFrom(c), pagination.PageSize, pagination.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, listings, total, pagination.Page, pagination.PageSize)
}

func (h *ModerationHandler) Approve(c echo.Context) error {
	listing, err := h.moderationUseCase.Approve(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, listing)
}

func (h *ModerationHandler) Reject(c echo.Context) error {
	var req rejectListingRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	listing, err := h.moderationUseCase.Reject(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, listing)
}

func (h *ModerationHandler) AdminEdit(c echo.Context) error {
	var req usecase.AdminEditInput
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	listing, err := h.listingUseCase.AdminEdit(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), req)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, listing)
}

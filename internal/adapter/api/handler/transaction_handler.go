package handler

import (
	"github.com/labstack/echo/v4"

	"pasarbekas/internal/adapter/api/middleware"
	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/usecase"
	"pasarbekas/pkg/response"
	"pasarbekas/pkg/utils"
)

type TransactionHandler struct {
	transactionUseCase *usecase.TransactionUseCase
}

func NewTransactionHandler(transactionUseCase *usecase.TransactionUseCase) *TransactionHandler {
	return &TransactionHandler{
		transactionUseCase: transactionUseCase,
	}
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type disputeRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type resolveDisputeRequest struct {
	Outcome entity.DisputeOutcome `json:"outcome" validate:"required,dispute_outcome"`
}

func (h *TransactionHandler) OpenTransaction(c echo.Context) error {
	var req usecase.OpenTransactionInput
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	transaction, err := h.transactionUseCase.Open(c.Request().Context(), middleware.ActorFrom(c), req)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, transaction)
}

func (h *TransactionHandler) GetTransaction(c echo.Context) error {
	transaction, err := h.transactionUseCase.Get(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, transaction)
}

// ListTransactions returns the caller's transactions. ?role=buyer|seller narrows the side.
func (h *TransactionHandler) ListTransactions(c echo.Context) error {
	pagination := utils.GetPaginationParams(c)

	transactions, total, err := h.transactionUseCase.ListByUser(
		c.Request().Context(),
		middleware.ActorFrom(c).ID,
		c.QueryParam("role"),
		entity.TransactionStatus(c.QueryParam("status")),
		pagination.PageSize,
		pagination.Offset,
	)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, transactions, total, pagination.Page, pagination.PageSize)
}

func (h *TransactionHandler) ListAllTransactions(c echo.Context) error {
	pagination := utils.GetPaginationParams(c)

	transactions, total, err := h.transactionUseCase.ListAll(
		c.Request().Context(),
		middleware.ActorFrom(c),
		entity.TransactionStatus(c.QueryParam("status")),
		pagination.PageSize,
		pagination.Offset,
	)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, transactions, total, pagination.Page, pagination.PageSize)
}

func (h *TransactionHandler) ConfirmFunds(c echo.Context) error {
	transaction, err := h.transactionUseCase.ConfirmFunds(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, transaction)
}

func (h *TransactionHandler) Complete(c echo.Context) error {
	transaction, err := h.transactionUseCase.Complete(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, transaction)
}

func (h *TransactionHandler) RaiseDispute(c echo.Context) error {
	var req disputeRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	transaction, err := h.transactionUseCase.RaiseDispute(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, transaction)
}

func (h *TransactionHandler) Cancel(c echo.Context) error {
	var req reasonRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	transaction, err := h.transactionUseCase.Cancel(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, transaction)
}

func (h *TransactionHandler) Resolve(c echo.Context) error {
	var req resolveDisputeRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	transaction, err := h.transactionUseCase.Resolve(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), req.Outcome)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, transaction)
}

func (h *TransactionHandler) GetLogs(c echo.Context) error {
	logs, err := h.transactionUseCase.Logs(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, logs)
}

func (h *TransactionHandler) GetDisputeContext(c echo.Context) error {
	pagination := utils.GetPaginationParams(c)
	page := usecase.Pagination{
		AfterSeq: utils.QueryInt64(c, "after", 0),
		Limit:    pagination.PageSize,
	}

	review, err := h.transactionUseCase.DisputeContext(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), page)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, review)
}

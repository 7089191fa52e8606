package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/internal/usecase"
	"pasarbekas/pkg/errors"
	"pasarbekas/pkg/response"
	"pasarbekas/pkg/utils"
)

type AuditHandler struct {
	auditUseCase *usecase.AuditUseCase
}

func NewAuditHandler(auditUseCase *usecase.AuditUseCase) *AuditHandler {
	return &AuditHandler{
		auditUseCase: auditUseCase,
	}
}

// ListEvents filters the audit log by ?subject_id, ?event_type, ?actor and ?since (RFC 3339).
func (h *AuditHandler) ListEvents(c echo.Context) error {
	filter := repository.AuditFilter{
		SubjectID: c.QueryParam("subject_id"),
		EventType: entity.AuditEventType(c.QueryParam("event_type")),
		Actor:     c.QueryParam("actor"),
	}
	if since := c.QueryParam("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return response.Error(c, errors.Validation("since must be an RFC 3339 timestamp", err))
		}
		filter.Since = t
	}

	pagination := utils.GetPaginationParams(c)
	events, err := h.auditUseCase.List(c.Request().Context(), filter, pagination.PageSize, pagination.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, events)
}

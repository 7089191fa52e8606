package response

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apperrors "pasarbekas/pkg/errors"
	"pasarbekas/pkg/logger"
)

type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type ErrorInfo struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type PaginatedResponse struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// CursorResponse pages by sequence number instead of offset. NextCursor is 0 on the last page.
type CursorResponse struct {
	Items      interface{} `json:"items"`
	NextCursor int64       `json:"next_cursor,omitempty"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func Success(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: now(),
	})
}

func Created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, Response{
		Success:   true,
		Data:      data,
		Timestamp: now(),
	})
}

func Paginated(c echo.Context, items interface{}, total int64, page, pageSize int) error {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(total) / pageSize
		if int(total)%pageSize > 0 {
			totalPages++
		}
	}

	return c.JSON(http.StatusOK, Response{
		Success:   true,
		Timestamp: now(),
		Data: PaginatedResponse{
			Items:      items,
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages,
		},
	})
}

func Cursor(c echo.Context, items interface{}, next int64) error {
	return Success(c, CursorResponse{Items: items, NextCursor: next})
}

// Error renders err with the status and code of the AppError it wraps.
// Anything else is logged and reported as a 500.
func Error(c echo.Context, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status >= http.StatusInternalServerError {
			logger.Error("%s %s failed: %v", c.Request().Method, c.Path(), err)
		}
		return c.JSON(appErr.Status, Response{
			Success:   false,
			Timestamp: now(),
			Error: &ErrorInfo{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			},
		})
	}

	var validationErr validator.ValidationErrors
	if errors.As(err, &validationErr) {
		details := make(map[string]interface{}, len(validationErr))
		for _, fe := range validationErr {
			details[fe.Field()] = fe.Tag()
		}
		return c.JSON(http.StatusBadRequest, Response{
			Success:   false,
			Timestamp: now(),
			Error: &ErrorInfo{
				Code:    apperrors.CodeValidation,
				Message: "Invalid input data",
				Details: details,
			},
		})
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return c.JSON(httpErr.Code, Response{
			Success:   false,
			Timestamp: now(),
			Error: &ErrorInfo{
				Code:    apperrors.CodeBadRequest,
				Message: http.StatusText(httpErr.Code),
			},
		})
	}

	logger.Error("%s %s failed: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, Response{
		Success:   false,
		Timestamp: now(),
		Error: &ErrorInfo{
			Code:    apperrors.CodeInternal,
			Message: "An unexpected error occurred",
		},
	})
}

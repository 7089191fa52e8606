package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PaginationParams struct {
	Page     int
	PageSize int
	Offset   int
}

// GetPaginationParams reads ?page= and ?limit=. Out of range values fall back to the defaults.
func GetPaginationParams(c echo.Context) PaginationParams {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("limit"))

	if page <= 0 {
		page = 1
	}

	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}

	return PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   (page - 1) * pageSize,
	}
}

// QueryInt64 parses an optional integer query parameter, returning def when absent or malformed.
func QueryInt64(c echo.Context, name string, def int64) int64 {
	v, err := strconv.ParseInt(c.QueryParam(name), 10, 64)
	if err != nil {
		return def
	}
	return v
}

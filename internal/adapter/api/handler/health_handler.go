package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger checks that a backing store answers.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	store  Pinger
	driver string
}

var healthHandler *HealthHandler

func NewHealthHandler(store Pinger, driver string) *HealthHandler {
	return &HealthHandler{
		store:  store,
		driver: driver,
	}
}

func SetupHealthHandler(store Pinger, driver string) {
	healthHandler = NewHealthHandler(store, driver)
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "Server is running",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *HealthHandler) CheckStorageHealth(c echo.Context) error {
	if h.store == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "driver": h.driver})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := h.store.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "Storage connection failed",
			"driver": h.driver,
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"driver": h.driver,
	})
}

package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"pasarbekas/internal/adapter/api/middleware"
	ws "pasarbekas/internal/infrastructure/websocket"
	"pasarbekas/pkg/errors"
	"pasarbekas/pkg/response"
)

type WebSocketHandler struct {
	wsManager *ws.Manager
	upgrader  gorillaws.Upgrader
}

func NewWebSocketHandler(wsManager *ws.Manager, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager: wsManager,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker allows every origin when the list is empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		return set[r.Header.Get("Origin")]
	}
}

// HandleWebSocket upgrades an authenticated request and serves it until the peer goes away.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	actor := middleware.ActorFrom(c)
	if actor.IsZero() {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		return nil
	}

	client := ws.NewClient(actor.ID, conn)
	if !h.wsManager.Add(client) {
		conn.WriteMessage(gorillaws.CloseMessage, gorillaws.FormatCloseMessage(gorillaws.CloseGoingAway, "server shutting down"))
		conn.Close()
		return nil
	}

	go client.WritePump()
	client.ReadPump(c.Request().Context(), h.wsManager)
	return nil
}

package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pasarbekas/internal/adapter/api"
	"pasarbekas/internal/adapter/api/handler"
	"pasarbekas/internal/adapter/api/middleware"
	"pasarbekas/internal/adapter/repository"
	"pasarbekas/internal/infrastructure/auth"
	"pasarbekas/internal/infrastructure/lock"
	"pasarbekas/internal/infrastructure/ratelimit"
	"pasarbekas/internal/infrastructure/websocket"
	"pasarbekas/internal/usecase"
	"pasarbekas/pkg/config"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

type resource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type server struct {
	t *testing.T
	e *echo.Echo
}

func newServer(t *testing.T) *server {
	t.Helper()

	db, err := repository.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	registry := prometheus.NewRegistry()
	authorizer := auth.NewRoleAuthorizer(map[string][]string{
		"admin": {"moderate", "complete", "resolve", "cancel", "edit_listing", "view_conversations"},
	})
	locks := lock.NewKeyedMutex()
	limiter := ratelimit.NewRateLimiter(clock, nil, ratelimit.PerSecond(1000, 1000))

	listingRepo := repository.NewSQLiteListingRepository(db)
	wsManager := websocket.NewManager(nil, clock)

	auditUC := usecase.NewAuditUseCase(repository.NewSQLiteAuditRepository(db), wsManager, clock, registry)
	listingUC := usecase.NewListingUseCase(listingRepo, auditUC, authorizer, locks, clock)
	moderationUC := usecase.NewModerationUseCase(listingUC, auditUC, authorizer, config.ModerationConfig{AutoApproveThreshold: 100000})
	chatUC := usecase.NewChatUseCase(repository.NewSQLiteChatRepository(db), listingRepo, auditUC, authorizer, wsManager, limiter, locks, clock)
	transactionUC := usecase.NewTransactionUseCase(repository.NewSQLiteTransactionRepository(db), listingRepo, listingUC, chatUC,
		auditUC, authorizer, locks, clock, config.TransactionConfig{PostSystemMessages: true, MaxNotesLength: 200})

	wsManager.SetChat(chatUC)
	wsManager.Start(ctx)

	handler.Setup(listingUC, moderationUC, chatUC, transactionUC, auditUC)
	handler.SetupHealthHandler(db, "sqlite")

	e := echo.New()
	e.Validator = api.NewValidator()
	Setup(e,
		middleware.NewAuthMiddleware(auth.HeaderVerifier{}),
		middleware.NewAdminMiddleware(authorizer),
		middleware.RateLimit(limiter),
		handler.NewWebSocketHandler(wsManager, nil),
		registry,
	)

	return &server{t: t, e: e}
}

// do sends a request as userID (anonymous when empty). roles is a comma-separated list.
func (s *server) do(method, path, userID, roles string, body interface{}) (int, envelope) {
	s.t.Helper()

	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != "" {
		req.Header.Set(auth.HeaderUserID, userID)
	}
	if roles != "" {
		req.Header.Set(auth.HeaderUserRoles, roles)
	}

	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (s *server) activeListing(price int64) resource {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/v1/listings", "seller-1", "", map[string]interface{}{
		"title":     "Road bike",
		"price":     price,
		"category":  "sports",
		"condition": "good",
	})
	require.Equal(s.t, http.StatusCreated, code)
	listing := decode[resource](s.t, env)

	code, env = s.do(http.MethodPost, "/v1/listings/"+listing.ID+"/submit", "seller-1", "", nil)
	require.Equal(s.t, http.StatusOK, code)
	listing = decode[resource](s.t, env)
	if listing.Status == "pending" {
		code, env = s.do(http.MethodPost, "/v1/admin/listings/"+listing.ID+"/approve", "admin-1", "admin", nil)
		require.Equal(s.t, http.StatusOK, code)
		listing = decode[resource](s.t, env)
	}
	require.Equal(s.t, "active", listing.Status)
	return listing
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)
	s.activeListing(5000)

	code, _ := s.do(http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/health/storage", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sqlite")

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pasarbekas_audit_events_total{event_type="listing.created"} 1`)
}

func TestAuthenticationAndValidationErrors(t *testing.T) {
	s := newServer(t)

	code, env := s.do(http.MethodPost, "/v1/listings", "", "", map[string]interface{}{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	code, env = s.do(http.MethodPost, "/v1/listings", "seller-1", "", map[string]interface{}{
		"title":     "Sword",
		"price":     100,
		"category":  "weapons",
		"condition": "good",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	code, env = s.do(http.MethodGet, "/v1/admin/listings/pending", "seller-1", "", nil)
	assert.Equal(t, http.StatusForbidden, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	code, _ = s.do(http.MethodGet, "/v1/listings/missing", "", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPublicCatalogueShowsOnlyActiveListings(t *testing.T) {
	s := newServer(t)
	active := s.activeListing(5000)

	code, _ := s.do(http.MethodPost, "/v1/listings", "seller-1", "", map[string]interface{}{
		"title":     "Pending bike",
		"price":     900000,
		"category":  "sports",
		"condition": "good",
	})
	require.Equal(t, http.StatusCreated, code)

	code, env := s.do(http.MethodGet, "/v1/listings", "", "", nil)
	require.Equal(t, http.StatusOK, code)
	page := decode[struct {
		Items []resource `json:"items"`
		Total int64      `json:"total"`
	}](t, env)
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, active.ID, page.Items[0].ID)

	code, env = s.do(http.MethodGet, "/v1/listings/mine", "seller-1", "", nil)
	require.Equal(t, http.StatusOK, code)
	mine := decode[struct {
		Total int64 `json:"total"`
	}](t, env)
	assert.EqualValues(t, 2, mine.Total)
}

func TestChatAndTransactionFlow(t *testing.T) {
	s := newServer(t)
	listing := s.activeListing(5000)

	code, env := s.do(http.MethodPost, "/v1/conversations", "buyer-1", "", map[string]string{
		"listing_id":     listing.ID,
		"counterpart_id": "seller-1",
	})
	require.Equal(t, http.StatusOK, code)
	conv := decode[resource](t, env)

	code, env = s.do(http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "buyer-1", "", map[string]string{"body": "still available?"})
	require.Equal(t, http.StatusCreated, code)
	first := decode[resource](t, env)

	code, env = s.do(http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "buyer-1", "", map[string]string{"body": "   "})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "EMPTY_MESSAGE", env.Error.Code)

	code, _ = s.do(http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", "other-1", "", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(http.MethodPost, "/v1/conversations/"+conv.ID+"/read", "seller-1", "", map[string]string{"message_id": first.ID})
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodPost, "/v1/transactions", "buyer-1", "", map[string]interface{}{
		"listing_id":      listing.ID,
		"amount":          5000,
		"payment_method":  "transfer",
		"conversation_id": conv.ID,
	})
	require.Equal(t, http.StatusCreated, code)
	tx := decode[resource](t, env)
	assert.Equal(t, "pending", tx.Status)

	code, env = s.do(http.MethodGet, "/v1/transactions/"+tx.ID, "other-1", "", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/complete", "buyer-1", "", nil)
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)

	code, env = s.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/confirm-funds", "seller-1", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "in_progress", decode[resource](t, env).Status)

	code, env = s.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/complete", "buyer-1", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", decode[resource](t, env).Status)

	code, env = s.do(http.MethodGet, "/v1/listings/"+listing.ID, "", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sold", decode[resource](t, env).Status)

	code, env = s.do(http.MethodGet, "/v1/transactions/"+tx.ID+"/logs", "seller-1", "", nil)
	require.Equal(t, http.StatusOK, code)
	var logs []struct {
		EventType string `json:"event_type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	require.Len(t, logs, 3)
	assert.Equal(t, "transaction.opened", logs[0].EventType)

	code, env = s.do(http.MethodGet, "/v1/conversations/"+conv.ID+"/messages?limit=2", "seller-1", "", nil)
	require.Equal(t, http.StatusOK, code)
	msgs := decode[struct {
		Items      []resource `json:"items"`
		NextCursor int64      `json:"next_cursor"`
	}](t, env)
	assert.Len(t, msgs.Items, 2)
	assert.EqualValues(t, 2, msgs.NextCursor)
}

func TestDisputeResolutionNeedsResolveCapability(t *testing.T) {
	s := newServer(t)
	listing := s.activeListing(5000)

	code, env := s.do(http.MethodPost, "/v1/transactions", "buyer-1", "", map[string]interface{}{
		"listing_id":     listing.ID,
		"amount":         5000,
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusCreated, code)
	tx := decode[resource](t, env)

	code, _ = s.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/confirm-funds", "seller-1", "", nil)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/dispute", "buyer-1", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/dispute", "buyer-1", "", map[string]string{"reason": "never arrived"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "disputed", decode[resource](t, env).Status)

	code, _ = s.do(http.MethodPost, "/v1/admin/transactions/"+tx.ID+"/resolve", "seller-1", "", map[string]string{"outcome": "favor_completion"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodPost, "/v1/admin/transactions/"+tx.ID+"/resolve", "admin-1", "admin", map[string]string{"outcome": "split"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(http.MethodGet, "/v1/admin/transactions/"+tx.ID+"/dispute", "admin-1", "admin", nil)
	require.Equal(t, http.StatusOK, code)
	dispute := decode[struct {
		Transaction resource `json:"transaction"`
		Listing     resource `json:"listing"`
	}](t, env)
	assert.Equal(t, "disputed", dispute.Transaction.Status)
	assert.Equal(t, listing.ID, dispute.Listing.ID)

	code, env = s.do(http.MethodPost, "/v1/admin/transactions/"+tx.ID+"/resolve", "admin-1", "admin", map[string]string{"outcome": "favor_cancellation"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancelled", decode[resource](t, env).Status)

	code, env = s.do(http.MethodGet, "/v1/listings/"+listing.ID, "", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "active", decode[resource](t, env).Status)

	code, env = s.do(http.MethodGet, "/v1/admin/audit?subject_id="+tx.ID, "admin-1", "admin", nil)
	require.Equal(t, http.StatusOK, code)
}

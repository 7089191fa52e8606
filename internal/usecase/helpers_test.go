package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	sqlrepo "pasarbekas/internal/adapter/repository"
	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/internal/infrastructure/auth"
	"pasarbekas/internal/infrastructure/lock"
	"pasarbekas/internal/infrastructure/ratelimit"
	"pasarbekas/pkg/config"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

var (
	seller = entity.Actor{ID: "seller-1", Roles: []string{"user"}}
	buyer  = entity.Actor{ID: "buyer-1", Roles: []string{"user"}}
	other  = entity.Actor{ID: "other-1", Roles: []string{"user"}}
	admin  = entity.Actor{ID: "admin-1", Roles: []string{"admin"}}
)

type notification struct {
	userIDs   []string
	eventType string
	data      interface{}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *recordingNotifier) Notify(userIDs []string, eventType string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{userIDs: userIDs, eventType: eventType, data: data})
}

func (n *recordingNotifier) ofType(eventType string) []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification
	for _, c := range n.calls {
		if c.eventType == eventType {
			out = append(out, c)
		}
	}
	return out
}

type harness struct {
	clock        clockwork.FakeClock
	notifier     *recordingNotifier
	listingRepo  repository.ListingRepository
	chatRepo     repository.ChatRepository
	audit        *AuditUseCase
	listings     *ListingUseCase
	moderation   *ModerationUseCase
	chat         *ChatUseCase
	transactions *TransactionUseCase
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	limits     map[string]ratelimit.Rule
	threshold  int64
	sysMessage bool
}

func withRateLimits(rules map[string]ratelimit.Rule) harnessOption {
	return func(c *harnessConfig) { c.limits = rules }
}

func withAutoApproveThreshold(threshold int64) harnessOption {
	return func(c *harnessConfig) { c.threshold = threshold }
}

func withSystemMessages() harnessOption {
	return func(c *harnessConfig) { c.sysMessage = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{threshold: 100000}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sqlrepo.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := clockwork.NewFakeClockAt(testNow)
	notifier := &recordingNotifier{}
	authorizer := auth.NewRoleAuthorizer(map[string][]string{
		"admin": {"moderate", "complete", "resolve", "cancel", "edit_listing", "view_conversations"},
	})
	locks := lock.NewKeyedMutex()

	var limiter RateLimiter
	if cfg.limits != nil {
		limiter = ratelimit.NewRateLimiter(clock, cfg.limits, ratelimit.PerSecond(100, 100))
	}

	listingRepo := sqlrepo.NewSQLiteListingRepository(db)
	chatRepo := sqlrepo.NewSQLiteChatRepository(db)
	transactionRepo := sqlrepo.NewSQLiteTransactionRepository(db)

	audit := NewAuditUseCase(sqlrepo.NewSQLiteAuditRepository(db), notifier, clock, prometheus.NewRegistry())
	listings := NewListingUseCase(listingRepo, audit, authorizer, locks, clock)
	moderation := NewModerationUseCase(listings, audit, authorizer, config.ModerationConfig{AutoApproveThreshold: cfg.threshold})
	chat := NewChatUseCase(chatRepo, listingRepo, audit, authorizer, notifier, limiter, locks, clock)
	transactions := NewTransactionUseCase(transactionRepo, listingRepo, listings, chat, audit, authorizer, locks, clock,
		config.TransactionConfig{PostSystemMessages: cfg.sysMessage, MaxNotesLength: 200})

	return &harness{
		clock:        clock,
		notifier:     notifier,
		listingRepo:  listingRepo,
		chatRepo:     chatRepo,
		audit:        audit,
		listings:     listings,
		moderation:   moderation,
		chat:         chat,
		transactions: transactions,
	}
}

func (h *harness) createListing(t *testing.T, price int64) *entity.Listing {
	t.Helper()
	l, err := h.listings.Create(context.Background(), seller, CreateListingInput{
		Title:     "Road bike",
		Price:     price,
		Category:  entity.CategorySports,
		Condition: entity.ConditionGood,
	})
	require.NoError(t, err)
	return l
}

// activeListing creates a listing and walks it through moderation.
func (h *harness) activeListing(t *testing.T, price int64) *entity.Listing {
	t.Helper()
	l := h.createListing(t, price)
	ctx := context.Background()
	_, err := h.moderation.SubmitForReview(ctx, seller, l.ID)
	require.NoError(t, err)
	if got, _ := h.listings.Get(ctx, l.ID); got.Status == entity.ListingPending {
		_, err = h.moderation.Approve(ctx, admin, l.ID)
		require.NoError(t, err)
	}
	got, err := h.listings.Get(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, entity.ListingActive, got.Status)
	return got
}

func (h *harness) auditCount(eventType entity.AuditEventType) int {
	return int(testutil.ToFloat64(h.audit.Counter().WithLabelValues(string(eventType))))
}

func (h *harness) auditEvents(t *testing.T, filter repository.AuditFilter) []*entity.AuditEvent {
	t.Helper()
	events, err := h.audit.List(context.Background(), filter, 0, 0)
	require.NoError(t, err)
	return events
}

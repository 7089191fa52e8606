package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionRequest     = "request"
)

// Rule is a token bucket refilling Every interval up to Burst tokens.
type Rule struct {
	Every time.Duration
	Burst int
}

func PerMinute(n, burst int) Rule {
	if n <= 0 {
		n = 1
	}
	return Rule{Every: time.Minute / time.Duration(n), Burst: burst}
}

func PerSecond(n float64, burst int) Rule {
	if n <= 0 {
		n = 1
	}
	return Rule{Every: time.Duration(float64(time.Second) / n), Burst: burst}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one bucket per user and action.
type RateLimiter struct {
	clock    clockwork.Clock
	rules    map[string]Rule
	fallback Rule

	mutex   sync.Mutex
	buckets map[string]*bucket
}

func NewRateLimiter(clock clockwork.Clock, rules map[string]Rule, fallback Rule) *RateLimiter {
	return &RateLimiter{
		clock:    clock,
		rules:    rules,
		fallback: fallback,
		buckets:  make(map[string]*bucket),
	}
}

// Allow consumes a token for userID/action. When the bucket is empty it reports how long until the next token.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	now := rl.clock.Now()
	key := userID + ":" + action

	rl.mutex.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		rule, found := rl.rules[action]
		if !found {
			rule = rl.fallback
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Every(rule.Every), max(rule.Burst, 1))}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mutex.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup drops buckets unused for longer than idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	now := rl.clock.Now()

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) Size() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.buckets)
}

// StartCleanupRoutine evicts idle buckets every interval until ctx is done.
func (rl *RateLimiter) StartCleanupRoutine(ctx context.Context, interval, idle time.Duration) {
	go func() {
		ticker := rl.clock.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.Chan():
				rl.Cleanup(idle)
			case <-ctx.Done():
				return
			}
		}
	}()
}

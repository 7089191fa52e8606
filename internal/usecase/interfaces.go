package usecase

import (
	"time"

	"pasarbekas/internal/domain/entity"
)

// Authorizer decides whether an actor holds a capability. The engines never inspect roles themselves.
type Authorizer interface {
	HasCapability(actor entity.Actor, capability entity.Capability) bool
}

// Notifier pushes real-time events to connected users. Delivery is best-effort.
type Notifier interface {
	Notify(userIDs []string, eventType string, data interface{})
}

type RateLimiter interface {
	Allow(userID, action string) (bool, time.Duration)
}

type noopNotifier struct{}

func (noopNotifier) Notify([]string, string, interface{}) {}

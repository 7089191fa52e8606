package auth

import (
	"sync"

	"pasarbekas/internal/domain/entity"
)

// RoleAuthorizer grants capabilities by role. The mapping comes from configuration.
type RoleAuthorizer struct {
	mu     sync.RWMutex
	grants map[string]map[entity.Capability]bool
}

func NewRoleAuthorizer(roleCapabilities map[string][]string) *RoleAuthorizer {
	a := &RoleAuthorizer{}
	a.Replace(roleCapabilities)
	return a
}

// Replace swaps the whole role table.
func (a *RoleAuthorizer) Replace(roleCapabilities map[string][]string) {
	grants := make(map[string]map[entity.Capability]bool, len(roleCapabilities))
	for role, caps := range roleCapabilities {
		set := make(map[entity.Capability]bool, len(caps))
		for _, c := range caps {
			set[entity.Capability(c)] = true
		}
		grants[role] = set
	}

	a.mu.Lock()
	a.grants = grants
	a.mu.Unlock()
}

func (a *RoleAuthorizer) HasCapability(actor entity.Actor, capability entity.Capability) bool {
	if actor.IsZero() {
		return false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, role := range actor.Roles {
		if a.grants[role][capability] {
			return true
		}
	}
	return false
}

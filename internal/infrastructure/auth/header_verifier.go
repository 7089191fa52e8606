package auth

import (
	"context"
	"net/http"
	"strings"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/pkg/errors"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

// Verifier turns an incoming request into the authenticated actor.
type Verifier interface {
	Verify(ctx context.Context, r *http.Request) (entity.Actor, error)
}

// HeaderVerifier trusts X-User-ID and X-User-Roles. Only wire it in development.
type HeaderVerifier struct{}

func (HeaderVerifier) Verify(_ context.Context, r *http.Request) (entity.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	if id == "" {
		return entity.Actor{}, errors.Unauthorized(HeaderUserID+" header is required", nil)
	}

	var roles []string
	for _, role := range strings.Split(r.Header.Get(HeaderUserRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return entity.Actor{ID: id, Roles: roles}, nil
}

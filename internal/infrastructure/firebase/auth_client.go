package firebase

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/pkg/errors"
)

// RolesClaim is the custom claim carrying the caller's roles.
const RolesClaim = "roles"

type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

// Verify authenticates a request carrying "Authorization: Bearer <id token>".
func (f *FirebaseAuthClient) Verify(ctx context.Context, r *http.Request) (entity.Actor, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		// Browsers can't set headers on a websocket upgrade.
		if token := r.URL.Query().Get("token"); token != "" {
			return f.VerifyToken(ctx, token)
		}
		return entity.Actor{}, errors.Unauthorized("Authorization header is required", nil)
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return entity.Actor{}, errors.Unauthorized("Invalid authorization format", nil)
	}
	return f.VerifyToken(ctx, parts[1])
}

func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (entity.Actor, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return entity.Actor{}, errors.Unauthorized("Invalid or expired token", err)
	}

	return entity.Actor{ID: result.UID, Roles: rolesFromClaims(result.Claims)}, nil
}

// SetRoles stores roles as a custom claim. They show up on the user's next token refresh.
func (f *FirebaseAuthClient) SetRoles(ctx context.Context, uid string, roles []string) error {
	return f.client.SetCustomUserClaims(ctx, uid, map[string]interface{}{RolesClaim: roles})
}

func rolesFromClaims(claims map[string]interface{}) []string {
	switch v := claims[RolesClaim].(type) {
	case []interface{}:
		roles := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok && s != "" {
				roles = append(roles, s)
			}
		}
		return roles
	case string:
		if v == "" {
			return nil
		}
		return strings.Split(v, ",")
	}
	return nil
}

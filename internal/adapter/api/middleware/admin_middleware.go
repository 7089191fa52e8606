package middleware

import (
	"github.com/labstack/echo/v4"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/usecase"
	"pasarbekas/pkg/errors"
	"pasarbekas/pkg/response"
)

type AdminMiddleware struct {
	authorizer usecase.Authorizer
}

func NewAdminMiddleware(authorizer usecase.Authorizer) *AdminMiddleware {
	return &AdminMiddleware{
		authorizer: authorizer,
	}
}

// Require rejects callers lacking capability. It must run after Authenticate.
func (m *AdminMiddleware) Require(capability entity.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := ActorFrom(c)
			if actor.IsZero() {
				return response.Error(c, errors.Unauthorized("Authentication required", nil))
			}
			if !m.authorizer.HasCapability(actor, capability) {
				return response.Error(c, errors.Forbidden("Missing capability "+string(capability), nil))
			}
			return next(c)
		}
	}
}

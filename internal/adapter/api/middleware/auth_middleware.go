package middleware

import (
	"github.com/labstack/echo/v4"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/infrastructure/auth"
	"pasarbekas/pkg/response"
)

const (
	ContextUID   = "uid"
	ContextActor = "actor"
)

type AuthMiddleware struct {
	verifier auth.Verifier
}

func NewAuthMiddleware(verifier auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := m.verifier.Verify(c.Request().Context(), c.Request())
		if err != nil {
			return response.Error(c, err)
		}

		c.Set(ContextUID, actor.ID)
		c.Set(ContextActor, actor)

		return next(c)
	}
}

// ActorFrom returns the actor Authenticate stored on the context, or the zero actor.
func ActorFrom(c echo.Context) entity.Actor {
	actor, _ := c.Get(ContextActor).(entity.Actor)
	return actor
}

package middleware

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"pasarbekas/internal/infrastructure/ratelimit"
	"pasarbekas/pkg/errors"
	"pasarbekas/pkg/logger"
	"pasarbekas/pkg/response"
)

// RateLimit throttles requests per authenticated user, or per client IP before authentication.
func RateLimit(limiter *ratelimit.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key, _ := c.Get(ContextUID).(string)
			if key == "" {
				key = "ip:" + c.RealIP()
			}

			if ok, wait := limiter.Allow(key, ratelimit.ActionRequest); !ok {
				retryAfter := int(math.Ceil(wait.Seconds()))
				logger.Warn("Rate limit hit for %s on %s", key, c.Path())
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded").With("retry_after", retryAfter))
			}
			return next(c)
		}
	}
}

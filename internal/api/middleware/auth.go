package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/soundvault/entitlement-service/internal/core/ports"
)

// Context keys set by Auth.
const (
	UserIDKey = "user_id"
	EmailKey  = "email"
)

// Auth verifies the session token and injects the caller into the context.
// The header may carry "Bearer <token>" or the raw token.
func Auth(verifier ports.TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			token := authHeader
			if scheme, rest, ok := strings.Cut(authHeader, " "); ok {
				if !strings.EqualFold(scheme, "bearer") {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
				}
				token = strings.TrimSpace(rest)
			}

			session, err := verifier.VerifyToken(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(UserIDKey, session.UserID)
			c.Set(EmailKey, session.Email)

			return next(c)
		}
	}
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/soundvault/entitlement-service/internal/api/middleware"
)

// ctxUserID returns the caller injected by the Auth middleware. A missing or
// non-positive id means the middleware did not run: reject with 401.
func ctxUserID(c echo.Context) (int64, error) {
	id, _ := c.Get(middleware.UserIDKey).(int64)
	if id <= 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return id, nil
}

// bindAndValidate decodes the request body into req and runs struct validation.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	return c.Validate(req)
}

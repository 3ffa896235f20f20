package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/soundvault/entitlement-service/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

// statusOf lists domain errors in match order. detail keeps the wrapped message,
// otherwise only the sentinel text reaches the client.
var statusOf = []struct {
	err    error
	code   int
	detail bool
}{
	{domain.ErrValidation, http.StatusBadRequest, true},
	{domain.ErrInvalidPlan, http.StatusBadRequest, false},
	{domain.ErrInvalidLabel, http.StatusBadRequest, false},
	{domain.ErrInvalidOrExpiredKey, http.StatusBadRequest, false},
	{domain.ErrAmountMismatch, http.StatusBadRequest, true},

	{domain.ErrInvalidCredentials, http.StatusUnauthorized, false},
	{domain.ErrInvalidToken, http.StatusUnauthorized, false},

	{domain.ErrDeviceLimitReached, http.StatusForbidden, false},
	{domain.ErrKeyDeviceMismatch, http.StatusForbidden, false},
	{domain.ErrNoActiveSubscription, http.StatusForbidden, false},
	{domain.ErrSubscriptionExpired, http.StatusForbidden, false},

	{domain.ErrUserNotFound, http.StatusNotFound, false},
	{domain.ErrDeviceNotFound, http.StatusNotFound, false},
	{domain.ErrSubscriptionNotFound, http.StatusNotFound, false},
	{domain.ErrPaymentNotFound, http.StatusNotFound, false},
	{domain.ErrActivationKeyNotFound, http.StatusNotFound, false},

	{domain.ErrDuplicateEmail, http.StatusConflict, false},
	{domain.ErrInvalidTransition, http.StatusConflict, true},
	{domain.ErrActiveSubscriptionSet, http.StatusConflict, false},
}

// StatusFor maps err to its HTTP status, 500 when it is not a known domain error.
func StatusFor(err error) int {
	for _, s := range statusOf {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return http.StatusInternalServerError
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Known domain errors → deterministic HTTP codes.
	for _, s := range statusOf {
		if errors.Is(err, s.err) {
			if s.detail {
				return s.code, err.Error()
			}
			return s.code, s.err.Error()
		}
	}

	// Unexpected error: log the real cause, return a generic message.
	event := log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID))

	if errors.Is(err, domain.ErrGateway) {
		event.Msg("payment gateway failure")
		return http.StatusInternalServerError, domain.ErrGateway.Error()
	}
	event.Msg("unhandled error")
	return http.StatusInternalServerError, "internal server error"
}

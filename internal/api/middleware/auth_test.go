package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/soundvault/entitlement-service/internal/core/domain"
)

type stubVerifier map[string]*domain.Session

func (s stubVerifier) VerifyToken(token string) (*domain.Session, error) {
	if session, ok := s[token]; ok {
		return session, nil
	}
	return nil, domain.ErrInvalidToken
}

var verifier = stubVerifier{
	"good-token": {UserID: 42, Email: "alice@example.com", ExpiresAt: time.Now().Add(time.Hour)},
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	for name, header := range map[string]string{
		"bearer": "Bearer good-token",
		"raw":    "good-token",
	} {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", header)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			called := false
			handler := Auth(verifier)(func(c echo.Context) error {
				called = true
				if c.Get(UserIDKey) != int64(42) {
					t.Fatalf("user_id not set: %v", c.Get(UserIDKey))
				}
				if c.Get(EmailKey) != "alice@example.com" {
					t.Fatalf("email not set")
				}
				return c.NoContent(http.StatusOK)
			})

			if err := handler(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if !called {
				t.Fatalf("next not called")
			}
		})
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := map[string]string{
		"missing header": "",
		"wrong scheme":   "Token good-token",
		"unknown token":  "Bearer forged",
	}

	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := Auth(verifier)(func(c echo.Context) error {
				t.Fatalf("should not reach next")
				return nil
			})

			if err := handler(c); err != nil {
				e.HTTPErrorHandler(err, c)
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

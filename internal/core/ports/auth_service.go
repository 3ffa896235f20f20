package ports

import (
	"context"

	"github.com/soundvault/entitlement-service/internal/core/domain"
)

// AuthService registers users and issues session tokens.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*domain.User, string, error)
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
	TokenVerifier
}

// TokenVerifier checks a session token without touching the store.
type TokenVerifier interface {
	VerifyToken(token string) (*domain.Session, error)
}

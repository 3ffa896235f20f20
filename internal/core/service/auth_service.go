package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

const minPasswordLength = 6

// sessionClaims is the signed payload of a session token.
type sessionClaims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// AuthService implements registration, login and session token verification.
type AuthService struct {
	store     ports.Store
	jwtSecret []byte
	tokenTTL  time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewAuthService(store ports.Store, jwtSecret string, tokenTTL time.Duration, log zerolog.Logger) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		log:       log,
		now:       utcNow,
	}
}

// Register creates the user and returns a session token for it.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.User, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, "", fmt.Errorf("%w: email and password are required", domain.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, "", fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	var user *domain.User
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		created, err := tx.Users().Create(ctx, &domain.User{
			Email:        email,
			PasswordHash: string(hash),
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		user = created
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("register: %w", err)
	}

	token, err := s.issueToken(user, now)
	if err != nil {
		return nil, "", err
	}

	s.log.Info().Int64("user_id", user.ID).Msg("user registered")
	return user, token, nil
}

// Login checks the password, stamps last-login and returns a fresh session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, "", fmt.Errorf("%w: email and password are required", domain.ErrValidation)
	}

	now := s.now()
	var user *domain.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		found, err := tx.Users().FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password)) != nil {
			return domain.ErrInvalidCredentials
		}
		if err := tx.Users().TouchLastLogin(ctx, found.ID, now); err != nil {
			return err
		}
		found.LastLogin = &now
		user = found
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.log.Warn().Str("email", email).Msg("login rejected")
		}
		return nil, "", fmt.Errorf("login: %w", err)
	}

	token, err := s.issueToken(user, now)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// VerifyToken validates signature, algorithm and expiry. Anything unexpected fails closed.
func (s *AuthService) VerifyToken(token string) (*domain.Session, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}
	if claims.UserID <= 0 || claims.ExpiresAt == nil {
		return nil, domain.ErrInvalidToken
	}

	return &domain.Session{
		UserID:    claims.UserID,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *AuthService) issueToken(user *domain.User, now time.Time) (string, error) {
	claims := sessionClaims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
	"github.com/soundvault/entitlement-service/internal/infrastructure/db/memory"
)

func newAuthSvc(clock *testClock) (*AuthService, *memory.Store) {
	store := memory.New()
	svc := NewAuthService(store, "secret", 24*time.Hour, zerolog.Nop())
	svc.now = clock.Now
	return svc, store
}

func TestAuthService_Register_Success(t *testing.T) {
	svc, store := newAuthSvc(newTestClock())

	user, token, err := svc.Register(context.Background(), " alice@example.com ", "pass123")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.ID == 0 || user.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if token == "" {
		t.Fatalf("expected a session token")
	}

	stored, err := memoryUser(store, user.ID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if stored.PasswordHash == "pass123" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pass123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}

	session, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("token from Register does not verify: %v", err)
	}
	if session.UserID != user.ID || session.Email != user.Email {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	svc, _ := newAuthSvc(newTestClock())

	cases := []struct{ email, password string }{
		{"", "pass123"},
		{"bob@example.com", ""},
		{"   ", "pass123"},
		{"bob@example.com", "short"},
	}
	for _, tc := range cases {
		if _, _, err := svc.Register(context.Background(), tc.email, tc.password); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("Register(%q, %q): expected ErrValidation, got %v", tc.email, tc.password, err)
		}
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	svc, _ := newAuthSvc(newTestClock())

	if _, _, err := svc.Register(context.Background(), "bob@example.com", "pass123"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, _, err := svc.Register(context.Background(), "bob@example.com", "other-pass"); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	// Emails are matched exactly.
	if _, _, err := svc.Register(context.Background(), "Bob@example.com", "pass123"); err != nil {
		t.Fatalf("expected differently cased email to register, got %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	clock := newTestClock()
	svc, store := newAuthSvc(clock)

	registered, _, err := svc.Register(context.Background(), "carol@example.com", "s3cret!")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	clock.Advance(time.Hour)
	user, token, err := svc.Login(context.Background(), "carol@example.com", "s3cret!")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if token == "" || user.ID != registered.ID {
		t.Fatalf("unexpected login result: %+v %q", user, token)
	}

	stored, err := memoryUser(store, user.ID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if stored.LastLogin == nil || !stored.LastLogin.Equal(clock.Now()) {
		t.Fatalf("expected last login to be stamped, got %v", stored.LastLogin)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}, jwt.WithTimeFunc(clock.Now))
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims["email"] != "carol@example.com" {
		t.Fatalf("expected email claim, got %v", claims["email"])
	}
	if claims["user_id"] != float64(user.ID) {
		t.Fatalf("expected user_id claim %d, got %v", user.ID, claims["user_id"])
	}
}

func TestAuthService_Login_InvalidPassword(t *testing.T) {
	svc, _ := newAuthSvc(newTestClock())

	_, _, _ = svc.Register(context.Background(), "dave@example.com", "goodpass")
	if _, _, err := svc.Login(context.Background(), "dave@example.com", "badpass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_UserNotFound(t *testing.T) {
	svc, _ := newAuthSvc(newTestClock())

	if _, _, err := svc.Login(context.Background(), "ghost@example.com", "pass123"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAuthService_Login_MissingFields(t *testing.T) {
	svc, _ := newAuthSvc(newTestClock())

	if _, _, err := svc.Login(context.Background(), "", "pass123"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Token verification fails closed
// ---------------------------------------------------------------------------

func TestAuthService_VerifyToken_Expired(t *testing.T) {
	clock := newTestClock()
	svc, _ := newAuthSvc(clock)

	_, token, err := svc.Register(context.Background(), "erin@example.com", "pass123")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	clock.Advance(24*time.Hour + time.Second)
	if _, err := svc.VerifyToken(token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestAuthService_VerifyToken_Rejects(t *testing.T) {
	clock := newTestClock()
	svc, _ := newAuthSvc(clock)
	exp := jwt.NewNumericDate(clock.Now().Add(time.Hour))

	wrongKey, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1, "email": "x@example.com", "exp": exp.Unix(),
	}).SignedString([]byte("other-secret"))

	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": 1, "email": "x@example.com", "exp": exp.Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "x@example.com", "exp": exp.Unix(),
	}).SignedString([]byte("secret"))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1, "email": "x@example.com",
	}).SignedString([]byte("secret"))

	cases := map[string]string{
		"wrong key":  wrongKey,
		"none alg":   noneAlg,
		"no user id": noUser,
		"no expiry":  noExpiry,
		"garbage":    "not-a-token",
		"empty":      "",
	}
	for name, token := range cases {
		if _, err := svc.VerifyToken(token); !errors.Is(err, domain.ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func memoryUser(store *memory.Store, id int64) (*domain.User, error) {
	var user *domain.User
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		var err error
		user, err = tx.Users().FindByID(ctx, id)
		return err
	})
	return user, err
}

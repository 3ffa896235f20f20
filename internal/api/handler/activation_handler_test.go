package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

type stubActivationService struct {
	redeemFn func(ctx context.Context, key, deviceHash string) (*domain.SubscriptionSummary, error)
	verifyFn func(ctx context.Context, key, deviceHash string) (*domain.SubscriptionSummary, error)
}

func (s *stubActivationService) RedeemByActivationKey(ctx context.Context, key, deviceHash string) (*domain.SubscriptionSummary, error) {
	return s.redeemFn(ctx, key, deviceHash)
}

func (s *stubActivationService) VerifyActivation(ctx context.Context, key, deviceHash string) (*domain.SubscriptionSummary, error) {
	return s.verifyFn(ctx, key, deviceHash)
}

var _ ports.ActivationService = (*stubActivationService)(nil)

func TestActivationHandler_ActivateLicense(t *testing.T) {
	svc := &stubActivationService{
		redeemFn: func(ctx context.Context, key, deviceHash string) (*domain.SubscriptionSummary, error) {
			if key != "abcd-efgh-ijkl-mnop" || deviceHash != "dev-a" {
				t.Fatalf("unexpected args: %s %s", key, deviceHash)
			}
			return &domain.SubscriptionSummary{Plan: domain.PlanYearly, EndsAt: time.Now().Add(365 * 24 * time.Hour), DaysLeft: 365}, nil
		},
	}
	c, rec := newJSONContext(http.MethodPost, "/activate_license", `{"activation_key":"abcd-efgh-ijkl-mnop","device_hash":"dev-a"}`)

	if err := NewActivationHandler(svc).ActivateLicense(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	resp := decode(t, rec)
	sub, _ := resp["subscription"].(map[string]any)
	if resp["success"] != true || sub["plan_type"] != "yearly" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestActivationHandler_Errors(t *testing.T) {
	svc := &stubActivationService{
		redeemFn: func(context.Context, string, string) (*domain.SubscriptionSummary, error) {
			return nil, domain.ErrInvalidOrExpiredKey
		},
		verifyFn: func(context.Context, string, string) (*domain.SubscriptionSummary, error) {
			return nil, domain.ErrKeyDeviceMismatch
		},
	}
	h := NewActivationHandler(svc)
	body := `{"activation_key":"ABCD-EFGH-IJKL-MNOP","device_hash":"dev-b"}`

	c, _ := newJSONContext(http.MethodPost, "/activate_license", body)
	if err := h.ActivateLicense(c); !errors.Is(err, domain.ErrInvalidOrExpiredKey) {
		t.Fatalf("expected ErrInvalidOrExpiredKey, got %v", err)
	}

	c, _ = newJSONContext(http.MethodPost, "/verify_activation", body)
	if err := h.VerifyActivation(c); !errors.Is(err, domain.ErrKeyDeviceMismatch) {
		t.Fatalf("expected ErrKeyDeviceMismatch, got %v", err)
	}

	c, _ = newJSONContext(http.MethodPost, "/verify_activation", `{"activation_key":"ABCD-EFGH-IJKL-MNOP"}`)
	if err := h.VerifyActivation(c); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestActivationResult(t *testing.T) {
	tests := map[error]string{
		nil:                             "ok",
		domain.ErrInvalidOrExpiredKey:   "invalid_key",
		domain.ErrActivationKeyNotFound: "not_found",
		domain.ErrKeyDeviceMismatch:     "device_mismatch",
		domain.ErrDeviceLimitReached:    "device_limit",
		errors.New("boom"):              "error",
	}
	for err, want := range tests {
		if got := activationResult(err); got != want {
			t.Errorf("activationResult(%v) = %q, want %q", err, got, want)
		}
	}
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

type stubPaymentService struct {
	createFn    func(ctx context.Context, userID int64, plan, deviceHash string) (*domain.PurchaseIntent, error)
	reconcileFn func(ctx context.Context, in ports.WebhookInput) error
}

func (s *stubPaymentService) CreatePendingPurchase(ctx context.Context, userID int64, plan, deviceHash string) (*domain.PurchaseIntent, error) {
	return s.createFn(ctx, userID, plan, deviceHash)
}

func (s *stubPaymentService) ReconcileWebhook(ctx context.Context, in ports.WebhookInput) error {
	return s.reconcileFn(ctx, in)
}

func TestPaymentHandler_CreatePayment(t *testing.T) {
	svc := &stubPaymentService{
		createFn: func(ctx context.Context, userID int64, plan, deviceHash string) (*domain.PurchaseIntent, error) {
			if userID != 7 || plan != "monthly" || deviceHash != "dev-a" {
				t.Fatalf("unexpected args: %d %s %s", userID, plan, deviceHash)
			}
			return &domain.PurchaseIntent{
				PaymentID:      11,
				SubscriptionID: 5,
				Plan:           domain.PlanMonthly,
				Label:          "monthly_11",
				Amount:         299,
				Currency:       "RUB",
				PaymentURL:     "https://yoomoney.ru/quickpay/confirm.xml?label=monthly_11",
				ServerKey:      "AAAA-BBBB-CCCC-DDDD",
				ClientKey:      "EEEE-FFFF-GGGG-HHHH",
			}, nil
		},
	}
	c, rec := newJSONContext(http.MethodPost, "/create_payment", `{"plan_type":"monthly","device_hash":"dev-a"}`)

	if err := NewPaymentHandler(svc).CreatePayment(authed(c, 7)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode(t, rec)
	for k, want := range map[string]any{
		"success":         true,
		"payment_id":      float64(11),
		"subscription_id": float64(5),
		"amount":          float64(299),
		"server_key":      "AAAA-BBBB-CCCC-DDDD",
		"client_key":      "EEEE-FFFF-GGGG-HHHH",
		"label":           "monthly_11",
	} {
		if resp[k] != want {
			t.Errorf("%s = %v, want %v", k, resp[k], want)
		}
	}
	if resp["payment_url"] == "" {
		t.Errorf("payment_url missing")
	}
}

func TestPaymentHandler_CreatePayment_Errors(t *testing.T) {
	svc := &stubPaymentService{
		createFn: func(context.Context, int64, string, string) (*domain.PurchaseIntent, error) {
			return nil, domain.ErrGateway
		},
	}
	h := NewPaymentHandler(svc)

	c, _ := newJSONContext(http.MethodPost, "/create_payment", `{"plan_type":"monthly","device_hash":"dev-a"}`)
	if err := h.CreatePayment(authed(c, 7)); !errors.Is(err, domain.ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}

	c, _ = newJSONContext(http.MethodPost, "/create_payment", `{"plan_type":"monthly"}`)
	if err := h.CreatePayment(authed(c, 7)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

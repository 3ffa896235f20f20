package ports

import (
	"context"
	"time"

	"github.com/soundvault/entitlement-service/internal/core/domain"
)

// CheckoutRequest describes a payment the gateway should collect.
type CheckoutRequest struct {
	PaymentID   int64
	Label       string
	Amount      float64
	Currency    string
	Description string
	Email       string
}

// PaymentGateway produces the URL a user follows to pay.
type PaymentGateway interface {
	Method() domain.PaymentMethod
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
}

// ActivationMail carries a key to its owner.
type ActivationMail struct {
	UserID        int64
	PaymentID     int64
	To            string
	ActivationKey string
	Plan          domain.Plan
	ValidUntil    time.Time
}

// ActivationMailer sends one activation mail synchronously.
type ActivationMailer interface {
	SendActivationKey(ctx context.Context, mail ActivationMail) error
}

// ActivationDelivery hands a mail to background delivery and returns immediately.
type ActivationDelivery interface {
	Deliver(mail ActivationMail) error
}

// AuditLog records license events. Failures are never fatal to the caller.
type AuditLog interface {
	Record(ctx context.Context, event *domain.LicenseEvent) error
}

// ReplayGuard remembers gateway operation ids that were already reconciled.
type ReplayGuard interface {
	IsDuplicate(ctx context.Context, operationID string) (bool, error)
	Mark(ctx context.Context, operationID string) error
}

// RateLimiter decides whether key may make another request now.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

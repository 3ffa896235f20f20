package ports

import (
	"context"
	"time"

	"github.com/soundvault/entitlement-service/internal/core/domain"
)

// DeviceService manages the per-user device set.
type DeviceService interface {
	List(ctx context.Context, userID int64) ([]domain.Device, error)
	Register(ctx context.Context, userID int64, fingerprint, name string) (*domain.Device, error)
	Remove(ctx context.Context, userID int64, fingerprint string) (bool, error)
}

// SubscriptionService is the subscription ledger.
type SubscriptionService interface {
	Create(ctx context.Context, userID int64, plan domain.Plan, price float64) (*domain.Subscription, error)
	Active(ctx context.Context, userID int64) (*domain.Subscription, error)
	SweepExpired(ctx context.Context) (int64, error)
}

// AccountInfo is the full entitlement picture of one user.
type AccountInfo struct {
	User         *domain.User
	Subscription *domain.Subscription
	Devices      []domain.Device
}

// EntitlementService answers "may this device use premium features".
type EntitlementService interface {
	// CheckSubscription binds deviceHash to the user when it is not bound yet.
	CheckSubscription(ctx context.Context, userID int64, deviceHash string) (*domain.SubscriptionSummary, error)
	AccountInfo(ctx context.Context, userID int64) (*AccountInfo, error)
}

// ActivationService redeems activation keys. The two flows have different trust models.
type ActivationService interface {
	// RedeemByActivationKey trusts whoever holds the literal server key.
	RedeemByActivationKey(ctx context.Context, activationKey, deviceHash string) (*domain.SubscriptionSummary, error)
	// VerifyActivation only succeeds on the device the client key was derived for.
	VerifyActivation(ctx context.Context, clientKey, deviceHash string) (*domain.SubscriptionSummary, error)
}

// WebhookInput is a gateway payment notification after transport decoding.
type WebhookInput struct {
	Label         string
	Amount        float64
	TransactionID string
	Method        domain.PaymentMethod
	ReceivedAt    time.Time
}

// PaymentService creates purchases and reconciles gateway confirmations.
type PaymentService interface {
	CreatePendingPurchase(ctx context.Context, userID int64, plan, deviceHash string) (*domain.PurchaseIntent, error)
	ReconcileWebhook(ctx context.Context, in WebhookInput) error
}

package ports

import (
	"context"
	"time"

	"github.com/soundvault/entitlement-service/internal/core/domain"
)

// Store is the transactional boundary around all persistent license state.
type Store interface {
	// WithinTx runs fn in one atomic unit. Any error returned by fn rolls back
	// every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx exposes repositories bound to a single transaction.
type Tx interface {
	// LockUser serializes transactions that touch the same user's rows until
	// this transaction ends. Fails with domain.ErrUserNotFound for unknown users.
	LockUser(ctx context.Context, userID int64) error

	Users() UserRepository
	Devices() DeviceRepository
	Subscriptions() SubscriptionRepository
	Payments() PaymentRepository
}

// UserRepository persists identities.
type UserRepository interface {
	// Create fails with domain.ErrDuplicateEmail when the email is taken.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// DeviceRepository persists per-user device bindings.
type DeviceRepository interface {
	// ListActive returns active devices, most recently active first.
	ListActive(ctx context.Context, userID int64) ([]domain.Device, error)
	CountActive(ctx context.Context, userID int64) (int, error)
	FindByFingerprint(ctx context.Context, userID int64, fingerprint string) (*domain.Device, error)
	// Upsert inserts the device or updates name, active flag and last-active of
	// the existing (user, fingerprint) row.
	Upsert(ctx context.Context, device *domain.Device) (*domain.Device, error)
	// Deactivate reports whether an active row was switched off.
	Deactivate(ctx context.Context, userID int64, fingerprint string) (bool, error)
}

// SubscriptionRepository persists subscription periods.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	FindByID(ctx context.Context, id int64) (*domain.Subscription, error)
	// FindActive returns the active subscription whose end is after now.
	FindActive(ctx context.Context, userID int64, now time.Time) (*domain.Subscription, error)
	// DeactivateOthers switches off every active subscription of the user except keepID.
	DeactivateOthers(ctx context.Context, userID, keepID int64) (int64, error)
	Activate(ctx context.Context, id int64) error
	// DeactivateExpired switches off active rows whose end is not after now.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// PaymentRepository persists payments. Finders lock the row where the backend supports it.
type PaymentRepository interface {
	// Create fails with domain.ErrKeyCollision when a key is already taken.
	Create(ctx context.Context, payment *domain.Payment) (*domain.Payment, error)
	FindByID(ctx context.Context, id int64) (*domain.Payment, error)
	FindByServerKey(ctx context.Context, key string) (*domain.Payment, error)
	FindByClientKey(ctx context.Context, key string) (*domain.Payment, error)
	// UpdateStatus persists status, timestamps and transaction id.
	UpdateStatus(ctx context.Context, payment *domain.Payment) error
}

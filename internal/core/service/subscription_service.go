package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

// SubscriptionService is the subscription ledger.
type SubscriptionService struct {
	store ports.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewSubscriptionService(store ports.Store, log zerolog.Logger) *SubscriptionService {
	return &SubscriptionService{store: store, log: log, now: utcNow}
}

// Create starts a new active period for the user, ending any current one.
func (s *SubscriptionService) Create(ctx context.Context, userID int64, plan domain.Plan, price float64) (*domain.Subscription, error) {
	if !plan.Valid() {
		return nil, domain.ErrInvalidPlan
	}
	if price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", domain.ErrValidation)
	}

	var sub *domain.Subscription
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		if _, err := tx.Subscriptions().DeactivateOthers(ctx, userID, 0); err != nil {
			return err
		}
		pending := domain.NewSubscription(userID, plan, price, s.now())
		pending.Active = true
		created, err := tx.Subscriptions().Create(ctx, pending)
		if err != nil {
			return err
		}
		sub = created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	s.log.Info().
		Int64("user_id", userID).
		Int64("subscription_id", sub.ID).
		Str("plan", string(plan)).
		Time("ends_at", sub.EndsAt).
		Msg("subscription created")
	return sub, nil
}

// Active returns the currently valid subscription or domain.ErrNoActiveSubscription.
// Expiry is evaluated here, at read time.
func (s *SubscriptionService) Active(ctx context.Context, userID int64) (*domain.Subscription, error) {
	var sub *domain.Subscription
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		sub, err = tx.Subscriptions().FindActive(ctx, userID, s.now())
		return err
	})
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		return nil, domain.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("active subscription: %w", err)
	}
	return sub, nil
}

// SweepExpired clears the active flag on lapsed periods. Validity never depends on it.
func (s *SubscriptionService) SweepExpired(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		n, err = tx.Subscriptions().DeactivateExpired(ctx, s.now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sweep subscriptions: %w", err)
	}
	if n > 0 {
		s.log.Info().Int64("deactivated", n).Msg("expired subscriptions swept")
	}
	return n, nil
}

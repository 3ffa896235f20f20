package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

// EntitlementService composes the ledger and the device registry for client checks.
type EntitlementService struct {
	store ports.Store
	audit auditor
	log   zerolog.Logger
	now   func() time.Time
}

func NewEntitlementService(store ports.Store, audit ports.AuditLog, log zerolog.Logger) *EntitlementService {
	return &EntitlementService{
		store: store,
		audit: auditor{sink: audit, log: log},
		log:   log,
		now:   utcNow,
	}
}

// CheckSubscription reports the user's current entitlement. It is not a pure read:
// a device hash that is not bound yet gets bound, subject to the device cap.
func (s *EntitlementService) CheckSubscription(ctx context.Context, userID int64, deviceHash string) (*domain.SubscriptionSummary, error) {
	deviceHash = strings.TrimSpace(deviceHash)
	now := s.now()

	var (
		summary domain.SubscriptionSummary
		bound   bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		sub, err := tx.Subscriptions().FindActive(ctx, userID, now)
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return domain.ErrNoActiveSubscription
		}
		if err != nil {
			return err
		}
		if deviceHash != "" {
			if _, bound, err = bindDevice(ctx, tx, userID, deviceHash, "", now); err != nil {
				return err
			}
		}
		summary = sub.Summary(now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check subscription: %w", err)
	}

	if bound {
		s.log.Info().Int64("user_id", userID).Str("device_hash", deviceHash).Msg("device bound on subscription check")
		s.audit.record(ctx, &domain.LicenseEvent{
			Type:       domain.EventDeviceBound,
			UserID:     userID,
			DeviceHash: deviceHash,
			Reason:     "check_subscription",
			OccurredAt: now,
		})
	}
	return &summary, nil
}

// AccountInfo returns the user, the currently valid subscription (nil when none) and
// active devices.
func (s *EntitlementService) AccountInfo(ctx context.Context, userID int64) (*ports.AccountInfo, error) {
	now := s.now()
	info := &ports.AccountInfo{}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		user, err := tx.Users().FindByID(ctx, userID)
		if err != nil {
			return err
		}
		info.User = user

		sub, err := tx.Subscriptions().FindActive(ctx, userID, now)
		switch {
		case err == nil:
			info.Subscription = sub
		case !errors.Is(err, domain.ErrSubscriptionNotFound):
			return err
		}

		info.Devices, err = tx.Devices().ListActive(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("account info: %w", err)
	}
	return info, nil
}

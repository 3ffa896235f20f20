package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

func utcNow() time.Time { return time.Now().UTC() }

// bindDevice registers fingerprint for userID. The caller must hold the user lock.
// An active fingerprint is refreshed in place; anything else counts against the cap.
func bindDevice(ctx context.Context, tx ports.Tx, userID int64, fingerprint, name string, now time.Time) (*domain.Device, bool, error) {
	name = strings.TrimSpace(name)
	devices := tx.Devices()

	existing, err := devices.FindByFingerprint(ctx, userID, fingerprint)
	switch {
	case err == nil && existing.Active:
		existing.LastActive = now
		if name != "" {
			existing.Name = name
		}
		refreshed, err := devices.Upsert(ctx, existing)
		return refreshed, false, err
	case err != nil && !errors.Is(err, domain.ErrDeviceNotFound):
		return nil, false, err
	}

	active, err := devices.CountActive(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if active >= domain.MaxActiveDevices {
		return nil, false, domain.ErrDeviceLimitReached
	}

	if name == "" && existing != nil {
		name = existing.Name
	}
	if name == "" {
		name = domain.DefaultDeviceName
	}
	bound, err := devices.Upsert(ctx, &domain.Device{
		UserID:      userID,
		Fingerprint: fingerprint,
		Name:        name,
		Active:      true,
		LastActive:  now,
	})
	if err != nil {
		return nil, false, err
	}
	return bound, true, nil
}

// activateSubscription makes sub the only active subscription of its user.
// The caller must hold the user lock.
func activateSubscription(ctx context.Context, tx ports.Tx, sub *domain.Subscription) error {
	if _, err := tx.Subscriptions().DeactivateOthers(ctx, sub.UserID, sub.ID); err != nil {
		return err
	}
	if sub.Active {
		return nil
	}
	if err := tx.Subscriptions().Activate(ctx, sub.ID); err != nil {
		return err
	}
	sub.Active = true
	return nil
}

// auditor wraps an optional ports.AuditLog so callers never have to nil-check.
type auditor struct {
	sink ports.AuditLog
	log  zerolog.Logger
}

func (a auditor) record(ctx context.Context, event *domain.LicenseEvent) {
	if a.sink == nil {
		return
	}
	if err := a.sink.Record(ctx, event); err != nil {
		a.log.Warn().Err(err).
			Str("event", string(event.Type)).
			Int64("user_id", event.UserID).
			Msg("failed to record audit event")
	}
}

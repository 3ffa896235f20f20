package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/license"
	"github.com/soundvault/entitlement-service/internal/core/ports"
	"github.com/soundvault/entitlement-service/pkg/logger"
)

// ActivationService redeems activation keys on a device.
type ActivationService struct {
	store  ports.Store
	secret []byte
	audit  auditor
	log    zerolog.Logger
	now    func() time.Time
}

func NewActivationService(store ports.Store, serviceSecret string, audit ports.AuditLog, log zerolog.Logger) *ActivationService {
	return &ActivationService{
		store:  store,
		secret: []byte(serviceSecret),
		audit:  auditor{sink: audit, log: log},
		log:    log,
		now:    utcNow,
	}
}

// RedeemByActivationKey matches the literal server key against a pending payment whose
// key has not expired, then activates its subscription on deviceHash. Once it succeeds
// the payment is no longer pending, so any later attempt with the same key fails.
func (s *ActivationService) RedeemByActivationKey(ctx context.Context, activationKey, deviceHash string) (*domain.SubscriptionSummary, error) {
	deviceHash = strings.TrimSpace(deviceHash)
	if strings.TrimSpace(activationKey) == "" || deviceHash == "" {
		return nil, fmt.Errorf("%w: activation_key and device_hash are required", domain.ErrValidation)
	}
	if !license.WellFormed(activationKey) {
		return nil, domain.ErrInvalidOrExpiredKey
	}
	key := license.Format(activationKey)
	now := s.now()

	var (
		summary domain.SubscriptionSummary
		payment *domain.Payment
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		p, err := tx.Payments().FindByServerKey(ctx, key)
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return domain.ErrInvalidOrExpiredKey
		}
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentPending || !p.KeyValidAt(now) {
			return domain.ErrInvalidOrExpiredKey
		}
		payment = p

		if err := tx.LockUser(ctx, p.UserID); err != nil {
			return err
		}
		sub, err := tx.Subscriptions().FindByID(ctx, p.SubscriptionID)
		if err != nil {
			return err
		}
		if _, _, err := bindDevice(ctx, tx, p.UserID, deviceHash, "", now); err != nil {
			return err
		}
		if err := activateSubscription(ctx, tx, sub); err != nil {
			return err
		}
		if err := p.Transition(domain.PaymentActivated, now); err != nil {
			return err
		}
		if err := tx.Payments().UpdateStatus(ctx, p); err != nil {
			return err
		}
		summary = sub.Summary(now)
		return nil
	})
	if err != nil {
		s.denied(ctx, payment, deviceHash, err, now)
		return nil, fmt.Errorf("redeem activation key: %w", err)
	}

	s.log.Info().
		Int64("user_id", payment.UserID).
		Int64("payment_id", payment.ID).
		Str("key", logger.MaskKey(key)).
		Str("device_hash", deviceHash).
		Msg("activation key redeemed")
	s.audit.record(ctx, &domain.LicenseEvent{
		Type:       domain.EventKeyRedeemed,
		UserID:     payment.UserID,
		PaymentID:  payment.ID,
		DeviceHash: deviceHash,
		Amount:     payment.Amount,
		OccurredAt: now,
	})
	return &summary, nil
}

// VerifyActivation accepts a client key only from the device it was derived for.
// The payment must be completed; success binds the device and marks the key used.
func (s *ActivationService) VerifyActivation(ctx context.Context, clientKey, deviceHash string) (*domain.SubscriptionSummary, error) {
	deviceHash = strings.TrimSpace(deviceHash)
	if strings.TrimSpace(clientKey) == "" || deviceHash == "" {
		return nil, fmt.Errorf("%w: activation_key and device_hash are required", domain.ErrValidation)
	}
	if !license.WellFormed(clientKey) {
		return nil, domain.ErrActivationKeyNotFound
	}
	key := license.Format(clientKey)
	now := s.now()

	var (
		summary domain.SubscriptionSummary
		payment *domain.Payment
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		p, err := tx.Payments().FindByClientKey(ctx, key)
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return domain.ErrActivationKeyNotFound
		}
		if err != nil {
			return err
		}
		payment = p
		if p.Status != domain.PaymentCompleted {
			return domain.ErrActivationKeyNotFound
		}
		if !license.VerifyClientKey(s.secret, p.ServerKey, deviceHash, key) {
			return domain.ErrKeyDeviceMismatch
		}

		sub, err := tx.Subscriptions().FindByID(ctx, p.SubscriptionID)
		if err != nil {
			return err
		}
		if !now.Before(sub.EndsAt) {
			return domain.ErrSubscriptionExpired
		}

		if err := tx.LockUser(ctx, p.UserID); err != nil {
			return err
		}
		if _, _, err := bindDevice(ctx, tx, p.UserID, deviceHash, "", now); err != nil {
			return err
		}

		// A newer purchase may already be the active one; only fall back to this
		// payment's period when nothing else is valid.
		current, err := tx.Subscriptions().FindActive(ctx, p.UserID, now)
		switch {
		case errors.Is(err, domain.ErrSubscriptionNotFound):
			if err := activateSubscription(ctx, tx, sub); err != nil {
				return err
			}
			current = sub
		case err != nil:
			return err
		}

		if err := p.Transition(domain.PaymentActivated, now); err != nil {
			return err
		}
		if err := tx.Payments().UpdateStatus(ctx, p); err != nil {
			return err
		}
		summary = current.Summary(now)
		return nil
	})
	if err != nil {
		s.denied(ctx, payment, deviceHash, err, now)
		return nil, fmt.Errorf("verify activation: %w", err)
	}

	s.log.Info().
		Int64("user_id", payment.UserID).
		Int64("payment_id", payment.ID).
		Str("device_hash", deviceHash).
		Msg("activation verified")
	s.audit.record(ctx, &domain.LicenseEvent{
		Type:       domain.EventActivationVerified,
		UserID:     payment.UserID,
		PaymentID:  payment.ID,
		DeviceHash: deviceHash,
		OccurredAt: now,
	})
	return &summary, nil
}

// denied audits a refused redemption when the key resolved to a payment.
func (s *ActivationService) denied(ctx context.Context, payment *domain.Payment, deviceHash string, err error, now time.Time) {
	if payment == nil {
		return
	}
	s.log.Warn().Err(err).
		Int64("user_id", payment.UserID).
		Int64("payment_id", payment.ID).
		Str("device_hash", deviceHash).
		Msg("activation denied")
	s.audit.record(ctx, &domain.LicenseEvent{
		Type:       domain.EventActivationDenied,
		UserID:     payment.UserID,
		PaymentID:  payment.ID,
		DeviceHash: deviceHash,
		Reason:     err.Error(),
		OccurredAt: now,
	})
}

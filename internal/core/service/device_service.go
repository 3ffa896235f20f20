package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

// DeviceService is the device registry.
type DeviceService struct {
	store ports.Store
	audit auditor
	log   zerolog.Logger
	now   func() time.Time
}

func NewDeviceService(store ports.Store, audit ports.AuditLog, log zerolog.Logger) *DeviceService {
	return &DeviceService{
		store: store,
		audit: auditor{sink: audit, log: log},
		log:   log,
		now:   utcNow,
	}
}

func (s *DeviceService) List(ctx context.Context, userID int64) ([]domain.Device, error) {
	var devices []domain.Device
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		devices, err = tx.Devices().ListActive(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// Register binds fingerprint to the user, refusing a fifth active device.
func (s *DeviceService) Register(ctx context.Context, userID int64, fingerprint, name string) (*domain.Device, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return nil, fmt.Errorf("%w: device_hash is required", domain.ErrValidation)
	}

	now := s.now()
	var (
		device *domain.Device
		added  bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		var err error
		device, added, err = bindDevice(ctx, tx, userID, fingerprint, name, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}

	if added {
		s.audit.record(ctx, &domain.LicenseEvent{
			Type:       domain.EventDeviceBound,
			UserID:     userID,
			DeviceHash: fingerprint,
			OccurredAt: now,
		})
	}
	return device, nil
}

// Remove deactivates the device. It reports false when nothing active matched.
func (s *DeviceService) Remove(ctx context.Context, userID int64, fingerprint string) (bool, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return false, fmt.Errorf("%w: device_hash is required", domain.ErrValidation)
	}

	var removed bool
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		var err error
		removed, err = tx.Devices().Deactivate(ctx, userID, fingerprint)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("remove device: %w", err)
	}

	if removed {
		s.log.Info().Int64("user_id", userID).Str("device_hash", fingerprint).Msg("device removed")
		s.audit.record(ctx, &domain.LicenseEvent{
			Type:       domain.EventDeviceRemoved,
			UserID:     userID,
			DeviceHash: fingerprint,
			OccurredAt: s.now(),
		})
	}
	return removed, nil
}

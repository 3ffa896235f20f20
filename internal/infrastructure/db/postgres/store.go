package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

// Store implements ports.Store. Per-user critical sections are serialized with
// SELECT ... FOR UPDATE on the users row.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(ctx, &tx{db: gtx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type tx struct {
	db *gorm.DB
}

func (t *tx) LockUser(ctx context.Context, userID int64) error {
	var row userModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", userID).
		Take(&row).Error
	if isNotFound(err) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func (t *tx) Users() ports.UserRepository                 { return userRepository{t.db} }
func (t *tx) Devices() ports.DeviceRepository             { return deviceRepository{t.db} }
func (t *tx) Subscriptions() ports.SubscriptionRepository { return subscriptionRepository{t.db} }
func (t *tx) Payments() ports.PaymentRepository           { return paymentRepository{t.db} }

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type userRepository struct{ db *gorm.DB }

func (r userRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	rec := userModel{
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return toDomainUser(rec), nil
}

func (r userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r userRepository) findOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where(query, arg).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return toDomainUser(rec), nil
}

func (r userRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", id).Update("last_login", at)
	if res.Error != nil {
		return fmt.Errorf("touch last login: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Devices
// ---------------------------------------------------------------------------

type deviceRepository struct{ db *gorm.DB }

func (r deviceRepository) ListActive(ctx context.Context, userID int64) ([]domain.Device, error) {
	var rows []deviceModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active", userID).
		Order("last_active DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	out := make([]domain.Device, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainDevice(row))
	}
	return out, nil
}

func (r deviceRepository) CountActive(ctx context.Context, userID int64) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&deviceModel{}).
		Where("user_id = ? AND is_active", userID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count devices: %w", err)
	}
	return int(n), nil
}

func (r deviceRepository) FindByFingerprint(ctx context.Context, userID int64, fingerprint string) (*domain.Device, error) {
	var row deviceModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND device_hash = ?", userID, fingerprint).
		Take(&row).Error
	if isNotFound(err) {
		return nil, domain.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find device: %w", err)
	}
	d := toDomainDevice(row)
	return &d, nil
}

func (r deviceRepository) Upsert(ctx context.Context, device *domain.Device) (*domain.Device, error) {
	row := deviceModel{
		UserID:     device.UserID,
		DeviceHash: device.Fingerprint,
		DeviceName: device.Name,
		IsActive:   device.Active,
		LastActive: device.LastActive,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "device_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"device_name", "is_active", "last_active"}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}
	d := toDomainDevice(row)
	return &d, nil
}

func (r deviceRepository) Deactivate(ctx context.Context, userID int64, fingerprint string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&deviceModel{}).
		Where("user_id = ? AND device_hash = ? AND is_active", userID, fingerprint).
		Update("is_active", false)
	if res.Error != nil {
		return false, fmt.Errorf("deactivate device: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

type subscriptionRepository struct{ db *gorm.DB }

func (r subscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	row := subscriptionModel{
		UserID:    sub.UserID,
		PlanType:  string(sub.Plan),
		Price:     sub.Price,
		StartDate: sub.StartsAt,
		EndDate:   sub.EndsAt,
		IsActive:  sub.Active,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrActiveSubscriptionSet
		}
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return toDomainSubscription(row), nil
}

func (r subscriptionRepository) FindByID(ctx context.Context, id int64) (*domain.Subscription, error) {
	var row subscriptionModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if isNotFound(err) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return toDomainSubscription(row), nil
}

func (r subscriptionRepository) FindActive(ctx context.Context, userID int64, now time.Time) (*domain.Subscription, error) {
	var row subscriptionModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active AND end_date > ?", userID, now).
		Order("end_date DESC").
		Take(&row).Error
	if isNotFound(err) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active subscription: %w", err)
	}
	return toDomainSubscription(row), nil
}

func (r subscriptionRepository) DeactivateOthers(ctx context.Context, userID, keepID int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&subscriptionModel{}).
		Where("user_id = ? AND is_active AND id <> ?", userID, keepID).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("deactivate subscriptions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r subscriptionRepository) Activate(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Model(&subscriptionModel{}).
		Where("id = ?", id).
		Update("is_active", true)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return domain.ErrActiveSubscriptionSet
		}
		return fmt.Errorf("activate subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func (r subscriptionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&subscriptionModel{}).
		Where("is_active AND end_date <= ?", now).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("sweep subscriptions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

type paymentRepository struct{ db *gorm.DB }

func (r paymentRepository) Create(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	row := fromDomainPayment(payment)
	row.ID = 0
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrKeyCollision
		}
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return toDomainPayment(row), nil
}

func (r paymentRepository) FindByID(ctx context.Context, id int64) (*domain.Payment, error) {
	return r.findLocked(ctx, "id = ?", id)
}

func (r paymentRepository) FindByServerKey(ctx context.Context, key string) (*domain.Payment, error) {
	return r.findLocked(ctx, "server_key = ?", key)
}

func (r paymentRepository) FindByClientKey(ctx context.Context, key string) (*domain.Payment, error) {
	return r.findLocked(ctx, "client_key = ?", key)
}

func (r paymentRepository) findLocked(ctx context.Context, query string, arg any) (*domain.Payment, error) {
	var row paymentModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(query, arg).
		Take(&row).Error
	if isNotFound(err) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return toDomainPayment(row), nil
}

func (r paymentRepository) UpdateStatus(ctx context.Context, payment *domain.Payment) error {
	res := r.db.WithContext(ctx).Model(&paymentModel{}).
		Where("id = ?", payment.ID).
		Updates(map[string]any{
			"status":         string(payment.Status),
			"transaction_id": payment.TransactionID,
			"paid_at":        payment.PaidAt,
			"activated_at":   payment.ActivatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

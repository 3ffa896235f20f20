package postgres

import (
	"time"

	"github.com/soundvault/entitlement-service/internal/core/domain"
)

type userModel struct {
	ID           int64      `gorm:"column:id;primaryKey"`
	Email        string     `gorm:"column:email"`
	PasswordHash string     `gorm:"column:password_hash"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	LastLogin    *time.Time `gorm:"column:last_login"`
}

func (userModel) TableName() string { return "users" }

type deviceModel struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	UserID     int64     `gorm:"column:user_id"`
	DeviceHash string    `gorm:"column:device_hash"`
	DeviceName string    `gorm:"column:device_name"`
	IsActive   bool      `gorm:"column:is_active"`
	LastActive time.Time `gorm:"column:last_active"`
}

func (deviceModel) TableName() string { return "user_devices" }

type subscriptionModel struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	UserID    int64     `gorm:"column:user_id"`
	PlanType  string    `gorm:"column:plan_type"`
	Price     float64   `gorm:"column:price"`
	StartDate time.Time `gorm:"column:start_date"`
	EndDate   time.Time `gorm:"column:end_date"`
	IsActive  bool      `gorm:"column:is_active"`
}

func (subscriptionModel) TableName() string { return "subscriptions" }

type paymentModel struct {
	ID             int64      `gorm:"column:id;primaryKey"`
	UserID         int64      `gorm:"column:user_id"`
	SubscriptionID int64      `gorm:"column:subscription_id"`
	PlanType       string     `gorm:"column:plan_type"`
	Amount         float64    `gorm:"column:amount"`
	Currency       string     `gorm:"column:currency"`
	Status         string     `gorm:"column:status"`
	Method         string     `gorm:"column:method"`
	TransactionID  string     `gorm:"column:transaction_id"`
	ServerKey      string     `gorm:"column:server_key"`
	ClientKey      *string    `gorm:"column:client_key"`
	KeyExpiresAt   time.Time  `gorm:"column:key_expires_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PaidAt         *time.Time `gorm:"column:paid_at"`
	ActivatedAt    *time.Time `gorm:"column:activated_at"`
}

func (paymentModel) TableName() string { return "payments" }

func toDomainUser(row userModel) *domain.User {
	return &domain.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		LastLogin:    utcPtr(row.LastLogin),
	}
}

func toDomainDevice(row deviceModel) domain.Device {
	return domain.Device{
		ID:          row.ID,
		UserID:      row.UserID,
		Fingerprint: row.DeviceHash,
		Name:        row.DeviceName,
		Active:      row.IsActive,
		LastActive:  row.LastActive.UTC(),
	}
}

func toDomainSubscription(row subscriptionModel) *domain.Subscription {
	return &domain.Subscription{
		ID:       row.ID,
		UserID:   row.UserID,
		Plan:     domain.Plan(row.PlanType),
		Price:    row.Price,
		StartsAt: row.StartDate.UTC(),
		EndsAt:   row.EndDate.UTC(),
		Active:   row.IsActive,
	}
}

func fromDomainPayment(p *domain.Payment) paymentModel {
	var clientKey *string
	if p.ClientKey != "" {
		ck := p.ClientKey
		clientKey = &ck
	}
	return paymentModel{
		ID:             p.ID,
		UserID:         p.UserID,
		SubscriptionID: p.SubscriptionID,
		PlanType:       string(p.Plan),
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         string(p.Status),
		Method:         string(p.Method),
		TransactionID:  p.TransactionID,
		ServerKey:      p.ServerKey,
		ClientKey:      clientKey,
		KeyExpiresAt:   p.KeyExpiresAt,
		CreatedAt:      p.CreatedAt,
		PaidAt:         p.PaidAt,
		ActivatedAt:    p.ActivatedAt,
	}
}

func toDomainPayment(row paymentModel) *domain.Payment {
	p := &domain.Payment{
		ID:             row.ID,
		UserID:         row.UserID,
		SubscriptionID: row.SubscriptionID,
		Plan:           domain.Plan(row.PlanType),
		Amount:         row.Amount,
		Currency:       row.Currency,
		Status:         domain.PaymentStatus(row.Status),
		Method:         domain.PaymentMethod(row.Method),
		TransactionID:  row.TransactionID,
		ServerKey:      row.ServerKey,
		KeyExpiresAt:   row.KeyExpiresAt.UTC(),
		CreatedAt:      row.CreatedAt.UTC(),
		PaidAt:         utcPtr(row.PaidAt),
		ActivatedAt:    utcPtr(row.ActivatedAt),
	}
	if row.ClientKey != nil {
		p.ClientKey = *row.ClientKey
	}
	return p
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

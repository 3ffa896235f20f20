package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentActivated PaymentStatus = "activated"
)

// AmountEpsilon absorbs floating point noise when comparing gateway amounts.
const AmountEpsilon = 0.01

// KeyTTL is how long an issued activation key can be redeemed literally.
const KeyTTL = 24 * time.Hour

// validPaymentTransitions lists allowed forward moves. pending -> activated is the
// literal-key redemption path which never sees a gateway confirmation.
var validPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentActivated, PaymentFailed},
	PaymentCompleted: {PaymentActivated},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range validPaymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Settled reports whether the gateway has already confirmed funds.
func (s PaymentStatus) Settled() bool {
	return s == PaymentCompleted || s == PaymentActivated
}

// PaymentMethod names the gateway that handled a payment.
type PaymentMethod string

const (
	MethodQuickpay PaymentMethod = "quickpay"
	MethodStripe   PaymentMethod = "stripe"
)

// Payment tracks a purchase from intent through activation on a device.
type Payment struct {
	ID             int64
	UserID         int64
	SubscriptionID int64
	Plan           Plan
	Amount         float64
	Currency       string
	Status         PaymentStatus
	Method         PaymentMethod
	TransactionID  string
	// ServerKey is the literal activation key held by the server and mailed to the user.
	ServerKey string
	// ClientKey is the server key bound to the purchasing device.
	ClientKey    string
	KeyExpiresAt time.Time
	CreatedAt    time.Time
	PaidAt       *time.Time
	ActivatedAt  *time.Time
}

// Transition moves the payment to next, stamping the matching timestamp.
func (p *Payment) Transition(next PaymentStatus, at time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
	}
	switch next {
	case PaymentCompleted:
		p.PaidAt = &at
	case PaymentActivated:
		if p.PaidAt == nil {
			p.PaidAt = &at
		}
		p.ActivatedAt = &at
	}
	p.Status = next
	return nil
}

// KeyValidAt reports whether the literal key is still inside its redemption window.
func (p *Payment) KeyValidAt(now time.Time) bool {
	return now.Before(p.KeyExpiresAt)
}

// AmountMatches compares a gateway amount against the expected one.
func (p *Payment) AmountMatches(amount float64) bool {
	return math.Abs(amount-p.Amount) <= AmountEpsilon
}

// Label correlates a gateway payment with the local payment row.
func (p *Payment) Label() string {
	return fmt.Sprintf("%s_%d", p.Plan, p.ID)
}

// ParseLabel extracts the payment id from a gateway label built by Label.
func ParseLabel(label string) (int64, error) {
	label = strings.TrimSpace(label)
	idx := strings.LastIndex(label, "_")
	if idx < 0 || idx == len(label)-1 {
		return 0, ErrInvalidLabel
	}
	id, err := strconv.ParseInt(label[idx+1:], 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidLabel
	}
	return id, nil
}

// PurchaseIntent is everything a client needs to go pay.
type PurchaseIntent struct {
	PaymentID      int64   `json:"payment_id"`
	SubscriptionID int64   `json:"subscription_id"`
	Plan           Plan    `json:"plan_type"`
	Label          string  `json:"label"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	Description    string  `json:"description"`
	PaymentURL     string  `json:"payment_url"`
	ServerKey      string  `json:"server_key"`
	ClientKey      string  `json:"client_key"`
}

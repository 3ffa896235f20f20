package domain

import "errors"

// Input.
var (
	ErrValidation   = errors.New("validation failed")
	ErrInvalidPlan  = errors.New("invalid plan type")
	ErrInvalidLabel = errors.New("invalid payment label")
)

// Identity.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Devices and subscriptions.
var (
	ErrDeviceNotFound        = errors.New("device not found")
	ErrDeviceLimitReached    = errors.New("device limit reached")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrNoActiveSubscription  = errors.New("no active subscription")
	ErrSubscriptionExpired   = errors.New("subscription expired")
	ErrActiveSubscriptionSet = errors.New("another subscription is already active")
)

// Activation keys and payments.
var (
	ErrInvalidOrExpiredKey   = errors.New("invalid or expired activation key")
	ErrActivationKeyNotFound = errors.New("activation key not found or not yet paid")
	ErrKeyDeviceMismatch     = errors.New("activation key was issued for another device")
	ErrKeyCollision          = errors.New("activation key collision")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrAmountMismatch        = errors.New("payment amount mismatch")
	ErrInvalidTransition     = errors.New("invalid payment status transition")
	ErrGateway               = errors.New("payment gateway unavailable")
)

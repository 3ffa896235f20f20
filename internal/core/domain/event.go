package domain

import "time"

// LicenseEventType names an entry in the license audit trail.
type LicenseEventType string

const (
	EventPurchaseCreated    LicenseEventType = "purchase_created"
	EventPaymentCompleted   LicenseEventType = "payment_completed"
	EventPaymentRejected    LicenseEventType = "payment_rejected"
	EventKeyRedeemed        LicenseEventType = "key_redeemed"
	EventActivationVerified LicenseEventType = "activation_verified"
	EventActivationDenied   LicenseEventType = "activation_denied"
	EventDeviceBound        LicenseEventType = "device_bound"
	EventDeviceRemoved      LicenseEventType = "device_removed"
)

// LicenseEvent is an append-only audit record. It never stores raw key material.
type LicenseEvent struct {
	Type       LicenseEventType
	UserID     int64
	PaymentID  int64
	DeviceHash string
	Reason     string
	Amount     float64
	OccurredAt time.Time
}

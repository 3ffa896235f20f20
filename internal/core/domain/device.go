package domain

import "time"

const (
	// MaxActiveDevices is the number of devices a user may have active at once.
	MaxActiveDevices = 4

	DefaultDeviceName = "New device"
)

// Device is an installation bound to a user. Fingerprint is opaque to the service.
type Device struct {
	ID          int64     `json:"-"`
	UserID      int64     `json:"-"`
	Fingerprint string    `json:"device_hash"`
	Name        string    `json:"device_name"`
	Active      bool      `json:"-"`
	LastActive  time.Time `json:"last_active"`
}

package domain

import "time"

// User is the root aggregate: devices, subscriptions and payments all point back to it.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// Session is what a verified token proves about the caller.
type Session struct {
	UserID    int64
	Email     string
	ExpiresAt time.Time
}

// Package domain contains core domain types for the spending dashboard.
package domain

import (
	"time"
)

// User is an allow-listed dashboard user.
type User struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	LastSeenAt  time.Time `json:"last_seen_at,omitzero"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasBeenSeen returns true if the user has logged in or chatted at least once.
// LastSeenAt is the zero time until then.
func (u *User) HasBeenSeen() bool {
	return !u.LastSeenAt.IsZero()
}

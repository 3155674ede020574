// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/spendchat/internal/domain"
)

// Repository is the allow-list user directory.
// It holds no chat or session data; conversations live upstream.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil for unknown users.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// ListUsers returns every allow-listed user ordered by user ID.
	ListUsers(ctx context.Context) ([]*domain.User, error)

	// SeedUsers makes sure each id exists, keeping existing rows untouched.
	SeedUsers(ctx context.Context, userIDs []string) (int64, error)

	// PruneUsers removes users that are no longer on the allow-list.
	PruneUsers(ctx context.Context, keep []string) (int64, error)

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserHasBeenSeen(t *testing.T) {
	u := &User{UserID: "user-001", CreatedAt: time.Unix(1_700_000_000, 0)}
	assert.False(t, u.HasBeenSeen())

	u.LastSeenAt = u.CreatedAt
	assert.True(t, u.HasBeenSeen())
}

func TestNewChatMessageIDsAreUnique(t *testing.T) {
	now := time.Now()
	a := NewChatMessage(RoleUser, "hi", now)
	b := NewChatMessage(RoleUser, "hi", now)

	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, strings.HasPrefix(a.ID, "user-"))
	assert.False(t, a.Streaming)
	assert.Equal(t, now, a.CreatedAt)
}

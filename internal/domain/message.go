package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a chat message.
type Role string

const (
	// RoleUser marks a message typed by the dashboard user.
	RoleUser Role = "user"
	// RoleAgent marks a message produced by the upstream agent.
	RoleAgent Role = "agent"
)

// ChatMessage is a single entry in a conversation transcript.
// Finalized messages are values and are never mutated after creation.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Streaming bool      `json:"streaming,omitempty"`
}

// NewChatMessage builds a finalized message with a fresh id.
func NewChatMessage(role Role, content string, now time.Time) ChatMessage {
	return ChatMessage{
		ID:        string(role) + "-" + uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
}

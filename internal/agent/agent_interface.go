package agent

import (
	"context"
	"io"

	"github.com/ashureev/spendchat/internal/adk"
)

// SessionCreator creates sessions on the upstream agent server.
type SessionCreator interface {
	CreateSession(ctx context.Context, app, userID string, state map[string]any) (*adk.Session, error)
}

// StreamRunner starts streaming runs on the upstream agent server.
type StreamRunner interface {
	RunSSE(ctx context.Context, req adk.RunRequest) (io.ReadCloser, error)
}

// ContextSource supplies the optional context attached to new sessions.
type ContextSource interface {
	SessionContext(ctx context.Context, userID string) (any, error)
}

var (
	_ SessionCreator = (*adk.Client)(nil)
	_ StreamRunner   = (*adk.Client)(nil)
)

package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ashureev/spendchat/internal/adk"
)

const messagePreviewLen = 50

// Relay forwards a user message to the upstream streaming endpoint.
type Relay struct {
	runner  StreamRunner
	appName string
	logger  *slog.Logger
}

// NewRelay creates a relay that runs messages against appName.
func NewRelay(runner StreamRunner, appName string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{runner: runner, appName: appName, logger: logger}
}

// Open starts a streaming run and returns the raw upstream body as soon as
// the response headers arrive. The caller must close it. Cancelling ctx
// aborts the upstream read.
func (r *Relay) Open(ctx context.Context, sessionID, userID, message string) (io.ReadCloser, error) {
	message = strings.TrimSpace(message)
	switch {
	case sessionID == "":
		return nil, fmt.Errorf("%w: session id is required", ErrValidation)
	case userID == "":
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	case message == "":
		return nil, fmt.Errorf("%w: message is required", ErrValidation)
	}

	r.logger.Debug("Sending message to agent",
		"app_name", r.appName,
		"user_id", userID,
		"session_id", sessionID,
		"message_preview", preview(message, messagePreviewLen),
	)

	body, err := r.runner.RunSSE(ctx, adk.NewUserRun(r.appName, userID, sessionID, message, true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamRequestFailed, err)
	}
	return body, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

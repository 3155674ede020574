package agent

import "errors"

var (
	// ErrValidation marks a chat request rejected before any upstream call.
	ErrValidation = errors.New("invalid chat request")
	// ErrUserNotAllowed marks a user outside the configured allow-list.
	ErrUserNotAllowed = errors.New("user is not allowed")
	// ErrSessionCreationFailed is returned when both the primary and the
	// fallback session creation attempts fail.
	ErrSessionCreationFailed = errors.New("failed to create agent session")
	// ErrUpstreamRequestFailed is returned when the streaming run cannot be started.
	ErrUpstreamRequestFailed = errors.New("agent stream request failed")
	// ErrStreamLimit is returned when the server is at its concurrent stream cap.
	ErrStreamLimit = errors.New("too many concurrent chat streams")
	// ErrRateLimited is returned when a user exceeds the per-window request budget.
	ErrRateLimited = errors.New("rate limit exceeded")
)

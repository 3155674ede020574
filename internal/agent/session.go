package agent

import (
	"context"
	"fmt"
	"log/slog"
)

// SessionManager establishes the upstream session a chat turn runs in.
type SessionManager struct {
	sessions SessionCreator
	source   ContextSource
	appName  string
	logger   *slog.Logger
}

// NewSessionManager creates a session manager for appName. source may be nil,
// in which case sessions are created without context data.
func NewSessionManager(sessions SessionCreator, source ContextSource, appName string, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		sessions: sessions,
		source:   source,
		appName:  appName,
		logger:   logger,
	}
}

// Ensure returns sessionID unchanged when the client already holds one,
// otherwise it creates a new session.
func (m *SessionManager) Ensure(ctx context.Context, userID, sessionID string) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}
	return m.Create(ctx, userID)
}

// Create opens a new upstream session for userID. Context data is fetched
// best-effort; if creating the session with it fails, one retry is made
// with the minimal state.
func (m *SessionManager) Create(ctx context.Context, userID string) (string, error) {
	contextData := m.fetchContext(ctx, userID)

	session, err := m.sessions.CreateSession(ctx, m.appName, userID, initialState(contextData))
	if err == nil {
		m.logger.Info("Agent session created",
			"session_id", session.ID,
			"app_name", session.AppName,
			"user_id", userID,
			"with_context", contextData != nil,
			"state_keys", session.StateKeys(),
		)
		return session.ID, nil
	}

	m.logger.Warn("Session creation failed, retrying without context",
		"user_id", userID,
		"app_name", m.appName,
		"error", err,
	)

	fallback, fallbackErr := m.sessions.CreateSession(ctx, m.appName, userID, initialState(nil))
	if fallbackErr != nil {
		m.logger.Error("Fallback session creation failed",
			"user_id", userID,
			"app_name", m.appName,
			"error", fallbackErr,
		)
		return "", fmt.Errorf("%w: %w", ErrSessionCreationFailed, fallbackErr)
	}

	m.logger.Info("Created fallback session without context", "session_id", fallback.ID, "user_id", userID)
	return fallback.ID, nil
}

func (m *SessionManager) fetchContext(ctx context.Context, userID string) any {
	if m.source == nil {
		return nil
	}
	data, err := m.source.SessionContext(ctx, userID)
	if err != nil {
		m.logger.Warn("Could not fetch session context, proceeding without", "user_id", userID, "error", err)
		return nil
	}
	return data
}

package agent

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
)

// Service runs chat turns: it resolves the session, opens the upstream
// stream and hands back a Turn to iterate.
type Service struct {
	sessions   *SessionManager
	relay      *Relay
	transcoder *Transcoder
	logger     *slog.Logger
}

// NewService wires the three stages of a chat turn together.
func NewService(sessions *SessionManager, relay *Relay, transcoder *Transcoder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions:   sessions,
		relay:      relay,
		transcoder: transcoder,
		logger:     logger,
	}
}

// Turn is an open upstream stream bound to a session.
type Turn struct {
	SessionID  string
	NewSession bool
	Stats      TurnStats

	body       io.ReadCloser
	transcoder *Transcoder
	onClose    func()
	closeOnce  sync.Once
	closeErr   error
}

// Events yields the outbound events of the turn. It may be ranged over once.
func (t *Turn) Events() iter.Seq[Event] {
	return t.transcoder.EventsWithStats(t.SessionID, t.body, &t.Stats)
}

// Close releases the upstream body. It is safe to call more than once.
func (t *Turn) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.body.Close()
		if t.onClose != nil {
			t.onClose()
		}
	})
	return t.closeErr
}

// Start validates req and performs everything that must succeed before any
// event is sent. Errors returned here mean no stream was started.
func (s *Service) Start(ctx context.Context, req ChatRequest) (*Turn, error) {
	req.Normalize()
	if err := validate(req); err != nil {
		return nil, err
	}

	sessionID, err := s.sessions.Ensure(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}

	body, err := s.relay.Open(ctx, sessionID, req.UserID, req.Message)
	if err != nil {
		s.logger.Error("Agent stream request failed", "user_id", req.UserID, "session_id", sessionID, "error", err)
		return nil, err
	}

	return &Turn{
		SessionID:  sessionID,
		NewSession: req.SessionID == "",
		body:       body,
		transcoder: s.transcoder,
	}, nil
}

func validate(req ChatRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if req.Message == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	return nil
}

// Package snapshot fetches the spending summary shown beside the chat and
// attached as context to new chat sessions.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/spendchat/internal/adk"
	"github.com/ashureev/spendchat/internal/domain"
)

// Snapshot is the spending summary returned to clients.
type Snapshot = domain.SpendingSnapshot

// Runner is the part of the agent client the snapshot service needs.
type Runner interface {
	CreateSession(ctx context.Context, app, userID string, state map[string]any) (*adk.Session, error)
	Run(ctx context.Context, req adk.RunRequest) (json.RawMessage, error)
}

var _ Runner = (*adk.Client)(nil)

// Service asks the snapshot agent for a user's spending summary.
type Service struct {
	runner  Runner
	appName string
	logger  *slog.Logger
}

// NewService creates a snapshot service backed by appName.
func NewService(runner Runner, appName string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, appName: appName, logger: logger}
}

// Get creates a fresh session on the snapshot agent and runs a single
// non-streaming summary request in it.
func (s *Service) Get(ctx context.Context, userID string) (*Snapshot, error) {
	session, err := s.runner.CreateSession(ctx, s.appName, userID, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("create snapshot session: %w", err)
	}

	prompt := "Get spending summary for " + userID
	raw, err := s.runner.Run(ctx, adk.NewUserRun(s.appName, userID, session.ID, prompt, false))
	if err != nil {
		return nil, fmt.Errorf("run snapshot agent: %w", err)
	}

	snap := Decode(raw)
	s.logger.Debug("Spending snapshot fetched",
		"user_id", userID,
		"session_id", session.ID,
		"activities", len(snap.Activities),
	)
	return &snap, nil
}

// SessionContext returns the snapshot for use as chat session context.
func (s *Service) SessionContext(ctx context.Context, userID string) (any, error) {
	snap, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Decode extracts a snapshot from a /run response. The response may be the
// summary object itself or a list of agent events whose text carries it as
// JSON. Anything unrecognised decodes to the zero snapshot.
func Decode(raw json.RawMessage) Snapshot {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return empty()
	}

	switch raw[0] {
	case '{':
		return decodeFields(raw)
	case '[':
		var events []adk.Event
		if err := json.Unmarshal(raw, &events); err != nil {
			return empty()
		}
		for i := len(events) - 1; i >= 0; i-- {
			texts := events[i].Texts()
			for j := len(texts) - 1; j >= 0; j-- {
				if obj, ok := jsonObject(texts[j]); ok {
					return decodeFields(obj)
				}
			}
		}
	}
	return empty()
}

// decodeFields reads each field on its own so one mistyped field does not
// discard the others.
func decodeFields(raw []byte) Snapshot {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return empty()
	}

	snap := empty()
	if v, ok := fields["activities"]; ok {
		_ = json.Unmarshal(v, &snap.Activities)
	}
	if v, ok := fields["income"]; ok {
		_ = json.Unmarshal(v, &snap.Income)
	}
	if v, ok := fields["expenses"]; ok {
		_ = json.Unmarshal(v, &snap.Expenses)
	}
	if v, ok := fields["insights"]; ok {
		_ = json.Unmarshal(v, &snap.Insights)
	}
	if snap.Activities == nil {
		snap.Activities = []string{}
	}
	return snap
}

func empty() Snapshot {
	return Snapshot{Activities: []string{}}
}

// jsonObject finds a JSON object in model text, tolerating a fenced code block.
func jsonObject(text string) ([]byte, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") || !json.Valid([]byte(text)) {
		return nil, false
	}
	return []byte(text), true
}

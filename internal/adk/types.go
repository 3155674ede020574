// Package adk is a small HTTP client for an ADK-style agent server.
package adk

import "encoding/json"

// Session mirrors the session resource returned by the agent server.
type Session struct {
	ID             string            `json:"id"`
	AppName        string            `json:"appName"`
	UserID         string            `json:"userId"`
	State          map[string]any    `json:"state"`
	Events         []json.RawMessage `json:"events"`
	LastUpdateTime float64           `json:"lastUpdateTime"`
}

// StateKeys returns the top-level keys of the session state.
func (s *Session) StateKeys() []string {
	keys := make([]string, 0, len(s.State))
	for k := range s.State {
		keys = append(keys, k)
	}
	return keys
}

// Part is one fragment of message content.
type Part struct {
	Text string `json:"text,omitempty"`
}

// Content is a role-tagged list of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// RunRequest is the body of /run and /run_sse.
type RunRequest struct {
	AppName    string  `json:"app_name"`
	UserID     string  `json:"user_id"`
	SessionID  string  `json:"session_id"`
	NewMessage Content `json:"new_message"`
	Streaming  bool    `json:"streaming"`
}

// NewUserRun builds a run request carrying a single user text part.
func NewUserRun(app, userID, sessionID, text string, streaming bool) RunRequest {
	return RunRequest{
		AppName:   app,
		UserID:    userID,
		SessionID: sessionID,
		NewMessage: Content{
			Role:  "user",
			Parts: []Part{{Text: text}},
		},
		Streaming: streaming,
	}
}

// Event is the subset of an upstream event record the relay cares about.
// Fields the relay does not read are ignored on decode.
type Event struct {
	ID      string          `json:"id,omitempty"`
	Author  string          `json:"author,omitempty"`
	Content *Content        `json:"content,omitempty"`
	Actions json.RawMessage `json:"actions,omitempty"`
	Partial bool            `json:"partial,omitempty"`
}

// Texts returns the non-empty text fragments of the event in order.
func (e *Event) Texts() []string {
	if e.Content == nil {
		return nil
	}
	var out []string
	for _, p := range e.Content.Parts {
		if p.Text != "" {
			out = append(out, p.Text)
		}
	}
	return out
}

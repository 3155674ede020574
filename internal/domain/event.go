package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventKind tags an outbound stream event.
type EventKind string

const (
	EventSession EventKind = "session"
	EventContent EventKind = "content"
	EventError   EventKind = "error"
)

// ErrUnknownEventKind is returned by ParseStreamEvent for tags it does not know.
var ErrUnknownEventKind = errors.New("unknown stream event kind")

// StreamEvent is one frame of the chat stream sent to clients.
// Exactly one of SessionID, Text or Message is meaningful, depending on Kind.
type StreamEvent struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"sessionId,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"` // unix milliseconds
	Message   string    `json:"message,omitempty"`
}

// SessionEvent announces the agent session the turn runs in.
func SessionEvent(sessionID string) StreamEvent {
	return StreamEvent{Kind: EventSession, SessionID: sessionID}
}

// ContentEvent carries one text fragment captured at the given time.
func ContentEvent(text string, capturedAt time.Time) StreamEvent {
	return StreamEvent{Kind: EventContent, Text: text, Timestamp: capturedAt.UnixMilli()}
}

// ErrorEvent reports a failure after streaming has started.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Kind: EventError, Message: message}
}

// ParseStreamEvent decodes a frame payload. Unknown kinds return
// ErrUnknownEventKind so callers can skip them without ending the stream.
func ParseStreamEvent(data []byte) (StreamEvent, error) {
	var ev StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return StreamEvent{}, fmt.Errorf("decode stream event: %w", err)
	}
	switch ev.Kind {
	case EventSession, EventContent, EventError:
		return ev, nil
	default:
		return StreamEvent{}, fmt.Errorf("%w: %q", ErrUnknownEventKind, ev.Kind)
	}
}

// ChatRequest is the body a client posts to start a chat turn.
type ChatRequest struct {
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// Normalize trims surrounding whitespace from every field.
func (r *ChatRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Message = strings.TrimSpace(r.Message)
	r.SessionID = strings.TrimSpace(r.SessionID)
}

package chatclient

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/spendchat/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrEmptyMessage is returned when the text is blank; nothing is sent.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrTurnInProgress is returned while a previous turn is still streaming.
	ErrTurnInProgress = errors.New("a response is still streaming")
	// ErrNoResponse is surfaced when a stream ends without any content.
	ErrNoResponse = errors.New("No response received from agent") //nolint:staticcheck // shown to users verbatim
)

// Streamer opens a chat turn.
type Streamer interface {
	Stream(ctx context.Context, req domain.ChatRequest) iter.Seq2[domain.StreamEvent, error]
}

var _ Streamer = (*Client)(nil)

// State is a snapshot of a conversation.
type State struct {
	Messages  []domain.ChatMessage
	SessionID string
	Error     string
	// Streaming is the agent message still being received, or nil.
	Streaming *domain.ChatMessage
	Loading   bool
}

func (s State) clone() State {
	out := s
	out.Messages = slices.Clone(s.Messages)
	if s.Streaming != nil {
		msg := *s.Streaming
		out.Streaming = &msg
	}
	return out
}

// Conversation holds one user's transcript and runs turns one at a time.
type Conversation struct {
	client   Streamer
	userID   string
	onChange func(State)
	now      func() time.Time

	mu    sync.Mutex
	state State
}

// NewConversation creates an empty conversation. onChange, if non-nil, is
// called with a copy of the state after every change, outside any lock.
func NewConversation(client Streamer, userID string, onChange func(State)) *Conversation {
	return &Conversation{
		client:   client,
		userID:   userID,
		onChange: onChange,
		now:      time.Now,
	}
}

// State returns a copy of the current state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// DismissError clears a surfaced error.
func (c *Conversation) DismissError() {
	c.update(func(s *State) { s.Error = "" })
}

// SendMessage runs one chat turn. Blank text and calls made while a turn
// is in flight are no-ops that leave the state untouched. The user message
// is appended before anything is sent; the agent reply is appended only if
// the stream produced content.
func (c *Conversation) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.state.Loading {
		c.mu.Unlock()
		return ErrTurnInProgress
	}
	c.state.Loading = true
	c.state.Error = ""
	c.state.Messages = append(c.state.Messages, domain.NewChatMessage(domain.RoleUser, text, c.now()))
	req := domain.ChatRequest{UserID: c.userID, Message: text, SessionID: c.state.SessionID}
	snapshot := c.state.clone()
	c.mu.Unlock()
	c.notify(snapshot)

	streamID := string(domain.RoleAgent) + "-" + uuid.NewString()
	startedAt := c.now()
	var buf strings.Builder

	for ev, err := range c.client.Stream(ctx, req) {
		if err != nil {
			return c.fail(err)
		}
		switch ev.Kind {
		case domain.EventSession:
			c.update(func(s *State) { s.SessionID = ev.SessionID })
		case domain.EventContent:
			buf.WriteString(ev.Text)
			content := buf.String()
			c.update(func(s *State) {
				s.Streaming = &domain.ChatMessage{
					ID:        streamID,
					Role:      domain.RoleAgent,
					Content:   content,
					CreatedAt: startedAt,
					Streaming: true,
				}
			})
		case domain.EventError:
			return c.fail(errors.New(ev.Message))
		}
	}

	reply := strings.TrimSpace(buf.String())
	if reply == "" {
		return c.fail(ErrNoResponse)
	}
	c.update(func(s *State) {
		s.Messages = append(s.Messages, domain.NewChatMessage(domain.RoleAgent, reply, c.now()))
		s.Streaming = nil
		s.Loading = false
	})
	return nil
}

func (c *Conversation) fail(err error) error {
	c.update(func(s *State) {
		s.Streaming = nil
		s.Loading = false
		s.Error = err.Error()
	})
	return err
}

func (c *Conversation) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	snapshot := c.state.clone()
	c.mu.Unlock()
	c.notify(snapshot)
}

func (c *Conversation) notify(s State) {
	if c.onChange != nil {
		c.onChange(s)
	}
}

// Package agent relays chat turns between dashboard clients and the
// upstream agent server.
package agent

import (
	"github.com/ashureev/spendchat/internal/domain"
)

const (
	// stateTopicKey and stateContextKey are the session state keys the
	// upstream agent reads.
	stateTopicKey   = "topic"
	stateContextKey = "contextData"

	defaultTopic = "spending"
)

// ChatRequest is the body accepted by the chat endpoints.
type ChatRequest = domain.ChatRequest

// Event is one outbound stream frame.
type Event = domain.StreamEvent

// TurnStats summarizes what a transcoded stream produced.
type TurnStats struct {
	ContentEvents  int
	TextBytes      int
	SkippedRecords int
	ReadError      error
}

func initialState(contextData any) map[string]any {
	state := map[string]any{stateTopicKey: defaultTopic}
	if contextData != nil {
		state[stateContextKey] = contextData
	}
	return state
}

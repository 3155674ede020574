package agent

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/spendchat/internal/adk"
)

const testApp = "spending_snapshot_agent"

// fakeUpstream stands in for the agent server.
type fakeUpstream struct {
	mu          sync.Mutex
	createErrs  []error
	createCalls []map[string]any
	runCalls    []adk.RunRequest
	runErr      error
	stream      string
	body        io.Reader
}

func (f *fakeUpstream) CreateSession(_ context.Context, app, userID string, state map[string]any) (*adk.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := len(f.createCalls)
	f.createCalls = append(f.createCalls, state)
	if call < len(f.createErrs) && f.createErrs[call] != nil {
		return nil, f.createErrs[call]
	}
	return &adk.Session{ID: fmt.Sprintf("session-%d", call+1), AppName: app, UserID: userID, State: state}, nil
}

func (f *fakeUpstream) RunSSE(_ context.Context, req adk.RunRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCalls = append(f.runCalls, req)
	if f.runErr != nil {
		return nil, f.runErr
	}
	if f.body != nil {
		return io.NopCloser(f.body), nil
	}
	return io.NopCloser(strings.NewReader(f.stream)), nil
}

func (f *fakeUpstream) creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createCalls)
}

func (f *fakeUpstream) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runCalls)
}

type fakeContext struct {
	data any
	err  error
}

func (f fakeContext) SessionContext(context.Context, string) (any, error) {
	return f.data, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(up *fakeUpstream, src ContextSource) *Service {
	logger := discardLogger()
	return NewService(
		NewSessionManager(up, src, testApp, logger),
		NewRelay(up, testApp, logger),
		NewTranscoder(0, logger),
		logger,
	)
}

func collect(seq iter.Seq[Event]) []Event {
	var out []Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func agentStream(texts ...string) string {
	var b strings.Builder
	for _, text := range texts {
		fmt.Fprintf(&b, "data: {\"author\":\"agent\",\"content\":{\"role\":\"model\",\"parts\":[{\"text\":%q}]}}\n\n", text)
	}
	return b.String()
}

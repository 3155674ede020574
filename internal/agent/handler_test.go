package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/ashureev/spendchat/internal/adk"
	"github.com/ashureev/spendchat/internal/config"
	"github.com/ashureev/spendchat/internal/domain"
	"github.com/ashureev/spendchat/internal/sse"
	"github.com/ashureev/spendchat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, up *fakeUpstream, mutate func(*config.Config)) *Handler {
	t.Helper()
	repo, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	_, err = repo.SeedUsers(context.Background(), []string{"user-001"})
	require.NoError(t, err)

	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute},
		SSE: config.SSEConfig{
			MaxRequestBodySize:   1 << 20,
			MaxLineSize:          1 << 20,
			MaxConcurrentStreams: 4,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	h := NewHandler(newTestService(up, nil), repo, nil, cfg)
	h.logger = discardLogger()
	t.Cleanup(h.Close)
	return h
}

func postChat(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/cymbal/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)
	return rec
}

func streamEvents(t *testing.T, body io.Reader) []Event {
	t.Helper()
	reader := sse.NewReader(body, 0)
	var events []Event
	for {
		payload, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		ev, err := domain.ParseStreamEvent([]byte(payload))
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func errorResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleChatStreamsNewSession(t *testing.T) {
	up := &fakeUpstream{stream: agentStream("You spent ", "$1,240 this month. ")}
	h := newTestHandler(t, up, nil)

	rec := postChat(h, `{"userId":"user-001","message":"How much did I spend?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "event: session\ndata: "))

	events := streamEvents(t, rec.Body)
	require.Len(t, events, 3)
	assert.Equal(t, domain.SessionEvent("session-1"), events[0])
	assert.Equal(t, "You spent ", events[1].Text)
	assert.Equal(t, "$1,240 this month. ", events[2].Text)

	assert.Equal(t, 1, up.creates())
	assert.Equal(t, "How much did I spend?", up.runCalls[0].NewMessage.Parts[0].Text)
}

func TestHandleChatReusesClientSession(t *testing.T) {
	up := &fakeUpstream{stream: agentStream("again")}
	h := newTestHandler(t, up, nil)

	rec := postChat(h, `{"userId":"user-001","message":"And last week?","sessionId":"session-9"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	events := streamEvents(t, rec.Body)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.SessionEvent("session-9"), events[0])
	assert.Zero(t, up.creates())
	assert.Equal(t, "session-9", up.runCalls[0].SessionID)
}

func TestHandleChatRejectsInvalidRequests(t *testing.T) {
	bodies := []string{
		`{"userId":"user-001"}`,
		`{"userId":"user-001","message":"   "}`,
		`{"message":"hi"}`,
		`{"userId":`,
	}
	for _, body := range bodies {
		up := &fakeUpstream{}
		h := newTestHandler(t, up, nil)

		rec := postChat(h, body)

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.NotEmpty(t, errorResponse(t, rec)["error"])
		assert.Zero(t, up.creates())
		assert.Zero(t, up.runs())
	}
}

func TestHandleChatRejectsUserOutsideAllowList(t *testing.T) {
	up := &fakeUpstream{}
	h := newTestHandler(t, up, nil)

	rec := postChat(h, `{"userId":"mallory","message":"hi"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, up.creates())
}

func TestHandleChatSessionCreationFailure(t *testing.T) {
	up := &fakeUpstream{createErrs: []error{errors.New("down"), errors.New("still down")}}
	h := newTestHandler(t, up, nil)

	rec := postChat(h, `{"userId":"user-001","message":"hi"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := errorResponse(t, rec)
	assert.Equal(t, "Failed to process chat request", body["error"])
	assert.Contains(t, body["message"], "still down")
	assert.Zero(t, up.runs())
}

func TestHandleChatUpstreamRequestFailure(t *testing.T) {
	up := &fakeUpstream{runErr: &adk.StatusError{Op: "run_sse", StatusCode: http.StatusBadGateway}}
	h := newTestHandler(t, up, nil)

	rec := postChat(h, `{"userId":"user-001","message":"hi"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, errorResponse(t, rec)["message"], "502")
}

func TestHandleChatReadErrorEndsWithErrorEvent(t *testing.T) {
	up := &fakeUpstream{body: io.MultiReader(
		strings.NewReader(agentStream("partial")),
		iotest.ErrReader(errors.New("unexpected EOF")),
	)}
	h := newTestHandler(t, up, nil)

	rec := postChat(h, `{"userId":"user-001","message":"hi"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	events := streamEvents(t, rec.Body)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventError, events[2].Kind)
}

func TestHandleChatRateLimit(t *testing.T) {
	up := &fakeUpstream{stream: agentStream("ok")}
	h := newTestHandler(t, up, func(cfg *config.Config) {
		cfg.RateLimit.RequestsPerWindow = 1
	})

	assert.Equal(t, http.StatusOK, postChat(h, `{"userId":"user-001","message":"one"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, postChat(h, `{"userId":"user-001","message":"two"}`).Code)
	assert.Equal(t, 1, up.runs())
}

func TestHandleChatStreamCap(t *testing.T) {
	up := &fakeUpstream{stream: agentStream("ok")}
	h := newTestHandler(t, up, func(cfg *config.Config) {
		cfg.SSE.MaxConcurrentStreams = 1
	})

	require.True(t, h.streams.TryAcquire(1))
	assert.Equal(t, http.StatusServiceUnavailable, postChat(h, `{"userId":"user-001","message":"hi"}`).Code)
	h.streams.Release(1)

	assert.Equal(t, http.StatusOK, postChat(h, `{"userId":"user-001","message":"hi"}`).Code)
	assert.True(t, h.streams.TryAcquire(1), "slot must be released when the turn ends")
	h.streams.Release(1)
}

func TestHandleChatStreamCapDoesNotSpendRateLimit(t *testing.T) {
	up := &fakeUpstream{stream: agentStream("ok")}
	h := newTestHandler(t, up, func(cfg *config.Config) {
		cfg.SSE.MaxConcurrentStreams = 1
		cfg.RateLimit.RequestsPerWindow = 1
	})

	require.True(t, h.streams.TryAcquire(1))
	assert.Equal(t, http.StatusServiceUnavailable, postChat(h, `{"userId":"user-001","message":"hi"}`).Code)
	h.streams.Release(1)

	assert.Equal(t, http.StatusOK, postChat(h, `{"userId":"user-001","message":"hi"}`).Code)
}

func TestHandleChatRateLimitReleasesStreamSlot(t *testing.T) {
	up := &fakeUpstream{stream: agentStream("ok")}
	h := newTestHandler(t, up, func(cfg *config.Config) {
		cfg.SSE.MaxConcurrentStreams = 1
		cfg.RateLimit.RequestsPerWindow = 1
	})

	assert.Equal(t, http.StatusOK, postChat(h, `{"userId":"user-001","message":"one"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, postChat(h, `{"userId":"user-001","message":"two"}`).Code)
	assert.True(t, h.streams.TryAcquire(1), "a rate-limited request must not hold a stream slot")
	h.streams.Release(1)
}

func TestNewHandlerIgnoresNonPositiveLimits(t *testing.T) {
	up := &fakeUpstream{stream: agentStream("ok")}
	h := newTestHandler(t, up, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{}
		cfg.SSE.MaxConcurrentStreams = 0
		cfg.SSE.MaxRequestBodySize = 0
	})

	assert.Equal(t, defaultRateLimitRequests, h.rateLimiter.limit)
	assert.Equal(t, defaultRateLimitWindow, h.rateLimiter.window)
	assert.Equal(t, int64(defaultMaxRequestBodySize), h.maxBodySize)
	assert.Equal(t, http.StatusOK, postChat(h, `{"userId":"user-001","message":"hi"}`).Code)
}

func TestHandleChatBodyTooLarge(t *testing.T) {
	up := &fakeUpstream{}
	h := newTestHandler(t, up, func(cfg *config.Config) {
		cfg.SSE.MaxRequestBodySize = 16
	})

	rec := postChat(h, `{"userId":"user-001","message":"this body is far too long"}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"*"}, originPatterns([]string{"*"}))
	assert.Equal(t, []string{"dash.example.com:8443"}, originPatterns([]string{"https://dash.example.com:8443", "::bad"}))
}

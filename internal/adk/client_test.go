package adk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"s-1","appName":"spending_snapshot_agent","userId":"user-001","state":{"topic":"spending"},"events":[],"lastUpdateTime":1.5}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL + "/"})
	session, err := c.CreateSession(context.Background(), "spending_snapshot_agent", "user-001", map[string]any{"topic": "spending"})
	require.NoError(t, err)

	assert.Equal(t, "/apps/spending_snapshot_agent/users/user-001/sessions", gotPath)
	assert.Equal(t, map[string]any{"state": map[string]any{"topic": "spending"}}, gotBody)
	assert.Equal(t, "s-1", session.ID)
	assert.Equal(t, []string{"topic"}, session.StateKeys())
}

func TestCreateSessionStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL}).CreateSession(context.Background(), "app", "u", nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "boom", statusErr.Body)
}

func TestCreateSessionRejectsEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"state":{}}`))
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL}).CreateSession(context.Background(), "app", "u", nil)
	assert.Error(t, err)
}

func TestRunSendsNonStreamingRequest(t *testing.T) {
	var got RunRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"income":10}`))
	}))
	defer srv.Close()

	raw, err := NewClient(Options{BaseURL: srv.URL}).Run(context.Background(), NewUserRun("cymbal", "user-001", "s-1", "hi", true))
	require.NoError(t, err)

	assert.JSONEq(t, `{"income":10}`, string(raw))
	assert.False(t, got.Streaming)
	assert.Equal(t, "cymbal", got.AppName)
	assert.Equal(t, "user", got.NewMessage.Role)
	assert.Equal(t, []Part{{Text: "hi"}}, got.NewMessage.Parts)
}

func TestRunSSEReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run_sse", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		var req RunRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Streaming)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {}\n\n"))
	}))
	defer srv.Close()

	body, err := NewClient(Options{BaseURL: srv.URL}).RunSSE(context.Background(), NewUserRun("app", "u", "s", "hi", false))
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: {}\n\n", string(data))
}

func TestRunSSEStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL}).RunSSE(context.Background(), RunRequest{})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "run_sse", statusErr.Op)
	assert.Contains(t, err.Error(), "404")
}

func TestEventTexts(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"author":"agent","content":{"parts":[{"text":"a"},{"functionCall":{}},{"text":"b"}]}}`), &ev))
	assert.Equal(t, []string{"a", "b"}, ev.Texts())

	assert.Nil(t, (&Event{}).Texts())
}

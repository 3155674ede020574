package adk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Options configures a Client.
type Options struct {
	BaseURL string

	// RequestTimeout bounds session creation and non-streaming runs.
	RequestTimeout time.Duration

	// StreamHeaderTimeout bounds the wait for /run_sse response headers.
	// Streaming bodies are read without a deadline.
	StreamHeaderTimeout time.Duration

	Logger *slog.Logger
}

// Client talks to the agent server over HTTP/JSON.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the agent server at opts.BaseURL.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.StreamHeaderTimeout <= 0 {
		opts.StreamHeaderTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.StreamHeaderTimeout,
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    &http.Client{Transport: transport, Timeout: opts.RequestTimeout},
		stream:  &http.Client{Transport: transport},
		logger:  logger,
	}
}

// CreateSession creates a session for userID under app with the given initial state.
func (c *Client) CreateSession(ctx context.Context, app, userID string, state map[string]any) (*Session, error) {
	if state == nil {
		state = map[string]any{}
	}
	path := fmt.Sprintf("/apps/%s/users/%s/sessions", url.PathEscape(app), url.PathEscape(userID))

	resp, err := c.post(ctx, c.http, path, map[string]any{"state": state}, "application/json")
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus("create session", resp); err != nil {
		return nil, err
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("create session: agent server returned an empty session id")
	}

	c.logger.Debug("agent session created",
		"session_id", session.ID,
		"app_name", session.AppName,
		"user_id", session.UserID,
		"state_keys", session.StateKeys())
	return &session, nil
}

// Run performs a non-streaming run and returns the raw response body.
func (c *Client) Run(ctx context.Context, req RunRequest) (json.RawMessage, error) {
	req.Streaming = false
	resp, err := c.post(ctx, c.http, "/run", req, "application/json")
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus("run", resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read run response: %w", err)
	}
	return json.RawMessage(body), nil
}

// RunSSE starts a streaming run. It returns as soon as response headers
// arrive; the caller owns the body and must close it. Cancelling ctx aborts
// the body read.
func (c *Client) RunSSE(ctx context.Context, req RunRequest) (io.ReadCloser, error) {
	req.Streaming = true
	resp, err := c.post(ctx, c.stream, "/run_sse", req, "text/event-stream")
	if err != nil {
		return nil, fmt.Errorf("run_sse: %w", err)
	}
	if err := checkStatus("run_sse", resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) post(ctx context.Context, hc *http.Client, path string, body any, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	return hc.Do(req)
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(excerpt)),
	}
}

// Package chatclient consumes the chat stream and keeps the conversation
// transcript a dashboard or terminal client renders.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/spendchat/internal/domain"
	"github.com/ashureev/spendchat/internal/sse"
)

const (
	defaultChatPath     = "/api/chat"
	defaultSnapshotPath = "/api/cymbal/spending-snapshot"
	maxErrorBody        = 4 << 10
)

// ResponseError is a non-2xx answer received before the stream started.
type ResponseError struct {
	StatusCode int
	Title      string
	Message    string
}

func (e *ResponseError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Title != "":
		return e.Title
	default:
		return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	ChatPath    string
	HTTPClient  *http.Client
	MaxLineSize int
}

// Client talks to the dashboard server's chat and snapshot endpoints.
type Client struct {
	baseURL     string
	chatPath    string
	http        *http.Client
	maxLineSize int
}

// New creates a client. The HTTP client must not set an overall timeout,
// since a chat stream stays open for the whole agent response.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 60 * time.Second,
		}}
	}
	chatPath := opts.ChatPath
	if chatPath == "" {
		chatPath = defaultChatPath
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		chatPath:    chatPath,
		http:        hc,
		maxLineSize: opts.MaxLineSize,
	}
}

// Stream posts req and yields the events of the response. Malformed frames
// and unknown event kinds are skipped. A transport failure is yielded once
// as an error and ends the sequence.
func (c *Client) Stream(ctx context.Context, req domain.ChatRequest) iter.Seq2[domain.StreamEvent, error] {
	return func(yield func(domain.StreamEvent, error) bool) {
		resp, err := c.post(ctx, c.chatPath, req, "text/event-stream")
		if err != nil {
			yield(domain.StreamEvent{}, err)
			return
		}
		defer func() { _ = resp.Body.Close() }()

		reader := sse.NewReader(resp.Body, c.maxLineSize)
		for {
			payload, err := reader.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(domain.StreamEvent{}, fmt.Errorf("read chat stream: %w", err))
				return
			}

			ev, err := domain.ParseStreamEvent([]byte(payload))
			if err != nil {
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Snapshot fetches the spending snapshot for userID.
func (c *Client) Snapshot(ctx context.Context, userID string) (*domain.SpendingSnapshot, error) {
	resp, err := c.post(ctx, defaultSnapshotPath, map[string]string{"userId": userID}, "application/json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var snap domain.SpendingSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// post sends body as JSON and returns the response only when it is 2xx.
func (c *Client) post(ctx context.Context, path string, body any, accept string) (*http.Response, error) {
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

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()

	respErr := &ResponseError{StatusCode: resp.StatusCode}
	var errBody struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); err == nil && json.Unmarshal(data, &errBody) == nil {
		respErr.Title = errBody.Error
		respErr.Message = errBody.Message
	}
	return nil, respErr
}

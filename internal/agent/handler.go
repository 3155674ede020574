package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/spendchat/internal/api"
	"github.com/ashureev/spendchat/internal/config"
	"github.com/ashureev/spendchat/internal/domain"
	"github.com/ashureev/spendchat/internal/identity"
	"github.com/ashureev/spendchat/internal/sse"
	"github.com/ashureev/spendchat/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxRequestBodySize   = 1 << 20
	defaultMaxConcurrentStreams = 64

	channelHTTP       = "chat_http"
	channelWS         = "chat_ws"
	eventUserMessage  = "chat_user_message"
	eventAgentMessage = "chat_agent_message"

	chatFailedMessage = "Failed to process chat request"
)

// Handler serves the chat endpoints.
type Handler struct {
	service        *Service
	repo           store.Repository
	rateLimiter    *RateLimiter
	streams        *semaphore.Weighted
	maxBodySize    int64
	originPatterns []string
	isDev          bool
	log            ConversationLogger
	logger         *slog.Logger
}

// NewHandler creates a chat handler. cfg may be nil, in which case defaults apply.
func NewHandler(service *Service, repo store.Repository, conversationLogger ConversationLogger, cfg *config.Config) *Handler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}

	rateLimitRequests := defaultRateLimitRequests
	rateLimitWindow := defaultRateLimitWindow
	maxBodySize := int64(defaultMaxRequestBodySize)
	maxStreams := int64(defaultMaxConcurrentStreams)
	origins := []string{"*"}
	isDev := true

	if cfg != nil {
		if cfg.RateLimit.RequestsPerWindow > 0 && cfg.RateLimit.WindowDuration > 0 {
			rateLimitRequests = cfg.RateLimit.RequestsPerWindow
			rateLimitWindow = cfg.RateLimit.WindowDuration
		}
		if cfg.SSE.MaxRequestBodySize > 0 {
			maxBodySize = cfg.SSE.MaxRequestBodySize
		}
		if cfg.SSE.MaxConcurrentStreams > 0 {
			maxStreams = cfg.SSE.MaxConcurrentStreams
		}
		origins = cfg.AllowedOrigins()
		isDev = cfg.IsDevelopment()
	}

	return &Handler{
		service:        service,
		repo:           repo,
		rateLimiter:    NewRateLimiter(rateLimitRequests, rateLimitWindow),
		streams:        semaphore.NewWeighted(maxStreams),
		maxBodySize:    maxBodySize,
		originPatterns: originPatterns(origins),
		isDev:          isDev,
		log:            conversationLogger,
		logger:         slog.Default(),
	}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/cymbal/chat", h.HandleChat)
	r.Post("/api/chat", h.HandleChat)
	r.Get("/ws/chat", h.HandleWebSocket)
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
	if err := h.log.Close(); err != nil {
		h.logger.Warn("failed to close conversation logger", "error", err)
	}
}

// HandleChat handles POST /api/cymbal/chat. Failures before the first event
// are reported as JSON with a non-2xx status; afterwards they are reported
// as an error event on the stream.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	sw, err := sse.NewWriter(w)
	if err != nil {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.JSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large", err))
			return
		}
		api.JSON(w, http.StatusBadRequest, errorBody("invalid request body", err))
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	turn, err := h.begin(r.Context(), &req, channelHTTP, reqID)
	if err != nil {
		status := statusFor(err)
		api.JSON(w, status, errorBody(titleFor(status), err))
		return
	}
	defer func() { _ = turn.Close() }()

	sse.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	var agentContent strings.Builder
	streamErrMsg := ""
	partial := false
	for ev := range turn.Events() {
		switch ev.Kind {
		case domain.EventContent:
			agentContent.WriteString(ev.Text)
		case domain.EventError:
			partial = true
			streamErrMsg = ev.Message
		}

		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Warn("failed to marshal stream event", "error", err)
			continue
		}
		if err := sw.WriteEvent(string(ev.Kind), data); err != nil {
			h.logger.Warn("failed to write SSE event, client gone", "user_id", req.UserID, "error", err)
			partial = true
			streamErrMsg = err.Error()
			break
		}
	}

	h.logAgentMessage(turn, req.UserID, channelHTTP, agentContent.String(), partial, streamErrMsg, reqID)
}

// begin runs every check and upstream call that precedes the first event.
// The returned turn holds a stream slot until it is closed.
func (h *Handler) begin(ctx context.Context, req *ChatRequest, channel, reqID string) (*Turn, error) {
	req.Normalize()
	if err := validate(*req); err != nil {
		return nil, err
	}

	if signedIn := identity.UserIDFromContext(ctx); signedIn != "" && signedIn != req.UserID {
		return nil, fmt.Errorf("%w: signed in as a different user", ErrUserNotAllowed)
	}

	user, err := h.repo.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		h.logger.Warn("Chat request from user outside allow-list", "user_id", req.UserID)
		return nil, ErrUserNotAllowed
	}

	if !h.streams.TryAcquire(1) {
		return nil, ErrStreamLimit
	}
	if !h.rateLimiter.Allow(req.UserID) {
		h.streams.Release(1)
		return nil, ErrRateLimited
	}

	h.logger.Info("Agent chat request",
		"user_id", req.UserID,
		"session_id", req.SessionID,
		"channel", channel,
		"message_length", len(req.Message),
	)

	turn, err := h.service.Start(ctx, *req)
	if err != nil {
		h.streams.Release(1)
		return nil, err
	}
	turn.onClose = func() { h.streams.Release(1) }

	if err := h.repo.UpdateLastSeen(ctx, req.UserID, time.Now()); err != nil {
		h.logger.Warn("failed to update last seen", "user_id", req.UserID, "error", err)
	}

	h.log.Log(ConversationLogEvent{
		TurnID:     reqID,
		UserID:     req.UserID,
		SessionID:  turn.SessionID,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  eventUserMessage,
		ContentRaw: req.Message,
		Meta: map[string]any{
			"new_session": turn.NewSession,
		},
	})
	return turn, nil
}

func (h *Handler) logAgentMessage(turn *Turn, userID, channel, content string, partial bool, streamErrMsg, reqID string) {
	h.log.Log(ConversationLogEvent{
		TurnID:     reqID,
		UserID:     userID,
		SessionID:  turn.SessionID,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  eventAgentMessage,
		ContentRaw: content,
		Meta: map[string]any{
			"content_events":  turn.Stats.ContentEvents,
			"skipped_records": turn.Stats.SkippedRecords,
			"partial":         partial,
			"stream_error":    streamErrMsg,
		},
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUserNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStreamLimit):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func titleFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusForbidden:
		return "user not allowed"
	case http.StatusTooManyRequests:
		return "rate limit exceeded"
	case http.StatusServiceUnavailable:
		return "server busy"
	default:
		return chatFailedMessage
	}
}

func errorBody(title string, err error) map[string]string {
	return map[string]string{"error": title, "message": err.Error()}
}

// originPatterns converts allowed origins into websocket host patterns.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}

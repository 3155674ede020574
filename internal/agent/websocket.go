package agent

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/spendchat/internal/domain"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const wsRequestTimeout = 30 * time.Second

// HandleWebSocket serves one chat turn over a websocket. The client sends a
// single chat request; each event is sent as a JSON text message and a
// normal closure marks the end of the turn.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: h.isDev,
	})
	if err != nil {
		h.logger.Warn("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() { _ = ws.CloseNow() }()
	ws.SetReadLimit(h.maxBodySize)

	readCtx, cancel := context.WithTimeout(r.Context(), wsRequestTimeout)
	var req ChatRequest
	err = wsjson.Read(readCtx, ws, &req)
	cancel()
	if err != nil {
		if websocket.CloseStatus(err) != -1 {
			h.logger.Debug("WebSocket closed before chat request", "error", err)
			return
		}
		h.logger.Warn("Invalid WebSocket chat request", "error", err)
		_ = ws.Close(websocket.StatusUnsupportedData, "invalid chat request")
		return
	}

	// The client sends nothing more; CloseRead cancels ctx once it goes away,
	// which in turn aborts the upstream stream.
	ctx := ws.CloseRead(r.Context())
	reqID := chiMiddleware.GetReqID(r.Context())

	turn, err := h.begin(ctx, &req, channelWS, reqID)
	if err != nil {
		if writeErr := wsjson.Write(ctx, ws, domain.ErrorEvent(err.Error())); writeErr != nil {
			h.logger.Debug("Failed to send WebSocket error event", "error", writeErr)
		}
		_ = ws.Close(wsCloseStatus(err), titleFor(statusFor(err)))
		return
	}
	defer func() { _ = turn.Close() }()

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
		if err := wsjson.Write(ctx, ws, ev); err != nil {
			h.logger.Warn("failed to write WebSocket event, client gone", "user_id", req.UserID, "error", err)
			partial = true
			streamErrMsg = err.Error()
			break
		}
	}

	h.logAgentMessage(turn, req.UserID, channelWS, agentContent.String(), partial, streamErrMsg, reqID)

	if err := ws.Close(websocket.StatusNormalClosure, "turn complete"); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("Failed to close WebSocket", "error", err)
	}
}

func wsCloseStatus(err error) websocket.StatusCode {
	switch statusFor(err) {
	case http.StatusBadRequest, http.StatusForbidden:
		return websocket.StatusPolicyViolation
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return websocket.StatusTryAgainLater
	default:
		return websocket.StatusInternalError
	}
}

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/spendchat/internal/identity"
	"github.com/go-chi/chi/v5"
)

// AuthHandler handles the allow-list login endpoints.
type AuthHandler struct {
	*Handler
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(base *Handler) *AuthHandler {
	return &AuthHandler{Handler: base}
}

// RegisterRoutes registers auth and frontend config routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/login", h.Login)
	r.Post("/api/logout", h.Logout)
	r.Get("/api/config", h.GetConfig)
	r.With(identity.RequireUser).Get("/api/me", h.GetMe)
}

type loginRequest struct {
	UserID string `json:"userId"`
}

// Login signs in an allow-listed user.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if !identity.ValidUserID(req.UserID) {
		Error(w, http.StatusBadRequest, "User ID is required")
		return
	}

	user, err := h.repo.GetUser(r.Context(), req.UserID)
	if err != nil {
		slog.Error("Login lookup failed", "user_id", req.UserID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to look up user")
		return
	}
	if user == nil {
		slog.Warn("Login rejected", "user_id", req.UserID, "ip", identity.IPFromRequest(r))
		Error(w, http.StatusForbidden, "user not allowed")
		return
	}

	if err := h.repo.UpdateLastSeen(r.Context(), user.UserID, time.Now()); err != nil {
		slog.Warn("failed to update last seen", "user_id", user.UserID, "error", err)
	}
	identity.SetCookie(w, user.UserID, !h.isDevelopment())

	slog.Info("User signed in", "user_id", user.UserID)
	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      user.UserID,
		"display_name": user.DisplayName,
	})
}

// Logout clears the sign-in cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity.ClearCookie(w, !h.isDevelopment())
	w.WriteHeader(http.StatusNoContent)
}

// GetMe returns the signed-in user.
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	resp := map[string]interface{}{
		"user_id":      user.UserID,
		"display_name": user.DisplayName,
	}
	if user.HasBeenSeen() {
		resp["last_seen_at"] = user.LastSeenAt.UTC().Format(time.RFC3339)
	}
	JSON(w, http.StatusOK, resp)
}

// GetConfig returns the endpoints the frontend talks to.
func (h *AuthHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"chat_endpoint":     "/api/cymbal/chat",
		"ws_endpoint":       "/ws/chat",
		"snapshot_endpoint": "/api/cymbal/spending-snapshot",
	})
}

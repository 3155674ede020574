// Package api provides the dashboard's HTTP handlers outside the chat stream.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/spendchat/internal/config"
	"github.com/ashureev/spendchat/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	repo store.Repository
	cfg  *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, cfg *config.Config) *Handler {
	return &Handler{repo: repo, cfg: cfg}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (h *Handler) isDevelopment() bool {
	return h.cfg == nil || h.cfg.IsDevelopment()
}

package snapshot

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/spendchat/internal/api"
	"github.com/ashureev/spendchat/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxRequestBodySize = 64 << 10

// Handler serves the spending snapshot endpoint.
type Handler struct {
	service *Service
	repo    store.Repository
}

// NewHandler creates a snapshot handler.
func NewHandler(service *Service, repo store.Repository) *Handler {
	return &Handler{service: service, repo: repo}
}

// RegisterRoutes registers the snapshot routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/cymbal/spending-snapshot", h.HandleSnapshot)
}

type snapshotRequest struct {
	UserID string `json:"userId"`
}

// HandleSnapshot handles POST /api/cymbal/spending-snapshot.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		api.Error(w, http.StatusBadRequest, "User ID is required")
		return
	}

	user, err := h.repo.GetUser(r.Context(), req.UserID)
	if err != nil {
		api.Error(w, http.StatusInternalServerError, "failed to look up user")
		return
	}
	if user == nil {
		api.Error(w, http.StatusForbidden, "user not allowed")
		return
	}

	snap, err := h.service.Get(r.Context(), req.UserID)
	if err != nil {
		slog.Error("Spending snapshot failed", "user_id", req.UserID, "error", err)
		api.JSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to fetch spending data",
			"message": err.Error(),
		})
		return
	}

	api.JSON(w, http.StatusOK, snap)
}

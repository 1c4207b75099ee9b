// Package api provides HTTP handlers for the chat service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tezansahu/career-mentor-chat/internal/agent"
	"github.com/tezansahu/career-mentor-chat/internal/config"
	"github.com/tezansahu/career-mentor-chat/internal/store"
)

// Handler serves the chat API.
type Handler struct {
	svc     *agent.Service
	repo    store.Repository
	cfg     *config.Config
	limiter *RateLimiter
	log     agent.ConversationLogger
	streams *StreamManager
}

// NewHandler creates the API handler.
func NewHandler(svc *agent.Service, repo store.Repository, cfg *config.Config, logger agent.ConversationLogger, streams *StreamManager) *Handler {
	if logger == nil {
		logger = agent.NewNoopConversationLogger()
	}
	return &Handler{
		svc:     svc,
		repo:    repo,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
		log:     logger,
		streams: streams,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/models", h.HandleModels)
		r.Get("/session/config", h.HandleGetConfig)
		r.Put("/session/config", h.HandleUpdateConfig)
		r.Get("/history", h.HandleHistory)
		r.Post("/chat", h.HandleChat)
		r.Post("/reset", h.HandleReset)
		r.Get("/health", h.HandleHealth)
	})
	r.Get("/ws/chat", h.HandleChatStream)
}

// Close releases handler resources.
func (h *Handler) Close() {
	if err := h.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
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

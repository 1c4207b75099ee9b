package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tezansahu/career-mentor-chat/internal/agent"
	"github.com/tezansahu/career-mentor-chat/internal/domain"
	"github.com/tezansahu/career-mentor-chat/internal/identity"
)

// HandleModels handles GET /api/models.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"models": domain.Models})
}

type configStatus struct {
	Model         string   `json:"model"`
	CredentialSet bool     `json:"credential_set"`
	SearchKeySet  bool     `json:"search_key_set"`
	Configured    bool     `json:"configured"`
	Models        []string `json:"models"`
}

// HandleGetConfig handles GET /api/session/config. Secrets are reported as
// presence flags only, never echoed back.
func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cfg := h.svc.Config(userID, sessionID)
	JSON(w, http.StatusOK, configStatus{
		Model:         cfg.Model,
		CredentialSet: cfg.Credential != "",
		SearchKeySet:  cfg.SearchAPIKey != "",
		Configured:    cfg.Complete(),
		Models:        domain.Models,
	})
}

// HandleUpdateConfig handles PUT /api/session/config.
func (h *Handler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.SSE.MaxRequestBodySize)

	var cfg domain.SessionConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Configure(userID, sessionID, cfg); err != nil {
		if errors.Is(err, agent.ErrUnknownModel) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		Error(w, http.StatusInternalServerError, "failed to update configuration")
		return
	}

	JSON(w, http.StatusOK, configStatus{
		Model:         cfg.Model,
		CredentialSet: cfg.Credential != "",
		SearchKeySet:  cfg.SearchAPIKey != "",
		Configured:    cfg.Complete(),
		Models:        domain.Models,
	})
}

// HandleHistory handles GET /api/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	entries, err := h.svc.History(r.Context(), userID, sessionID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if entries == nil {
		entries = []domain.ChatEntry{}
	}
	JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// HandleReset handles POST /api/reset: clears the transcript and rebuilds the
// agent from the current configuration. Idempotent.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.svc.Reset(r.Context(), userID, sessionID); err != nil {
		Error(w, http.StatusInternalServerError, "failed to reset session")
		return
	}

	// Closing the mirror stream makes other tabs reconnect and reload the
	// now-empty history.
	h.streams.CloseSession(userID, sessionID)

	h.log.Log(agent.ConversationLogEvent{
		UserID:    userID,
		SessionID: sessionID,
		Channel:   "chat_http",
		Direction: "outbound",
		EventType: "session_reset",
	})
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

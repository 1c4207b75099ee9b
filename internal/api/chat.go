package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tezansahu/career-mentor-chat/internal/agent"
	"github.com/tezansahu/career-mentor-chat/internal/domain"
	"github.com/tezansahu/career-mentor-chat/internal/identity"
)

type chatRequest struct {
	Message string `json:"message"`
}

// HandleChat handles POST /api/chat. It appends the user entry, runs one
// conversation turn to completion and streams every resulting transcript
// entry back as SSE "entry" events, followed by a "done" event.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.SSE.MaxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if !h.svc.Config(userID, sessionID).Complete() {
		Error(w, http.StatusConflict, "please provide your credential and select a model to continue")
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	slog.Info("Chat request",
		"user_id", userID,
		"session_id", sessionID,
		"message_length", len(req.Message),
	)
	h.log.Log(agent.ConversationLogEvent{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: req.Message,
		Meta: map[string]any{
			"request_id": reqID,
		},
	})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", h.cfg.SSE.RetryDelay.Milliseconds()); err != nil {
		slog.Warn("failed to write SSE retry header", "error", err, "user_id", userID)
		return
	}
	flusher.Flush()

	// The turn runs in its own goroutine feeding a channel; all writes to w
	// happen here in the handler goroutine, interleaved with keepalive pings.
	// The ResponseWriter must never be touched after the handler returns.
	type turnEvent struct {
		entry *domain.ChatEntry
		err   error
	}
	events := make(chan turnEvent)
	stop := make(chan struct{})
	defer close(stop)

	turn := agent.ChatRequest{UserID: userID, SessionID: sessionID, Message: req.Message}
	go func() {
		defer close(events)
		for entry, err := range h.svc.Chat(r.Context(), turn) {
			select {
			case events <- turnEvent{entry: entry, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	// A nil ticker channel blocks forever, disabling keepalives.
	var keepaliveC <-chan time.Time
	if h.cfg.SSE.KeepaliveInterval > 0 {
		keepalive := time.NewTicker(h.cfg.SSE.KeepaliveInterval)
		defer keepalive.Stop()
		keepaliveC = keepalive.C
	}

	entryCount := 0
	for {
		select {
		case <-r.Context().Done():
			slog.Info("Chat stream disconnected", "user_id", userID, "session_id", sessionID)
			return
		case <-keepaliveC:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				slog.Warn("failed to write SSE keepalive ping", "error", err, "user_id", userID)
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				h.logAssistantOutcome(userID, sessionID, reqID, entryCount, nil)
				if err := writeSSE(w, "done", `{"status":"terminated"}`); err != nil {
					slog.Warn("failed to write SSE done event", "error", err)
					return
				}
				flusher.Flush()
				return
			}
			if ev.err != nil {
				slog.Error("Chat turn failed", "error", ev.err, "user_id", userID, "session_id", sessionID)
				h.logAssistantOutcome(userID, sessionID, reqID, entryCount, ev.err)
				if writeErr := writeSSE(w, "error", ev.err.Error()); writeErr != nil {
					slog.Warn("failed to write SSE error event", "error", writeErr)
					return
				}
				flusher.Flush()
				return
			}

			data, err := json.Marshal(ev.entry)
			if err != nil {
				slog.Warn("failed to marshal chat entry", "error", err)
				if writeErr := writeSSE(w, "error", "failed to serialize entry"); writeErr != nil {
					slog.Warn("failed to write SSE serialization error", "error", writeErr)
					return
				}
				flusher.Flush()
				return
			}
			if err := writeSSE(w, "entry", string(data)); err != nil {
				slog.Warn("failed to write SSE entry event", "error", err)
				h.logAssistantOutcome(userID, sessionID, reqID, entryCount, err)
				return
			}
			flusher.Flush()
			entryCount++

			if ev.entry.Role != domain.RoleUser {
				h.log.Log(agent.ConversationLogEvent{
					UserID:     userID,
					SessionID:  sessionID,
					Channel:    "chat_http",
					Direction:  "inbound",
					EventType:  "chat_assistant_entry",
					ContentRaw: ev.entry.Content,
					Meta: map[string]any{
						"request_id": reqID,
						"entry_id":   ev.entry.ID,
						"seq":        ev.entry.Seq,
					},
				})
			}
		}
	}
}

func (h *Handler) logAssistantOutcome(userID, sessionID, requestID string, entryCount int, turnErr error) {
	errMsg := ""
	if turnErr != nil {
		errMsg = turnErr.Error()
	}
	h.log.Log(agent.ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		UserID:    userID,
		SessionID: sessionID,
		Channel:   "chat_http",
		Direction: "inbound",
		EventType: "chat_turn_complete",
		Meta: map[string]any{
			"request_id": requestID,
			"entries":    entryCount,
			"error":      errMsg,
		},
	})
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

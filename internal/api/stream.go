package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/tezansahu/career-mentor-chat/internal/domain"
	"github.com/tezansahu/career-mentor-chat/internal/identity"
)

// StreamManager tracks active WebSocket connections that mirror transcript
// entries as they are produced. One connection per user/session; a new
// connection replaces the previous one.
type StreamManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewStreamManager creates a new stream manager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Register adds a WebSocket connection for a user/session.
func (m *StreamManager) Register(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := m.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "stream replaced")
	}

	m.active[userID][sessionID] = conn
	slog.Info("Chat stream registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a WebSocket connection for a user/session.
func (m *StreamManager) Unregister(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Chat stream unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

type streamFrame struct {
	Type  string           `json:"type"`
	Entry domain.ChatEntry `json:"entry"`
}

// Broadcast sends a transcript entry to the active stream for a user/session,
// if any. Delivery is best effort; a failed write closes nothing and the SSE
// response remains the source of truth.
func (m *StreamManager) Broadcast(userID, sessionID string, entry domain.ChatEntry) {
	m.mu.RLock()
	var conn *websocket.Conn
	if sessions, ok := m.active[userID]; ok {
		conn = sessions[sessionID]
	}
	m.mu.RUnlock()

	if conn == nil {
		return
	}

	data, err := json.Marshal(streamFrame{Type: "entry", Entry: entry})
	if err != nil {
		slog.Warn("Failed to marshal stream frame", "error", err)
		return
	}
	if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		slog.Debug("Stream write failed", "error", err, "user_id", userID, "session_id", sessionID)
	}
}

// CloseSession terminates the active stream for a user/session. Connected
// tabs reconnect and reload history, which is how a reset propagates.
func (m *StreamManager) CloseSession(userID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[userID]
	if !ok {
		return
	}
	conn, ok := sessions[sessionID]
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "stream closed")
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(m.active, userID)
	}
	slog.Info("Chat stream closed", "user_id", userID, "session_id", sessionID)
}

type streamMessage struct {
	Type string `json:"type"`
}

// HandleChatStream handles GET /ws/chat. The connection receives transcript
// entries as they are appended; the only inbound messages honored are ping
// keepalives.
func (h *Handler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	slog.Info("Chat stream connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.streams.Register(userID, sessionID, ws)
	defer h.streams.Unregister(userID, sessionID, ws)

	ctx := r.Context()
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Debug("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := ws.Write(ctx, websocket.MessageText, []byte(`{"type":"pong"}`)); err != nil {
				slog.Debug("Failed to send pong", "error", err, "user_id", userID)
				return
			}
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDevelopment() {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.FrontendURL == "*" {
		return true
	}
	if origin == h.cfg.FrontendURL {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.cfg.FrontendURL)
	return false
}

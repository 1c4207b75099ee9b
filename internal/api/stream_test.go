package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/tezansahu/career-mentor-chat/internal/domain"
	"github.com/tezansahu/career-mentor-chat/internal/identity"
)

const streamTestCompletion = `{
	"id": "cmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o-mini",
	"choices": [{
		"index": 0,
		"finish_reason": "stop",
		"message": {"role": "assistant", "content": "Update your resume first. TERMINATE"}
	}]
}`

// startChatServer brings up the full router on a real listener, configures a
// session and returns the server plus the identity cookie for that session.
func startChatServer(t *testing.T) (*httptest.Server, *http.Cookie) {
	t.Helper()

	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(streamTestCompletion))
	}))
	t.Cleanup(llm.Close)

	srv := httptest.NewServer(newTestRouter(t, llm.URL))
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/session/config",
		strings.NewReader(`{"credential":"tok","model":"gpt-4o-mini"}`))
	if err != nil {
		t.Fatalf("failed to build config request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("config request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("config request returned %d", resp.StatusCode)
	}

	for _, c := range resp.Cookies() {
		if c.Name == identity.AnonCookieName {
			return srv, c
		}
	}
	t.Fatal("expected anon cookie from config request")
	return nil, nil
}

func dialChatStream(t *testing.T, ctx context.Context, srv *httptest.Server, cookie *http.Cookie) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	header := http.Header{}
	header.Set("Cookie", cookie.Name+"="+cookie.Value)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("failed to dial chat stream: %v", err)
	}
	return conn
}

func TestChatStreamAnswersPing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, cookie := startChatServer(t)
	conn := dialChatStream(t, ctx, srv, cookie)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") }()

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("failed to send ping: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read pong: %v", err)
	}
	if !strings.Contains(string(data), `"pong"`) {
		t.Errorf("expected pong reply, got %s", data)
	}
}

func TestChatStreamMirrorsTranscriptEntries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv, cookie := startChatServer(t)
	conn := dialChatStream(t, ctx, srv, cookie)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") }()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/chat",
		strings.NewReader(`{"message":"should I change jobs?"}`))
	if err != nil {
		t.Fatalf("failed to build chat request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("chat request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat request returned %d", resp.StatusCode)
	}

	// The mirror must deliver the user entry and at least one assistant entry.
	var roles []domain.Role
	for len(roles) < 2 {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("failed to read stream frame after %d entries: %v", len(roles), err)
		}
		var frame struct {
			Type  string           `json:"type"`
			Entry domain.ChatEntry `json:"entry"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("failed to unmarshal frame %s: %v", data, err)
		}
		if frame.Type != "entry" {
			t.Fatalf("unexpected frame type %q", frame.Type)
		}
		roles = append(roles, frame.Entry.Role)
		if frame.Entry.Role == domain.RoleAssistant &&
			strings.Contains(strings.ToLower(frame.Entry.Content), "terminate") {
			t.Errorf("sentinel leaked into mirrored entry: %q", frame.Entry.Content)
		}
	}

	if roles[0] != domain.RoleUser {
		t.Errorf("expected the user entry first, got %q", roles[0])
	}
	if roles[1] != domain.RoleAssistant {
		t.Errorf("expected an assistant entry second, got %q", roles[1])
	}
}

func TestChatStreamReplacedByNewConnection(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, cookie := startChatServer(t)
	first := dialChatStream(t, ctx, srv, cookie)
	defer func() { _ = first.Close(websocket.StatusNormalClosure, "test done") }()

	second := dialChatStream(t, ctx, srv, cookie)
	defer func() { _ = second.Close(websocket.StatusNormalClosure, "test done") }()

	// The first connection is closed by the server when the second registers.
	if _, _, err := first.Read(ctx); websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("expected normal closure of the replaced connection, got %v", err)
	}
}

func TestResetClosesChatStream(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, cookie := startChatServer(t)
	conn := dialChatStream(t, ctx, srv, cookie)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") }()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/reset", nil)
	if err != nil {
		t.Fatalf("failed to build reset request: %v", err)
	}
	req.AddCookie(cookie)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("reset request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset returned %d", resp.StatusCode)
	}

	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("expected the stream to be closed by reset, got %v", err)
	}
}

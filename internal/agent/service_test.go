package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tezansahu/career-mentor-chat/internal/domain"
	"github.com/tezansahu/career-mentor-chat/internal/store"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func completeConfig() domain.SessionConfig {
	return domain.SessionConfig{
		Credential: "test-token",
		Model:      "gpt-4o-mini",
	}
}

func TestServiceChatPersistsFullTurn(t *testing.T) {
	t.Parallel()

	llm, _ := newCompletionServer(t, finalCompletion)
	repo := newTestRepo(t)

	var rendered []domain.ChatEntry
	svc := NewService(repo, Options{InferenceURL: llm.URL}, func(entry domain.ChatEntry) {
		rendered = append(rendered, entry)
	})

	if err := svc.Configure("anon_1", "default", completeConfig()); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	var entries []*domain.ChatEntry
	req := ChatRequest{UserID: "anon_1", SessionID: "default", Message: "what should I learn next?"}
	for entry, err := range svc.Chat(context.Background(), req) {
		if err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
		entries = append(entries, entry)
	}

	if len(entries) < 2 {
		t.Fatalf("expected user entry plus at least one assistant entry, got %d", len(entries))
	}
	if entries[0].Role != domain.RoleUser || entries[0].Content != "what should I learn next?" {
		t.Errorf("unexpected user entry: %+v", entries[0])
	}
	for _, entry := range entries[1:] {
		if entry.Role != domain.RoleAssistant {
			t.Errorf("expected assistant entry, got %+v", entry)
		}
		if strings.Contains(strings.ToLower(entry.Content), "terminate") {
			t.Errorf("sentinel leaked into transcript: %q", entry.Content)
		}
	}

	history, err := svc.History(context.Background(), "anon_1", "default")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != len(entries) {
		t.Fatalf("expected %d persisted entries, got %d", len(entries), len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Seq <= history[i-1].Seq {
			t.Errorf("history out of order at %d: %d then %d", i, history[i-1].Seq, history[i].Seq)
		}
	}

	if len(rendered) != len(entries) {
		t.Errorf("expected render callback for every entry: got %d, want %d", len(rendered), len(entries))
	}
}

func TestServiceChatRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestRepo(t), Options{}, nil)
	for _, err := range svc.Chat(context.Background(), ChatRequest{UserID: "anon_1", SessionID: "default", Message: "   "}) {
		if !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("expected ErrEmptyMessage, got %v", err)
		}
		return
	}
	t.Fatal("expected the stream to yield an error")
}

func TestServiceChatRequiresConfiguration(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestRepo(t), Options{}, nil)
	for _, err := range svc.Chat(context.Background(), ChatRequest{UserID: "anon_1", SessionID: "default", Message: "hello"}) {
		if !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("expected ErrNotConfigured, got %v", err)
		}
		return
	}
	t.Fatal("expected the stream to yield an error")
}

func TestServiceConfigureRejectsUnknownModel(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestRepo(t), Options{}, nil)
	err := svc.Configure("anon_1", "default", domain.SessionConfig{Credential: "tok", Model: "gpt-99"})
	if !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestServiceResetIsIdempotent(t *testing.T) {
	t.Parallel()

	llm, _ := newCompletionServer(t, finalCompletion)
	repo := newTestRepo(t)
	svc := NewService(repo, Options{InferenceURL: llm.URL}, nil)

	if err := svc.Configure("anon_1", "default", completeConfig()); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	req := ChatRequest{UserID: "anon_1", SessionID: "default", Message: "hi"}
	for _, err := range svc.Chat(context.Background(), req) {
		if err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
	}

	if err := svc.Reset(context.Background(), "anon_1", "default"); err != nil {
		t.Fatalf("first Reset failed: %v", err)
	}
	if err := svc.Reset(context.Background(), "anon_1", "default"); err != nil {
		t.Fatalf("second Reset failed: %v", err)
	}

	history, err := svc.History(context.Background(), "anon_1", "default")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty transcript after reset, got %d entries", len(history))
	}

	// Configuration survives the reset.
	if cfg := svc.Config("anon_1", "default"); !cfg.Complete() {
		t.Error("expected configuration to survive reset")
	}
}

func TestServiceSessionsAreIsolated(t *testing.T) {
	t.Parallel()

	llm, _ := newCompletionServer(t, finalCompletion, finalCompletion)
	repo := newTestRepo(t)
	svc := NewService(repo, Options{InferenceURL: llm.URL}, nil)

	for _, sid := range []string{"tab-a", "tab-b"} {
		if err := svc.Configure("anon_1", sid, completeConfig()); err != nil {
			t.Fatalf("Configure(%s) failed: %v", sid, err)
		}
		req := ChatRequest{UserID: "anon_1", SessionID: sid, Message: "hello from " + sid}
		for _, err := range svc.Chat(context.Background(), req) {
			if err != nil {
				t.Fatalf("Chat(%s) failed: %v", sid, err)
			}
		}
	}

	if err := svc.Reset(context.Background(), "anon_1", "tab-a"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	historyA, err := svc.History(context.Background(), "anon_1", "tab-a")
	if err != nil {
		t.Fatalf("History(tab-a) failed: %v", err)
	}
	if len(historyA) != 0 {
		t.Errorf("expected tab-a to be empty after reset, got %d entries", len(historyA))
	}

	historyB, err := svc.History(context.Background(), "anon_1", "tab-b")
	if err != nil {
		t.Fatalf("History(tab-b) failed: %v", err)
	}
	if len(historyB) == 0 {
		t.Error("expected tab-b transcript to survive tab-a reset")
	}
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tezansahu/career-mentor-chat/internal/domain"
	"github.com/tezansahu/career-mentor-chat/internal/store"
)

var (
	// ErrNotConfigured is returned while the session lacks a credential or a
	// model selection; no agent is built or invoked in that state.
	ErrNotConfigured = errors.New("credential and model must be configured")
	// ErrEmptyMessage rejects blank user input with no state change.
	ErrEmptyMessage = errors.New("message is required")
	// ErrUnknownModel rejects models outside the fixed menu.
	ErrUnknownModel = errors.New("unknown model")
)

// ChatRequest is one user turn.
type ChatRequest struct {
	UserID    string
	SessionID string
	Message   string
}

// RenderFunc receives every chat entry the moment it is appended, for
// immediate display (WebSocket fan-out to connected tabs).
type RenderFunc func(entry domain.ChatEntry)

// Service owns all chat sessions. Each session holds its configuration, its
// agent team and a mutex guaranteeing one turn in flight; transcripts are
// persisted through the repository.
type Service struct {
	repo   store.Repository
	opts   Options
	render RenderFunc

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu   sync.Mutex
	cfg  domain.SessionConfig
	team *Team
}

// NewService creates the session orchestrator. render may be nil.
func NewService(repo store.Repository, opts Options, render RenderFunc) *Service {
	return &Service{
		repo:     repo,
		opts:     opts,
		render:   render,
		sessions: make(map[string]*session),
	}
}

func sessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// ensure returns the session for (userID, sessionID), creating it lazily.
func (s *Service) ensure(userID, sessionID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(userID, sessionID)
	sess, ok := s.sessions[key]
	if !ok {
		sess = &session{}
		s.sessions[key] = sess
	}
	return sess
}

// Configure replaces a session's configuration. If a team was already built,
// it is rebuilt from the new configuration so model choice and tool wiring
// always track the latest config.
func (s *Service) Configure(userID, sessionID string, cfg domain.SessionConfig) error {
	if cfg.Model != "" && !domain.IsKnownModel(cfg.Model) {
		return fmt.Errorf("%w: %q", ErrUnknownModel, cfg.Model)
	}

	sess := s.ensure(userID, sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.cfg = cfg
	if sess.team != nil {
		if cfg.Complete() {
			sess.team = BuildTeam(cfg, s.opts)
		} else {
			sess.team = nil
		}
	}

	slog.Info("Session configured",
		"user_id", userID,
		"session_id", sessionID,
		"model", cfg.Model,
		"credential_set", cfg.Credential != "",
		"search_key_set", cfg.SearchAPIKey != "",
	)
	return nil
}

// Config returns a session's current configuration.
func (s *Service) Config(userID, sessionID string) domain.SessionConfig {
	sess := s.ensure(userID, sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.cfg
}

// History returns the persisted transcript in display order.
func (s *Service) History(ctx context.Context, userID, sessionID string) ([]domain.ChatEntry, error) {
	return s.repo.ListEntries(ctx, userID, sessionID)
}

// Chat runs one conversation turn to completion, yielding each transcript
// entry as it is appended: first the user's entry, then every entry the
// response tracker mirrors from the agent's event stream. The call blocks the
// consumer until the team's termination condition matches; a fresh
// cancellation context governs the turn.
func (s *Service) Chat(ctx context.Context, req ChatRequest) iter.Seq2[*domain.ChatEntry, error] {
	return func(yield func(*domain.ChatEntry, error) bool) {
		message := strings.TrimSpace(req.Message)
		if message == "" {
			yield(nil, ErrEmptyMessage)
			return
		}

		sess := s.ensure(req.UserID, req.SessionID)
		sess.mu.Lock()
		defer sess.mu.Unlock()

		if !sess.cfg.Complete() {
			yield(nil, ErrNotConfigured)
			return
		}
		if sess.team == nil {
			sess.team = BuildTeam(sess.cfg, s.opts)
		}

		turnCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		userEntry, err := s.appendEntry(turnCtx, req.UserID, req.SessionID, domain.RoleUser, message)
		if err != nil {
			yield(nil, err)
			return
		}
		if !yield(userEntry, nil) {
			return
		}

		var pending []*domain.ChatEntry
		var recordErr error
		tracker := NewTracker(func(content string) {
			if recordErr != nil {
				return
			}
			entry, err := s.appendEntry(turnCtx, req.UserID, req.SessionID, domain.RoleAssistant, content)
			if err != nil {
				recordErr = err
				return
			}
			pending = append(pending, entry)
		})

		for _, err := range tracker.Intercept(sess.team.Run(turnCtx, message)) {
			if err != nil {
				yield(nil, err)
				return
			}
			if recordErr != nil {
				yield(nil, recordErr)
				return
			}
			for _, entry := range pending {
				if !yield(entry, nil) {
					return
				}
			}
			pending = pending[:0]
		}
	}
}

// Reset clears the displayed transcript and rebuilds the agent team from the
// current configuration, so agent memory and tool wiring start fresh.
// Resetting an already-empty session is a no-op with the same outcome.
func (s *Service) Reset(ctx context.Context, userID, sessionID string) error {
	sess := s.ensure(userID, sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.repo.DeleteEntries(ctx, userID, sessionID); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}

	if sess.cfg.Complete() {
		sess.team = BuildTeam(sess.cfg, s.opts)
	} else {
		sess.team = nil
	}

	slog.Info("Session reset", "user_id", userID, "session_id", sessionID)
	return nil
}

func (s *Service) appendEntry(ctx context.Context, userID, sessionID string, role domain.Role, content string) (*domain.ChatEntry, error) {
	entry := domain.ChatEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.AppendEntry(ctx, &entry); err != nil {
		return nil, fmt.Errorf("append chat entry: %w", err)
	}
	if s.render != nil {
		s.render(entry)
	}
	return &entry, nil
}

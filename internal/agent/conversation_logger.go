package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ConversationLogEvent is one NDJSON record of conversation activity.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogConfig controls conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// ConversationLogger records conversation events for offline inspection.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

// NewNoopConversationLogger returns a logger that discards everything.
func NewNoopConversationLogger() ConversationLogger {
	return noopConversationLogger{}
}

type fileConversationLogger struct {
	cfg    ConversationLogConfig
	logger *slog.Logger
	queue  chan ConversationLogEvent
	done   chan struct{}

	mu       sync.Mutex
	sessions map[string]*os.File
	global   *os.File
}

// NewConversationLogger creates an async NDJSON logger that writes one file
// per user/session under cfg.Dir, plus an optional global file. Events are
// queued and written by a background goroutine; when the queue is full,
// events are dropped rather than blocking the chat path.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	l := &fileConversationLogger{
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan ConversationLogEvent, cfg.QueueSize),
		done:     make(chan struct{}),
		sessions: make(map[string]*os.File),
	}

	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create conversation log dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	go l.drain()
	return l, nil
}

// Log enqueues an event, filling in timestamp and cleaned content if missing.
func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	select {
	case l.queue <- event:
	default:
		l.logger.Warn("conversation log queue full, dropping event",
			"user_id", event.UserID,
			"event_type", event.EventType,
		)
	}
}

func (l *fileConversationLogger) drain() {
	for event := range l.queue {
		l.write(event)
	}
	close(l.done)
}

func (l *fileConversationLogger) write(event ConversationLogEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("failed to marshal conversation log event", "error", err)
		return
	}
	data = append(data, '\n')

	if l.cfg.Enabled {
		f, err := l.sessionFile(event.UserID, event.SessionID)
		if err != nil {
			l.logger.Warn("failed to open conversation log file", "error", err)
		} else if _, err := f.Write(data); err != nil {
			l.logger.Warn("failed to write conversation log", "error", err)
		}
	}
	if l.global != nil {
		if _, err := l.global.Write(data); err != nil {
			l.logger.Warn("failed to write global conversation log", "error", err)
		}
	}
}

func (l *fileConversationLogger) sessionFile(userID, sessionID string) (*os.File, error) {
	if userID == "" {
		userID = "unknown"
	}
	if sessionID == "" {
		sessionID = "default"
	}

	key := userID + ":" + sessionID
	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.sessions[key]; ok {
		return f, nil
	}

	dir := filepath.Join(l.cfg.Dir, filepath.Base(userID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, filepath.Base(sessionID)+".ndjson"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	l.sessions[key] = f
	return f, nil
}

// Close flushes the queue and closes all open files.
func (l *fileConversationLogger) Close() error {
	close(l.queue)
	<-l.done

	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, f := range l.sessions {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.sessions = make(map[string]*os.File)
	if l.global != nil {
		if err := l.global.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		l.global = nil
	}
	return firstErr
}

var ansiEscapePattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// cleanForReadability strips ANSI escape sequences and control noise so the
// logged content is readable in plain text.
func cleanForReadability(s string) string {
	s = ansiEscapePattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimSpace(s)
}

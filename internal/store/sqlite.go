package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tezansahu/career-mentor-chat/internal/domain"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	entryMu sync.Mutex // serializes append/delete to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS chat_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_entries_order ON chat_entries(user_id, session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_chat_entries_created ON chat_entries(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AppendEntry persists a chat entry, assigning the next sequence number
// within its transcript.
func (s *SQLiteStore) AppendEntry(ctx context.Context, entry *domain.ChatEntry) error {
	s.entryMu.Lock()
	defer s.entryMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("failed to roll back append transaction", "error", rbErr)
		}
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_entries WHERE user_id = ? AND session_id = ?`,
		entry.UserID, entry.SessionID,
	)
	if err := row.Scan(&entry.Seq); err != nil {
		return fmt.Errorf("next sequence number: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chat_entries (id, user_id, session_id, seq, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.SessionID, entry.Seq,
		string(entry.Role), entry.Content, entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert chat entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// ListEntries returns a transcript's entries in append order.
func (s *SQLiteStore) ListEntries(ctx context.Context, userID, sessionID string) ([]domain.ChatEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, seq, role, content, created_at
		 FROM chat_entries WHERE user_id = ? AND session_id = ? ORDER BY seq ASC`,
		userID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chat entries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close chat entry rows", "error", closeErr)
		}
	}()

	var entries []domain.ChatEntry
	for rows.Next() {
		var entry domain.ChatEntry
		var role string
		var createdAt int64
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.SessionID, &entry.Seq, &role, &entry.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat entry: %w", err)
		}
		entry.Role = domain.Role(role)
		entry.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat entries: %w", err)
	}
	return entries, nil
}

// DeleteEntries removes a transcript, retrying on SQLite concurrency errors.
func (s *SQLiteStore) DeleteEntries(ctx context.Context, userID, sessionID string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.deleteEntriesOnce(ctx, userID, sessionID)
		if err == nil {
			return nil
		}

		if isSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("DeleteEntries hit SQLite conflict, retrying",
				"user_id", userID,
				"session_id", sessionID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("delete transcript for %s/%s after %d attempts: %w", userID, sessionID, i+1, err)
	}

	return nil
}

func (s *SQLiteStore) deleteEntriesOnce(ctx context.Context, userID, sessionID string) error {
	s.entryMu.Lock()
	defer s.entryMu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_entries WHERE user_id = ? AND session_id = ?`,
		userID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("delete chat entries: %w", err)
	}
	return nil
}

// CleanupExpiredTranscripts removes transcripts whose newest entry is older
// than ttl.
func (s *SQLiteStore) CleanupExpiredTranscripts(ctx context.Context, ttl time.Duration) (int64, error) {
	s.entryMu.Lock()
	defer s.entryMu.Unlock()

	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM chat_entries WHERE (user_id, session_id) IN (
			SELECT user_id, session_id FROM chat_entries
			GROUP BY user_id, session_id
			HAVING MAX(created_at) < ?
		)`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired transcripts: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/tezansahu/career-mentor-chat/internal/domain"
)

// Repository defines the interface for persisting chat transcripts.
// Only displayed transcript entries are persisted; session secrets
// (credentials, API keys) never reach the store.
type Repository interface {
	// AppendEntry persists a chat entry, assigning it the next sequence
	// number within its (user, session) transcript.
	AppendEntry(ctx context.Context, entry *domain.ChatEntry) error

	// ListEntries returns a transcript's entries in append order.
	ListEntries(ctx context.Context, userID, sessionID string) ([]domain.ChatEntry, error)

	// DeleteEntries removes a transcript. Deleting an empty or missing
	// transcript is not an error (reset is idempotent).
	DeleteEntries(ctx context.Context, userID, sessionID string) error

	// CleanupExpiredTranscripts removes transcripts whose newest entry is
	// older than ttl, returning the number of entries deleted.
	CleanupExpiredTranscripts(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

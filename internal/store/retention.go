package store

import (
	"context"
	"log/slog"
	"time"
)

const retentionSweepInterval = time.Hour

// StartRetentionWorker runs a background goroutine that periodically prunes
// transcripts whose newest entry is older than ttl.
func StartRetentionWorker(ctx context.Context, repo Repository, ttl time.Duration) {
	ticker := time.NewTicker(retentionSweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", retentionSweepInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				deleted, err := repo.CleanupExpiredTranscripts(ctx, ttl)
				if err != nil {
					slog.Error("Retention worker failed to prune transcripts", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("Retention worker pruned stale transcripts", "entries_deleted", deleted)
				}
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// AuditPruner deletes audit entries older than a retention period.
type AuditPruner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

type AuditCleanupWorker struct {
	pruner          AuditPruner
	retentionDays   int
	cleanupInterval time.Duration
}

func NewAuditCleanupWorker(pruner AuditPruner, retentionDays int, cleanupInterval time.Duration) *AuditCleanupWorker {
	return &AuditCleanupWorker{
		pruner:          pruner,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
	}
}

func (w *AuditCleanupWorker) Start(ctx context.Context) {
	if w.retentionDays <= 0 {
		log.Info().Msg("audit retention disabled")
		return
	}

	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil {
				log.Error().Err(err).Msg("error cleaning up audit logs")
			}
		}
	}
}

func (w *AuditCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	retention := time.Duration(w.retentionDays) * 24 * time.Hour

	rows, err := w.pruner.Cleanup(ctx, retention)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	log.Info().Int64("rows", rows).Int("retention_days", w.retentionDays).Msg("cleaned up audit logs")
	return rows, nil
}

package sync

import (
	"context"
	"fmt"

	"notion-content-sync/internal/models"
	"notion-content-sync/internal/telemetry"
)

// Enqueue registers a sync job for a page. Safe to call repeatedly with the
// same dedupe key: the existing job is returned unchanged and nothing is
// inserted.
func (s *Service) Enqueue(ctx context.Context, p EnqueueParams) (models.SyncJob, error) {
	if p.PageID == "" {
		return models.SyncJob{}, validationErr("pageId is required")
	}
	if p.DedupeKey == "" {
		return models.SyncJob{}, validationErr("dedupeKey is required")
	}
	if p.TriggerType == "" {
		p.TriggerType = models.TriggerManual
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = models.DefaultMaxAttempts
	}

	job, existing, err := s.jobs.Enqueue(ctx, p)
	if err != nil {
		return models.SyncJob{}, internalErr("enqueue sync job", err)
	}
	if existing {
		s.log.Debug().Str("job_id", job.ID).Str("dedupe_key", p.DedupeKey).
			Msg("enqueue deduplicated to existing job")
		return job, nil
	}

	s.log.Info().Str("job_id", job.ID).Str("page_id", p.PageID).
		Str("trigger", p.TriggerType).Msg("sync job enqueued")
	telemetry.JobsEnqueued.Inc()
	s.notifyIndicator(ctx, p.PageID, IndicatorIdle)
	return job, nil
}

// ManualDedupeKey builds a one-shot dedupe key for operator-initiated
// triggers, scoped by an idempotency token chosen by the caller.
func ManualDedupeKey(pageID, token string) string {
	return fmt.Sprintf("manual:%s:%s", pageID, token)
}

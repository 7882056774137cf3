package sync

import (
	"context"

	"notion-content-sync/internal/models"
	"notion-content-sync/internal/telemetry"
)

// Retry force-requeues a job regardless of how many attempts it already
// burned: status back to pending, eligible immediately, error and lock
// cleared. The attempt counter is kept as history.
func (s *Service) Retry(ctx context.Context, jobID string) (models.SyncJob, error) {
	if jobID == "" {
		return models.SyncJob{}, validationErr("jobId is required")
	}
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return models.SyncJob{}, internalErr("find job", err)
	}
	if job == nil {
		return models.SyncJob{}, notFoundErr(jobID)
	}

	due := s.now()
	patch := StatusPatch{
		NextRunAt:  &due,
		SetNextRun: true,
		SetError:   true,
		ClearLock:  true,
	}
	if err := s.jobs.MarkStatus(ctx, job.ID, models.StatusPending, patch); err != nil {
		return models.SyncJob{}, internalErr("requeue job", err)
	}
	telemetry.JobsRetried.Inc()
	s.log.Info().Str("job_id", job.ID).Str("page_id", job.PageID).
		Int("attempt", job.Attempt).Msg("sync job manually retried")

	s.notifyIndicator(ctx, job.PageID, IndicatorIdle)

	job.Status = models.StatusPending
	job.NextRunAt = &due
	job.ErrorMessage = nil
	job.LockedAt = nil
	job.LockedBy = nil
	return *job, nil
}

package sync

import (
	"context"
	"fmt"
	"time"

	"notion-content-sync/internal/models"
	"notion-content-sync/internal/notion"
	"notion-content-sync/internal/schema"
	"notion-content-sync/internal/telemetry"
)

// Outcome tags the result of one ProcessNext invocation.
type Outcome string

const (
	OutcomeIdle      Outcome = "idle"      // nothing eligible to claim
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// ProcessResult reports what a worker pass did.
type ProcessResult struct {
	Outcome        Outcome
	Job            *models.SyncJob
	FailureMessage string
}

// ProcessNext claims at most one eligible job and runs the synchronization.
// The claim is a single atomic select-and-transition, so concurrent callers
// never double-process; losers observe OutcomeIdle. Failures are recovered
// into the failed state with bounded backoff, never dropped.
func (s *Service) ProcessNext(ctx context.Context, lockID string) (ProcessResult, error) {
	job, err := s.jobs.ClaimNext(ctx, lockID)
	if err != nil {
		return ProcessResult{}, internalErr("claim next job", err)
	}
	if job == nil {
		return ProcessResult{Outcome: OutcomeIdle}, nil
	}

	log := s.log.With().Str("job_id", job.ID).Str("page_id", job.PageID).
		Str("locked_by", lockID).Logger()
	log.Info().Int("attempt", job.Attempt).Msg("processing sync job")

	attempt := job.Attempt + 1
	if syncErr := s.syncPage(ctx, job); syncErr != nil {
		msg := syncErr.Error()
		var nextRun *time.Time
		if attempt < job.MaxAttempts {
			due := s.now().Add(backoffDelay(job.Attempt))
			nextRun = &due
		}
		patch := StatusPatch{
			Attempt:      &attempt,
			NextRunAt:    nextRun,
			SetNextRun:   true,
			ErrorMessage: &msg,
			SetError:     true,
			ClearLock:    true,
		}
		if err := s.jobs.MarkStatus(ctx, job.ID, models.StatusFailed, patch); err != nil {
			return ProcessResult{}, internalErr("mark job failed", err)
		}
		telemetry.JobsFailed.Inc()
		log.Warn().Err(syncErr).Int("attempt", attempt).
			Bool("retryable", nextRun != nil).Msg("sync job failed")
		job.Status = models.StatusFailed
		job.Attempt = attempt
		job.NextRunAt = nextRun
		job.ErrorMessage = &msg
		return ProcessResult{Outcome: OutcomeFailed, Job: job, FailureMessage: msg}, nil
	}

	patch := StatusPatch{
		Attempt:    &attempt,
		SetNextRun: true,
		SetError:   true,
		ClearLock:  true,
	}
	if err := s.jobs.MarkStatus(ctx, job.ID, models.StatusSucceeded, patch); err != nil {
		return ProcessResult{}, internalErr("mark job succeeded", err)
	}
	telemetry.JobsSucceeded.Inc()
	log.Info().Int("attempt", attempt).Msg("sync job succeeded")
	job.Status = models.StatusSucceeded
	job.Attempt = attempt
	job.NextRunAt = nil
	job.ErrorMessage = nil
	return ProcessResult{Outcome: OutcomeSucceeded, Job: job}, nil
}

// syncPage fetches the live page, maps its fields, and upserts the post.
func (s *Service) syncPage(ctx context.Context, job *models.SyncJob) error {
	page, err := s.client.RetrievePage(ctx, job.PageID)
	if err != nil {
		return providerErr("retrieve page", err)
	}

	mapping, _, err := s.mappings.GetMapping(ctx, s.desc.Model)
	if err != nil {
		return internalErr("load field mapping", err)
	}

	fields := schema.MapPageFields(s.desc.Expectations, s.desc.Builtins, mapping, page)
	post, err := s.buildPost(page, fields)
	if err != nil {
		return err
	}

	if s.mirror != nil && post.CoverURL != nil {
		if stored, err := s.mirror.MirrorCover(ctx, page.ID, *post.CoverURL); err != nil {
			s.log.Warn().Err(err).Str("page_id", page.ID).Msg("cover mirror failed")
		} else {
			post.CoverURL = &stored
		}
	}

	if err := s.content.UpsertByExternalID(ctx, post); err != nil {
		return internalErr("upsert post", err)
	}
	return nil
}

// buildPost turns the mapped fields into the persisted entity. Title and
// slug are hard requirements; anything else degrades to empty.
func (s *Service) buildPost(page *notion.Page, fields map[string]any) (*models.Post, error) {
	title, _ := fields["post.title"].(string)
	if title == "" {
		return nil, fmt.Errorf("page %s has no title", page.ID)
	}
	slug, _ := fields["post.slug"].(string)
	if slug == "" {
		return nil, fmt.Errorf("page %s has no slug", page.ID)
	}

	status, _ := fields["post.status"].(string)
	post := &models.Post{
		ExternalID:   page.ID,
		Title:        title,
		Slug:         slug,
		Excerpt:      optString(fields["post.excerpt"]),
		Author:       optString(fields["post.author"]),
		CanonicalURL: optString(fields["post.canonicalUrl"]),
		Published:    status == s.publishedOption,
		SyncedAt:     s.now().UTC(),
	}

	if tags, ok := fields["post.tags"].([]string); ok {
		post.Tags = tags
	} else {
		post.Tags = []string{}
	}

	if span, ok := fields["post.publishedAt"].(schema.DateSpan); ok && span.Start != nil {
		post.PublishedAt = parseDate(*span.Start)
	}
	if post.PublishedAt == nil {
		// Fall back to page creation time for posts without an explicit date.
		if created, ok := fields["post.createdTime"].(string); ok {
			post.PublishedAt = parseDate(created)
		}
	}

	if icon, ok := fields["post.icon"].(schema.IconValue); ok {
		post.IconEmoji = icon.Emoji
		post.IconURL = icon.URL
	}
	post.CoverURL = optString(fields["post.cover"])
	if edited, ok := fields["post.lastEditedTime"].(string); ok {
		post.LastEditedTime = &edited
	}
	return post, nil
}

func optString(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func parseDate(raw string) *time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

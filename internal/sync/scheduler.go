package sync

import (
	"context"
	"fmt"
	"time"

	"notion-content-sync/internal/models"
)

// ScheduleReport summarizes one batch enqueue pass.
type ScheduleReport struct {
	TotalPublished int      `json:"totalPublished"`
	Enqueued       int      `json:"enqueued"`
	Skipped        int      `json:"skipped"`
	Errors         []string `json:"errors"`
}

// scheduledDedupeKey yields one key per page per UTC-hour slot, so a
// recurring invoker enqueues each published page at most once an hour.
func scheduledDedupeKey(pageID string, t time.Time) string {
	return fmt.Sprintf("scheduled:%s:%s", pageID, t.UTC().Format("2006010215"))
}

// ScheduleAll enqueues a sync job for every published post, deduplicated
// per UTC-hour slot. Individual enqueue failures are collected, not fatal:
// one bad page must not starve the rest of the batch.
func (s *Service) ScheduleAll(ctx context.Context) (ScheduleReport, error) {
	report := ScheduleReport{Errors: []string{}}

	posts, err := s.content.ListPublished(ctx)
	if err != nil {
		return report, internalErr("list published posts", err)
	}
	report.TotalPublished = len(posts)
	if len(posts) == 0 {
		return report, nil
	}

	now := s.now()
	keys := make([]string, 0, len(posts))
	keyByPage := make(map[string]string, len(posts))
	for _, p := range posts {
		key := scheduledDedupeKey(p.ExternalID, now)
		keys = append(keys, key)
		keyByPage[p.ExternalID] = key
	}

	existing, err := s.jobs.FindByDedupeKeys(ctx, keys)
	if err != nil {
		return report, internalErr("look up scheduled jobs", err)
	}

	for _, p := range posts {
		key := keyByPage[p.ExternalID]
		if _, ok := existing[key]; ok {
			report.Skipped++
			continue
		}
		_, err := s.Enqueue(ctx, EnqueueParams{
			PageID:      p.ExternalID,
			TriggerType: models.TriggerScheduled,
			DedupeKey:   key,
			Payload:     map[string]any{"slug": p.Slug},
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("page %s: %v", p.ExternalID, err))
			continue
		}
		report.Enqueued++
	}

	s.log.Info().Int("total", report.TotalPublished).Int("enqueued", report.Enqueued).
		Int("skipped", report.Skipped).Int("errors", len(report.Errors)).
		Msg("scheduled sync batch complete")
	return report, nil
}

package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notion-content-sync/internal/models"
)

func TestProcessNext_NoEligibleJob(t *testing.T) {
	h := newHarness()

	result, err := h.svc.ProcessNext(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdle, result.Outcome)
	assert.Nil(t, result.Job)
}

func TestProcessNext_Success(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.client.pages["page-1"] = goodPage("page-1")

	_, err := h.svc.Enqueue(ctx, EnqueueParams{PageID: "page-1", DedupeKey: "k"})
	require.NoError(t, err)

	result, err := h.svc.ProcessNext(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
	require.NotNil(t, result.Job)
	assert.Equal(t, models.StatusSucceeded, result.Job.Status)
	assert.Equal(t, 1, result.Job.Attempt)
	assert.Nil(t, result.Job.NextRunAt)
	assert.Nil(t, result.Job.ErrorMessage)

	stored, err := h.jobs.FindByID(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, stored.Status)
	assert.Nil(t, stored.LockedAt)
	assert.Nil(t, stored.LockedBy)

	post, err := h.content.FindByExternalID(ctx, "page-1")
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "A Post", post.Title)
	assert.Equal(t, "a-post", post.Slug)
	assert.True(t, post.Published)
	assert.Equal(t, []string{"go"}, post.Tags)
	require.NotNil(t, post.PublishedAt, "published date falls back to page creation time")
	assert.Equal(t, 2024, post.PublishedAt.Year())
}

func TestProcessNext_FailureSchedulesBackoff(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.client.pageErr = errBoom

	job, err := h.svc.Enqueue(ctx, EnqueueParams{PageID: "page-1", DedupeKey: "k"})
	require.NoError(t, err)

	result, err := h.svc.ProcessNext(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)

	stored, err := h.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.Attempt)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "retrieve page")
	require.NotNil(t, stored.NextRunAt, "first failure must schedule a retry")
	assert.Equal(t, h.now.Add(time.Second), *stored.NextRunAt)
	assert.Nil(t, stored.LockedAt)
}

func TestProcessNext_FailureAtMaxAttemptsStopsRetrying(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.client.pageErr = errBoom

	job, err := h.svc.Enqueue(ctx, EnqueueParams{PageID: "page-1", DedupeKey: "k", MaxAttempts: 2})
	require.NoError(t, err)

	// Attempt 1: failed, retry scheduled.
	_, err = h.svc.ProcessNext(ctx, "worker-1")
	require.NoError(t, err)
	stored, _ := h.jobs.FindByID(ctx, job.ID)
	require.NotNil(t, stored.NextRunAt)

	// Make the retry due and burn the final attempt.
	past := h.now.Add(-time.Minute)
	require.NoError(t, h.jobs.MarkStatus(ctx, job.ID, models.StatusFailed, StatusPatch{
		NextRunAt: &past, SetNextRun: true,
	}))
	_, err = h.svc.ProcessNext(ctx, "worker-1")
	require.NoError(t, err)

	stored, _ = h.jobs.FindByID(ctx, job.ID)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, 2, stored.Attempt)
	assert.Nil(t, stored.NextRunAt, "attempt ceiling reached, no automatic retry")
	assert.True(t, stored.Terminal())
}

func TestProcessNext_FailedJobRemainsQueryable(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.client.pageErr = errBoom

	job, err := h.svc.Enqueue(ctx, EnqueueParams{PageID: "page-1", DedupeKey: "k", MaxAttempts: 1})
	require.NoError(t, err)
	_, err = h.svc.ProcessNext(ctx, "worker-1")
	require.NoError(t, err)

	stored, err := h.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "failed jobs are never deleted")
}

func TestProcessNext_ClaimExclusivity(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.client.pages["page-1"] = goodPage("page-1")

	_, err := h.svc.Enqueue(ctx, EnqueueParams{PageID: "page-1", DedupeKey: "k"})
	require.NoError(t, err)

	var wg gosync.WaitGroup
	results := make([]ProcessResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := h.svc.ProcessNext(ctx, "worker")
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	var processed, idle int
	for _, r := range results {
		switch r.Outcome {
		case OutcomeSucceeded:
			processed++
		case OutcomeIdle:
			idle++
		}
	}
	assert.Equal(t, 1, processed, "exactly one worker claims the job")
	assert.Equal(t, 1, idle, "the loser observes a no-op")
	assert.Equal(t, 1, h.content.upserts)
}

func TestProcessNext_MissingSlugFailsJob(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	page := goodPage("page-1")
	delete(page.Properties, "Slug")
	h.client.pages["page-1"] = page

	job, err := h.svc.Enqueue(ctx, EnqueueParams{PageID: "page-1", DedupeKey: "k"})
	require.NoError(t, err)

	result, err := h.svc.ProcessNext(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)

	stored, _ := h.jobs.FindByID(ctx, job.ID)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "slug")
}

func TestBackoffDelay(t *testing.T) {
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for prior, expected := range want {
		assert.Equal(t, expected, backoffDelay(prior), "prior attempts %d", prior)
	}
	assert.Equal(t, 60*time.Second, backoffDelay(6))
	assert.Equal(t, 60*time.Second, backoffDelay(50), "cap holds for large attempt counts")
	assert.Equal(t, time.Second, backoffDelay(-1))
}

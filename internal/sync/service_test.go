package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"notion-content-sync/internal/models"
	"notion-content-sync/internal/notion"
	"notion-content-sync/internal/schema"
)

// fakeJobRepo is an in-memory JobRepository with the same atomicity
// guarantees the Postgres implementation provides.
type fakeJobRepo struct {
	mu       gosync.Mutex
	jobs     map[string]*models.SyncJob
	byDedupe map[string]string
	seq      int

	enqueueErrFor map[string]error // pageID -> forced error
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{
		jobs:     map[string]*models.SyncJob{},
		byDedupe: map[string]string{},
	}
}

func (r *fakeJobRepo) Enqueue(_ context.Context, p EnqueueParams) (models.SyncJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enqueueErrFor[p.PageID]; err != nil {
		return models.SyncJob{}, false, err
	}
	if id, ok := r.byDedupe[p.DedupeKey]; ok {
		return *r.jobs[id], true, nil
	}
	r.seq++
	now := time.Now().UTC()
	job := &models.SyncJob{
		ID:          uuid.NewString(),
		PageID:      p.PageID,
		TriggerType: p.TriggerType,
		Status:      models.StatusPending,
		MaxAttempts: p.MaxAttempts,
		Payload:     p.Payload,
		DedupeKey:   p.DedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.jobs[job.ID] = job
	r.byDedupe[p.DedupeKey] = job.ID
	return *job, false, nil
}

func (r *fakeJobRepo) ClaimNext(_ context.Context, lockID string) (*models.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var oldest *models.SyncJob
	for _, j := range r.jobs {
		eligible := (j.Status == models.StatusPending && (j.NextRunAt == nil || !j.NextRunAt.After(now))) ||
			(j.Status == models.StatusFailed && j.NextRunAt != nil && !j.NextRunAt.After(now))
		if !eligible {
			continue
		}
		if oldest == nil || j.UpdatedAt.Before(oldest.UpdatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = models.StatusProcessing
	oldest.LockedAt = &now
	oldest.LockedBy = &lockID
	oldest.UpdatedAt = now
	claimed := *oldest
	return &claimed, nil
}

func (r *fakeJobRepo) MarkStatus(_ context.Context, id, status string, patch StatusPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = status
	if patch.Attempt != nil {
		job.Attempt = *patch.Attempt
	}
	if patch.SetNextRun {
		job.NextRunAt = patch.NextRunAt
	}
	if patch.SetError {
		job.ErrorMessage = patch.ErrorMessage
	}
	if patch.ClearLock {
		job.LockedAt = nil
		job.LockedBy = nil
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeJobRepo) FindByID(_ context.Context, id string) (*models.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) FindByDedupeKeys(_ context.Context, keys []string) (map[string]models.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]models.SyncJob{}
	for _, k := range keys {
		if id, ok := r.byDedupe[k]; ok {
			out[k] = *r.jobs[id]
		}
	}
	return out, nil
}

func (r *fakeJobRepo) ListRecent(_ context.Context, limit int) ([]models.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []models.SyncJob
	for _, j := range r.jobs {
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

func (r *fakeJobRepo) ReclaimStale(_ context.Context, olderThan time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	now := time.Now().UTC()
	for _, j := range r.jobs {
		if j.Status == models.StatusProcessing && j.LockedAt != nil && j.LockedAt.Before(olderThan) {
			j.Status = models.StatusPending
			j.LockedAt = nil
			j.LockedBy = nil
			j.NextRunAt = &now
			n++
		}
	}
	return n, nil
}

func (r *fakeJobRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type fakeContentRepo struct {
	mu        gosync.Mutex
	posts     map[string]*models.Post
	published []models.Post
	upserts   int
	listErr   error
}

func newFakeContentRepo() *fakeContentRepo {
	return &fakeContentRepo{posts: map[string]*models.Post{}}
}

func (r *fakeContentRepo) UpsertByExternalID(_ context.Context, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	copied := *post
	r.posts[post.ExternalID] = &copied
	return nil
}

func (r *fakeContentRepo) FindByExternalID(_ context.Context, externalID string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posts[externalID], nil
}

func (r *fakeContentRepo) FindBySlug(_ context.Context, slug string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, nil
}

func (r *fakeContentRepo) ListPublished(_ context.Context) ([]models.Post, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.published, nil
}

type fakeMappingRepo struct {
	mapping schema.FieldMapping
	version int
}

func (r *fakeMappingRepo) GetMapping(context.Context, string) (schema.FieldMapping, int, error) {
	return r.mapping, r.version, nil
}

func (r *fakeMappingRepo) PutMapping(_ context.Context, _ string, doc schema.FieldMapping) (int, error) {
	r.mapping = doc
	r.version++
	return r.version, nil
}

type fakeClient struct {
	mu          gosync.Mutex
	pages       map[string]*notion.Page
	pageErr     error
	indicators  []string
	notifyErr   error
	schemaProps []notion.DataSourceProperty
	updates     []map[string]any
}

func newFakeClient() *fakeClient {
	return &fakeClient{pages: map[string]*notion.Page{}}
}

func (c *fakeClient) RetrieveLiveSchema(context.Context, string) ([]notion.DataSourceProperty, error) {
	return c.schemaProps, nil
}

func (c *fakeClient) RetrievePage(_ context.Context, pageID string) (*notion.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pageErr != nil {
		return nil, c.pageErr
	}
	page, ok := c.pages[pageID]
	if !ok {
		return nil, &notion.APIError{StatusCode: 404, Code: "object_not_found", Message: "page missing"}
	}
	return page, nil
}

func (c *fakeClient) UpdateSchema(_ context.Context, _ string, properties map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, properties)
	return nil
}

func (c *fakeClient) NotifySyncIndicator(_ context.Context, pageID, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indicators = append(c.indicators, pageID+":"+label)
	return c.notifyErr
}

type harness struct {
	jobs    *fakeJobRepo
	content *fakeContentRepo
	maps    *fakeMappingRepo
	client  *fakeClient
	now     time.Time
	svc     *Service
}

func newHarness() *harness {
	h := &harness{
		jobs:    newFakeJobRepo(),
		content: newFakeContentRepo(),
		maps:    &fakeMappingRepo{},
		client:  newFakeClient(),
		now:     time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC),
	}
	h.svc = NewService(h.jobs, h.content, h.maps, h.client, schema.PostDescriptor(),
		zerolog.Nop(), Options{Now: func() time.Time { return h.now }})
	return h
}

func goodPage(id string) *notion.Page {
	return &notion.Page{
		ID:             id,
		CreatedTime:    "2024-01-15T08:30:00.000Z",
		LastEditedTime: "2024-02-01T10:00:00.000Z",
		Properties: map[string]notion.PropertyValue{
			"Name":   {Type: "title", Title: []notion.RichText{{PlainText: "A Post"}}},
			"Slug":   {Type: "rich_text", RichText: []notion.RichText{{PlainText: "a-post"}}},
			"Status": {Type: "status", Status: &notion.SelectOption{Name: "Published"}},
			"Tags":   {Type: "multi_select", MultiSelect: []notion.SelectOption{{Name: "go"}}},
		},
	}
}

var errBoom = errors.New("boom")

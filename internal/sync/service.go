package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"notion-content-sync/internal/models"
	"notion-content-sync/internal/notion"
	"notion-content-sync/internal/schema"
)

// StatusPatch carries the optional field updates applied alongside a status
// transition. Set* flags distinguish "write NULL" from "leave unchanged".
type StatusPatch struct {
	Attempt      *int
	NextRunAt    *time.Time
	SetNextRun   bool
	ErrorMessage *string
	SetError     bool
	ClearLock    bool
}

// EnqueueParams is the input to the idempotent enqueue.
type EnqueueParams struct {
	PageID      string
	TriggerType string
	DedupeKey   string
	Payload     map[string]any
	MaxAttempts int
}

// JobRepository is the persistence contract for sync jobs. Enqueue must be
// idempotent by dedupe key as a single atomic insert-or-return-existing;
// ClaimNext must select and transition in one atomic step.
type JobRepository interface {
	Enqueue(ctx context.Context, p EnqueueParams) (models.SyncJob, bool, error)
	ClaimNext(ctx context.Context, lockID string) (*models.SyncJob, error)
	MarkStatus(ctx context.Context, id, status string, patch StatusPatch) error
	FindByID(ctx context.Context, id string) (*models.SyncJob, error)
	FindByDedupeKeys(ctx context.Context, keys []string) (map[string]models.SyncJob, error)
	ListRecent(ctx context.Context, limit int) ([]models.SyncJob, error)
	ReclaimStale(ctx context.Context, olderThan time.Time) (int, error)
}

// ContentRepository persists synced posts.
type ContentRepository interface {
	UpsertByExternalID(ctx context.Context, post *models.Post) error
	FindByExternalID(ctx context.Context, externalID string) (*models.Post, error)
	FindBySlug(ctx context.Context, slug string) (*models.Post, error)
	ListPublished(ctx context.Context) ([]models.Post, error)
}

// MappingRepository reads and writes the per-model explicit field mapping
// override document.
type MappingRepository interface {
	GetMapping(ctx context.Context, model string) (schema.FieldMapping, int, error)
	PutMapping(ctx context.Context, model string, doc schema.FieldMapping) (int, error)
}

// AssetMirror copies an expiring provider file URL to durable storage and
// returns the stored location.
type AssetMirror interface {
	MirrorCover(ctx context.Context, pageID, sourceURL string) (string, error)
}

// Indicator label written back to the page when a job is (re)queued.
const IndicatorIdle = "idle"

// Service bundles the sync use cases behind explicit dependencies; all
// collaborators are constructed once at process start and passed in.
type Service struct {
	jobs     JobRepository
	content  ContentRepository
	mappings MappingRepository
	client   notion.Client
	mirror   AssetMirror // nil disables media mirroring
	desc     schema.Descriptor

	publishedOption string
	log             zerolog.Logger
	now             func() time.Time
}

// Options configures optional service behavior.
type Options struct {
	PublishedOption string // status option marking a post as published
	Mirror          AssetMirror
	Now             func() time.Time
}

// NewService wires the use cases.
func NewService(jobs JobRepository, content ContentRepository, mappings MappingRepository, client notion.Client, desc schema.Descriptor, log zerolog.Logger, opts Options) *Service {
	if opts.PublishedOption == "" {
		opts.PublishedOption = "Published"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		jobs:            jobs,
		content:         content,
		mappings:        mappings,
		client:          client,
		mirror:          opts.Mirror,
		desc:            desc,
		publishedOption: opts.PublishedOption,
		log:             log,
		now:             opts.Now,
	}
}

// Descriptor exposes the content model the service syncs against.
func (s *Service) Descriptor() schema.Descriptor { return s.desc }

// notifyIndicator is best-effort: failures are logged, never surfaced.
func (s *Service) notifyIndicator(ctx context.Context, pageID, label string) {
	if err := s.client.NotifySyncIndicator(ctx, pageID, label); err != nil {
		s.log.Warn().Err(err).Str("page_id", pageID).Str("label", label).
			Msg("sync indicator update failed")
	}
}

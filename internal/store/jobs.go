package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"notion-content-sync/internal/models"
	"notion-content-sync/internal/sync"
)

const jobColumns = `id, page_id, trigger_type, status, attempt, max_attempts,
	next_run_at, locked_at, locked_by, payload, dedupe_key, error_message,
	created_at, updated_at`

// Enqueue inserts a job, or returns the existing one when the dedupe key is
// already taken. The uniqueness constraint makes the insert atomic: two
// concurrent enqueues with the same key can never both insert.
func (s *Store) Enqueue(ctx context.Context, p sync.EnqueueParams) (models.SyncJob, bool, error) {
	payloadJSON, err := json.Marshal(orEmpty(p.Payload))
	if err != nil {
		return models.SyncJob{}, false, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sync_jobs (id, page_id, trigger_type, status, attempt, max_attempts, payload, dedupe_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8, $8)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING `+jobColumns,
		uuid.NewString(), p.PageID, p.TriggerType, models.StatusPending, p.MaxAttempts, payloadJSON, p.DedupeKey, now)

	job, err := scanJob(row)
	if err == nil {
		return job, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.SyncJob{}, false, fmt.Errorf("insert job: %w", err)
	}

	// Conflict: another insert owns the key; return that job unchanged.
	existing, err := s.findByDedupeKey(ctx, p.DedupeKey)
	if err != nil {
		return models.SyncJob{}, false, err
	}
	return existing, true, nil
}

// ClaimNext atomically selects one eligible job and transitions it to
// processing with the lock fields set. SKIP LOCKED keeps concurrent workers
// from double-claiming.
func (s *Store) ClaimNext(ctx context.Context, lockID string) (*models.SyncJob, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		UPDATE sync_jobs
		SET status = $1, locked_at = $2, locked_by = $3, updated_at = $2
		WHERE id = (
			SELECT id FROM sync_jobs
			WHERE (status = $4 AND (next_run_at IS NULL OR next_run_at <= $2))
			   OR (status = $5 AND next_run_at IS NOT NULL AND next_run_at <= $2)
			ORDER BY updated_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		models.StatusProcessing, now, lockID, models.StatusPending, models.StatusFailed)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// MarkStatus applies a status transition plus the patched fields in one
// statement.
func (s *Store) MarkStatus(ctx context.Context, id, status string, patch sync.StatusPatch) error {
	sets := []string{"status = $2", "updated_at = $3"}
	args := []any{id, status, time.Now().UTC()}

	if patch.Attempt != nil {
		args = append(args, *patch.Attempt)
		sets = append(sets, fmt.Sprintf("attempt = $%d", len(args)))
	}
	if patch.SetNextRun {
		args = append(args, patch.NextRunAt)
		sets = append(sets, fmt.Sprintf("next_run_at = $%d", len(args)))
	}
	if patch.SetError {
		args = append(args, patch.ErrorMessage)
		sets = append(sets, fmt.Sprintf("error_message = $%d", len(args)))
	}
	if patch.ClearLock {
		sets = append(sets, "locked_at = NULL", "locked_by = NULL")
	}

	tag, err := s.pool.Exec(ctx,
		"UPDATE sync_jobs SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

// FindByID returns the job or nil when absent.
func (s *Store) FindByID(ctx context.Context, id string) (*models.SyncJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	return &job, nil
}

// FindByDedupeKeys batch-loads jobs keyed by dedupe key.
func (s *Store) FindByDedupeKeys(ctx context.Context, keys []string) (map[string]models.SyncJob, error) {
	out := make(map[string]models.SyncJob, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE dedupe_key = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("query jobs by dedupe keys: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out[job.DedupeKey] = job
	}
	return out, rows.Err()
}

// ListRecent returns the newest jobs for the audit view.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]models.SyncJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM sync_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []models.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ReclaimStale returns over-age processing jobs to pending. This is the
// lease-expiry recovery for workers that died mid-job.
func (s *Store) ReclaimStale(ctx context.Context, olderThan time.Time) (int, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_jobs
		SET status = $1, locked_at = NULL, locked_by = NULL, next_run_at = $2, updated_at = $2
		WHERE status = $3 AND locked_at IS NOT NULL AND locked_at < $4
	`, models.StatusPending, now, models.StatusProcessing, olderThan)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountEligible reports how many jobs a worker could claim right now.
func (s *Store) CountEligible(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM sync_jobs
		WHERE (status = $1 AND (next_run_at IS NULL OR next_run_at <= $3))
		   OR (status = $2 AND next_run_at IS NOT NULL AND next_run_at <= $3)
	`, models.StatusPending, models.StatusFailed, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count eligible jobs: %w", err)
	}
	return n, nil
}

func (s *Store) findByDedupeKey(ctx context.Context, key string) (models.SyncJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE dedupe_key = $1`, key)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.SyncJob{}, errors.New("dedupe conflict but no existing job found")
	}
	if err != nil {
		return models.SyncJob{}, fmt.Errorf("find job by dedupe key: %w", err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (models.SyncJob, error) {
	var job models.SyncJob
	var payloadJSON []byte
	if err := row.Scan(
		&job.ID, &job.PageID, &job.TriggerType, &job.Status, &job.Attempt, &job.MaxAttempts,
		&job.NextRunAt, &job.LockedAt, &job.LockedBy, &payloadJSON, &job.DedupeKey,
		&job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return models.SyncJob{}, err
	}
	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return models.SyncJob{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	return job, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

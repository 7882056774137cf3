package models

import (
	"time"
)

// SyncJobStatus enumerates lifecycle states persisted in Postgres.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

// Trigger provenance recorded on each job.
const (
	TriggerButton    = "button"
	TriggerManual    = "manual"
	TriggerRetry     = "retry"
	TriggerScheduled = "scheduled"
)

// DefaultMaxAttempts bounds automatic retries; manual retry bypasses it.
const DefaultMaxAttempts = 5

// SyncJob represents one "synchronize page X" unit of work. Rows are never
// deleted; terminal jobs remain queryable as an audit trail.
type SyncJob struct {
	ID           string         `json:"id"`
	PageID       string         `json:"page_id"`
	TriggerType  string         `json:"trigger_type"`
	Status       string         `json:"status"`
	Attempt      int            `json:"attempt"`
	MaxAttempts  int            `json:"max_attempts"`
	NextRunAt    *time.Time     `json:"next_run_at,omitempty"`
	LockedAt     *time.Time     `json:"locked_at,omitempty"`
	LockedBy     *string        `json:"locked_by,omitempty"`
	Payload      map[string]any `json:"payload"`
	DedupeKey    string         `json:"dedupe_key"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Terminal reports whether the job reached an end state that only a manual
// retry can leave.
func (j SyncJob) Terminal() bool {
	if j.Status == StatusSucceeded {
		return true
	}
	return j.Status == StatusFailed && j.NextRunAt == nil
}

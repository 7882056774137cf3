package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"notion-content-sync/internal/sync"
	"notion-content-sync/internal/telemetry"
)

// eligibleCounter is the slice of the job store the runner needs beyond the
// use cases: gauge refresh for the claimable backlog.
type eligibleCounter interface {
	CountEligible(ctx context.Context) (int64, error)
}

// Runner drives the worker loop: claim-and-process until drained, reclaim
// stale leases, refresh gauges, sleep, repeat.
type Runner struct {
	svc          *sync.Service
	jobs         sync.JobRepository
	counter      eligibleCounter // nil skips gauge refresh
	lockID       string
	pollInterval time.Duration
	lockTTL      time.Duration
	log          zerolog.Logger
}

// RunnerOptions configures the loop cadence and lease recovery.
type RunnerOptions struct {
	LockID       string
	PollInterval time.Duration
	LockTTL      time.Duration
	Counter      eligibleCounter
}

// NewRunner wires a worker loop around the sync service.
func NewRunner(svc *sync.Service, jobs sync.JobRepository, log zerolog.Logger, opts RunnerOptions) *Runner {
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Second
	}
	if opts.LockTTL == 0 {
		opts.LockTTL = 5 * time.Minute
	}
	return &Runner{
		svc:          svc,
		jobs:         jobs,
		counter:      opts.Counter,
		lockID:       opts.LockID,
		pollInterval: opts.PollInterval,
		lockTTL:      opts.LockTTL,
		log:          log,
	}
}

// Run loops until context cancellation.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().Str("lock_id", r.lockID).Dur("poll_interval", r.pollInterval).
		Dur("lock_ttl", r.lockTTL).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.reclaim(ctx)
		drained := r.drain(ctx)
		r.refreshGauges(ctx)

		if drained {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.pollInterval):
			}
		}
	}
}

// drain processes eligible jobs until the queue is empty or processing
// errors out; it reports whether the loop should sleep before polling again.
func (r *Runner) drain(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		default:
		}

		result, err := r.svc.ProcessNext(ctx, r.lockID)
		if err != nil {
			r.log.Error().Err(err).Msg("process next failed")
			return true
		}
		if result.Outcome == sync.OutcomeIdle {
			return true
		}
	}
}

// reclaim returns jobs whose worker died mid-processing to pending once
// their lease is older than the TTL.
func (r *Runner) reclaim(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.lockTTL)
	n, err := r.jobs.ReclaimStale(ctx, cutoff)
	if err != nil {
		r.log.Error().Err(err).Msg("reclaim stale jobs failed")
		return
	}
	if n > 0 {
		telemetry.JobsReclaimed.Add(float64(n))
		r.log.Warn().Int("count", n).Msg("reclaimed stale sync jobs")
	}
}

func (r *Runner) refreshGauges(ctx context.Context) {
	if r.counter == nil {
		return
	}
	if n, err := r.counter.CountEligible(ctx); err == nil {
		telemetry.EligibleGauge.Set(float64(n))
	}
}

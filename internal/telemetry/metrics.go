package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued     = prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_jobs_enqueued_total", Help: "Sync jobs inserted (deduplicated enqueues excluded)"})
	JobsSucceeded    = prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_jobs_succeeded_total", Help: "Sync jobs completed successfully"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_jobs_failed_total", Help: "Sync job attempts that failed"})
	JobsRetried      = prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_jobs_retried_total", Help: "Manual retries of failed jobs"})
	JobsReclaimed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_jobs_reclaimed_total", Help: "Processing jobs returned to pending after lease expiry"})
	WebhookRejects   = prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_webhook_rejects_total", Help: "Webhook triggers rejected by the rate limiter"})
	EligibleGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "sync_jobs_eligible", Help: "Jobs currently eligible for claiming"})
	SchemaDriftGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "sync_schema_drift_fields", Help: "Fields missing or mismatched in the last schema evaluation"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsSucceeded,
			JobsFailed,
			JobsRetried,
			JobsReclaimed,
			WebhookRejects,
			EligibleGauge,
			SchemaDriftGauge,
		)
	})
	return promhttp.Handler()
}

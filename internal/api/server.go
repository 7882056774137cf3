package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"notion-content-sync/internal/config"
	"notion-content-sync/internal/models"
	"notion-content-sync/internal/notion"
	"notion-content-sync/internal/ratelimit"
	"notion-content-sync/internal/schema"
	"notion-content-sync/internal/sync"
	"notion-content-sync/internal/telemetry"
)

// Server wires the HTTP trigger surface: webhook and manual sync triggers,
// job inspection, manual retry, and schema administration.
type Server struct {
	cfg      config.Config
	svc      *sync.Service
	jobs     sync.JobRepository
	mappings sync.MappingRepository
	client   notion.Client
	limiter  *ratelimit.TokenBucket
	log      zerolog.Logger
}

// New constructs the API server.
func New(cfg config.Config, svc *sync.Service, jobs sync.JobRepository, mappings sync.MappingRepository, client notion.Client, limiter *ratelimit.TokenBucket, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		svc:      svc,
		jobs:     jobs,
		mappings: mappings,
		client:   client,
		limiter:  limiter,
		log:      log,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/webhooks/notion", s.handleWebhook)
	r.Post("/sync/pages/{pageID}", s.handleManualSync)
	r.Post("/sync/schedule", s.handleSchedule)
	r.Get("/sync/jobs", s.handleListJobs)
	r.Get("/sync/jobs/{id}", s.handleGetJob)
	r.Post("/sync/jobs/{id}/retry", s.handleRetry)

	r.Get("/schema/status", s.handleSchemaStatus)
	r.Post("/schema/migrate", s.handleSchemaMigrate)
	r.Get("/schema/mapping", s.handleGetMapping)
	r.Put("/schema/mapping", s.handlePutMapping)

	return r
}

type webhookRequest struct {
	PageID  string `json:"page_id"`
	EventID string `json:"event_id"`
}

// handleWebhook accepts a Notion button/automation callback and enqueues a
// sync for the page, deduplicated by the provider event id when present.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.PageID == "" {
		http.Error(w, "page_id is required", http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), "webhook:"+req.PageID)
		if err != nil {
			s.log.Error().Err(err).Msg("rate limiter unavailable")
		} else if !allowed {
			telemetry.WebhookRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	token := req.EventID
	if token == "" {
		token = uuid.NewString()
	}
	job, err := s.svc.Enqueue(r.Context(), sync.EnqueueParams{
		PageID:      req.PageID,
		TriggerType: models.TriggerButton,
		DedupeKey:   fmt.Sprintf("button:%s:%s", req.PageID, token),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// handleManualSync enqueues an operator-initiated sync. Repeating the same
// Idempotency-Key returns the same job.
func (s *Server) handleManualSync(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	token := r.Header.Get("Idempotency-Key")
	if token == "" {
		token = uuid.NewString()
	}
	job, err := s.svc.Enqueue(r.Context(), sync.EnqueueParams{
		PageID:      pageID,
		TriggerType: models.TriggerManual,
		DedupeKey:   sync.ManualDedupeKey(pageID, token),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.ScheduleAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	jobs, err := s.jobs.ListRecent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleSchemaStatus evaluates the live database schema against the
// content model expectations plus any explicit mapping overrides.
func (s *Server) handleSchemaStatus(w http.ResponseWriter, r *http.Request) {
	desc := s.svc.Descriptor()
	props, err := s.client.RetrieveLiveSchema(r.Context(), s.cfg.NotionDatabaseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	mapping, version, err := s.mappings.GetMapping(r.Context(), desc.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}

	report := schema.Evaluate(desc.Expectations, desc.Builtins, props, mapping)
	telemetry.SchemaDriftGauge.Set(float64(report.RequiredMissing + report.Mismatches))
	writeJSON(w, http.StatusOK, map[string]any{
		"model":          desc.Model,
		"mappingVersion": version,
		"report":         report,
	})
}

type migrateRequest struct {
	DryRun bool `json:"dry_run"`
}

// handleSchemaMigrate computes the corrective actions and, unless dry_run
// is set, applies them to the live database.
func (s *Server) handleSchemaMigrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	desc := s.svc.Descriptor()
	props, err := s.client.RetrieveLiveSchema(r.Context(), s.cfg.NotionDatabaseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	mapping, _, err := s.mappings.GetMapping(r.Context(), desc.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}

	actions := schema.ComputeDiff(desc.Expectations, props, mapping)
	applied := false
	if len(actions) > 0 && !req.DryRun {
		payload := schema.BuildMigrationPayload(actions)
		if err := s.client.UpdateSchema(r.Context(), s.cfg.NotionDatabaseID, payload); err != nil {
			s.writeError(w, err)
			return
		}
		applied = true
		s.log.Info().Int("actions", len(actions)).Msg("schema migration applied")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": actions,
		"applied": applied,
		"dryRun":  req.DryRun,
	})
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	desc := s.svc.Descriptor()
	mapping, version, err := s.mappings.GetMapping(r.Context(), desc.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":    desc.Model,
		"version":  version,
		"document": mapping,
	})
}

func (s *Server) handlePutMapping(w http.ResponseWriter, r *http.Request) {
	var doc schema.FieldMapping
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	desc := s.svc.Descriptor()
	version, err := s.mappings.PutMapping(r.Context(), desc.Model, doc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":   desc.Model,
		"version": version,
	})
}

// writeError translates coded use-case errors into HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch sync.CodeOf(err) {
	case sync.CodeValidation:
		status = http.StatusBadRequest
	case sync.CodeJobNotFound:
		status = http.StatusNotFound
	case sync.CodeNotionAPI:
		status = http.StatusBadGateway
	}
	var apiErr *notion.APIError
	if errors.As(err, &apiErr) {
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/engine"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store"
	redisstore "github.com/ramiqadoumi/go-durable-orchestrator/internal/redis"
	"github.com/ramiqadoumi/go-durable-orchestrator/pkg/telemetry"
)

// REST handles HTTP requests for the submission façade.
type REST struct {
	engine  *engine.Engine
	store   store.Store
	limiter redisstore.RateLimiter // nil = disabled
	logger  *slog.Logger
}

// NewREST creates a new REST handler.
func NewREST(eng *engine.Engine, st store.Store, limiter redisstore.RateLimiter, logger *slog.Logger) *REST {
	return &REST{engine: eng, store: st, limiter: limiter, logger: logger}
}

// SubmitJobRequest is the JSON body for POST /v1/jobs.
type SubmitJobRequest struct {
	ActivityType  string          `json:"activity_type"`
	Method        string          `json:"method"`
	Arguments     json.RawMessage `json:"arguments"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// SubmitJobResponse is the 202 response body.
type SubmitJobResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatusResponse is the GET /v1/jobs/{id} response body.
type JobStatusResponse struct {
	JobID        string    `json:"job_id"`
	ActivityType string    `json:"activity_type"`
	Status       string    `json:"status"`
	RetryCount   int       `json:"retry_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SubmitJob handles POST /v1/jobs.
func (h *REST) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("submission").Start(r.Context(), "submission.submit_job")
	defer span.End()
	r = r.WithContext(ctx)

	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ActivityType) == "" {
		writeError(w, http.StatusBadRequest, "field 'activity_type' is required")
		return
	}
	if len(req.Arguments) == 0 || string(req.Arguments) == "null" {
		writeError(w, http.StatusBadRequest, "field 'arguments' is required")
		return
	}

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, req.ActivityType)
		if err != nil {
			h.logger.Error("rate limiter error", "error", err)
			// Allow on limiter failure: a Redis outage must not block submission.
		} else if !allowed {
			telemetry.SubmissionRateLimitedTotal.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded for activity type "+req.ActivityType)
			return
		}
	}

	span.SetAttributes(attribute.String("activity.type", req.ActivityType))

	act := domain.Single(req.ActivityType, req.Method, req.Arguments)
	jobID, err := h.engine.Submit(ctx, act, req.CorrelationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		h.logger.Error("submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	telemetry.SubmissionJobsSubmitted.WithLabelValues(req.ActivityType).Inc()
	h.logger.Info("job submitted", "job_id", jobID, "activity_type", req.ActivityType)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SubmitJobResponse{
		JobID:     jobID,
		Status:    string(domain.StatusCreated),
		CreatedAt: time.Now().UTC(),
	})
}

// GetJobStatus handles GET /v1/jobs/{id}.
func (h *REST) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.store.Load(r.Context(), jobID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("load job failed", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve job")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(JobStatusResponse{
		JobID:        job.ID,
		ActivityType: job.ActivityType,
		Status:       string(job.Status),
		RetryCount:   job.RetryCount,
		CreatedAt:    job.CreatedUtc,
		UpdatedAt:    job.UpdatedUtc,
	})
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz.
func (h *REST) Readyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Submission façade ──────────────────────────────────────────────────────

	SubmissionJobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "submission",
		Name:      "jobs_submitted_total",
		Help:      "Total root jobs submitted through the submission façade.",
	}, []string{"activity_type"})

	SubmissionRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "submission",
		Name:      "rate_limited_total",
		Help:      "Total submissions rejected by the rate limiter.",
	})

	// ─── Scheduler loop ─────────────────────────────────────────────────────────

	EngineJobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "engine",
		Name:      "jobs_processed_total",
		Help:      "Total jobs executed by the scheduler loop, labelled by terminal result kind.",
	}, []string{"result"})

	EngineJobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Subsystem: "engine",
		Name:      "job_duration_seconds",
		Help:      "Activity runtime execution time in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"activity_type"})

	EngineRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "engine",
		Name:      "retries_total",
		Help:      "Total retry attempts before either a successful rerun or poisoning.",
	}, []string{"activity_type"})

	EnginePoisonedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "engine",
		Name:      "poisoned_total",
		Help:      "Total jobs that exhausted their retry budget and were poisoned.",
	}, []string{"activity_type"})

	// ─── Job queue ──────────────────────────────────────────────────────────────

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "jobqueue",
		Name:      "depth",
		Help:      "Current in-memory buffer depth, per activity type.",
	}, []string{"activity_type"})

	QueueSuspendedCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "jobqueue",
		Name:      "suspended",
		Help:      "Jobs currently suspended to the persistence store, per activity type.",
	}, []string{"activity_type"})

	// ─── Continuation engine ────────────────────────────────────────────────────

	ContinuationDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "continuation",
		Name:      "dispatched_total",
		Help:      "Total continuation leaves transitioned from Created to Ready by the dispatcher.",
	}, []string{"activity_type"})

	LivenessSweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Subsystem: "continuation",
		Name:      "liveness_sweep_duration_seconds",
		Help:      "Duration of one leader-elected ContinuationLiveness sweep pass.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
)

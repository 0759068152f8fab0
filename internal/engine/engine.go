// Package engine wires the scheduler loop (spec.md's "Scheduler/loop"):
// it reads a Ready job from a queue, asks the activity runtime to execute
// it, interprets the Result, and invokes the matching transition.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/activity"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/coordinator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/jobqueue"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/mutator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/router"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/transition"
	"github.com/ramiqadoumi/go-durable-orchestrator/pkg/telemetry"
)

// Transitions bundles the four lifecycle edges the loop drives a job
// through after Execute returns.
type Transitions struct {
	Waiting  *transition.WaitingForChildren
	End      *transition.End
	Failed   *transition.Failed
	Poisoned *transition.Poisoned
}

// Engine is the scheduler loop plus job submission ingress.
type Engine struct {
	store       store.Store
	mutator     *mutator.Mutator
	router      *router.Router
	coordinator *coordinator.Coordinator
	runtime     activity.Runtime
	transitions Transitions
	queues      []*jobqueue.Queue
	workers     int
	log         *slog.Logger

	wg sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkersPerQueue sets how many concurrent readers poll each queue.
func WithWorkersPerQueue(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New builds an Engine. queues is every queue the loop should poll,
// including the router's fallback.
func New(
	s store.Store,
	m *mutator.Mutator,
	r *router.Router,
	c *coordinator.Coordinator,
	rt activity.Runtime,
	t Transitions,
	queues []*jobqueue.Queue,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:       s,
		mutator:     m,
		router:      r,
		coordinator: c,
		runtime:     rt,
		transitions: t,
		queues:      queues,
		workers:     1,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit builds a root job from activity, persists it Created, then
// transitions it to Ready and routes it — spec.md's "Scheduler ingress".
func (e *Engine) Submit(ctx context.Context, act domain.Activity, correlationID string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	if correlationID == "" {
		correlationID = id
	}

	job := &domain.Job{
		ID:            id,
		CorrelationID: correlationID,
		RootID:        id,
		ActivityType:  act.ActivityType,
		Method:        act.Method,
		Arguments:     act.Arguments,
		Status:        domain.StatusCreated,
		CreatedUtc:    now,
		UpdatedUtc:    now,
	}

	if err := e.store.Store(ctx, job); err != nil {
		return "", err
	}
	if err := e.mutator.Transition(ctx, job, domain.StatusReady); err != nil {
		return "", err
	}
	e.router.Route(ctx, job)
	return id, nil
}

// Requeue re-routes a job reloaded from the store at boot. A job left
// Running when the previous process died had no one left to finish it, so
// it is demoted back to Ready before being written onto its queue; a job
// left Ready is routed as-is.
func (e *Engine) Requeue(ctx context.Context, job *domain.Job) {
	if job.Status != domain.StatusReady {
		job.Status = domain.StatusReady
		job.UpdatedUtc = time.Now().UTC()
		if err := e.store.Store(ctx, job); err != nil {
			e.log.Error("requeue: persist failed", "job_id", job.ID, "error", err)
			return
		}
	}
	e.router.Route(ctx, job)
}

// Run starts workers-per-queue readers against every configured queue and
// blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for _, q := range e.queues {
		q := q
		for i := 0; i < e.workers; i++ {
			e.wg.Add(1)
			go e.pollLoop(ctx, q)
		}
	}
	<-ctx.Done()
	e.wg.Wait()
}

func (e *Engine) pollLoop(ctx context.Context, q *jobqueue.Queue) {
	defer e.wg.Done()
	for {
		job, err := q.Read(ctx)
		if err != nil {
			var shutdown *domain.ShutdownError
			if errors.As(err, &shutdown) || ctx.Err() != nil {
				return
			}
			e.log.Error("queue read failed", "error", err)
			continue
		}
		e.process(ctx, job)
	}
}

// process runs a single job under the job coordinator, so the same job id
// never executes on two workers at once.
func (e *Engine) process(ctx context.Context, job *domain.Job) {
	e.coordinator.Run(ctx, job.ID, func(ctx context.Context) {
		cfg := e.router.QueueFor(job.ActivityType).Config()
		e.runOnce(ctx, job, cfg)
	})
}

func (e *Engine) runOnce(ctx context.Context, job *domain.Job, cfg domain.ActivityConfiguration) {
	log := e.log.With("job_id", job.ID, "activity_type", job.ActivityType)

	if err := e.mutator.Transition(ctx, job, domain.StatusRunning); err != nil {
		log.Error("failed to mark job running", "error", err)
		return
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if cfg.ExecutionTimeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, cfg.ExecutionTimeout)
	}
	start := time.Now()
	result, err := e.runtime.Execute(execCtx, job)
	duration := time.Since(start)
	if cancel != nil {
		cancel()
	}
	e.recordExecution(ctx, job, duration, err, log)
	telemetry.EngineJobDurationSeconds.WithLabelValues(job.ActivityType).Observe(duration.Seconds())

	if err != nil {
		telemetry.EngineJobsProcessed.WithLabelValues("error").Inc()
		e.applyFailed(ctx, job, cfg, err, log)
		return
	}

	switch result.Kind {
	case domain.ResultKindValue:
		telemetry.EngineJobsProcessed.WithLabelValues("value").Inc()
		if err := e.transitions.End.Apply(ctx, job); err != nil {
			log.Error("end transition failed", "error", err)
		}
	case domain.ResultKindActivity:
		telemetry.EngineJobsProcessed.WithLabelValues("activity").Inc()
		if result.Activity == nil {
			e.applyFailed(ctx, job, cfg, errors.New("activity result missing graph"), log)
			return
		}
		if err := e.transitions.Waiting.Apply(ctx, job, *result.Activity); err != nil {
			log.Error("waiting-for-children transition failed", "error", err)
		}
	case domain.ResultKindError:
		telemetry.EngineJobsProcessed.WithLabelValues("error").Inc()
		e.applyFailed(ctx, job, cfg, result.Err, log)
	default:
		e.applyFailed(ctx, job, cfg, errors.New("activity runtime returned an unrecognized result kind"), log)
	}
}

func (e *Engine) applyFailed(ctx context.Context, job *domain.Job, cfg domain.ActivityConfiguration, activityErr error, log *slog.Logger) {
	if err := e.transitions.Failed.Apply(ctx, job, cfg, &domain.UserActivityError{JobID: job.ID, Err: activityErr}); err != nil {
		log.Error("failed transition failed", "error", err)
		return
	}
	if job.Status == domain.StatusPoisoned {
		telemetry.EnginePoisonedTotal.WithLabelValues(job.ActivityType).Inc()
	} else {
		telemetry.EngineRetriesTotal.WithLabelValues(job.ActivityType).Inc()
	}
}

// recordExecution appends an audit row for this dispatch attempt. Failures
// to record are logged and swallowed — the audit trail is best-effort and
// must never block the lifecycle transition that follows.
func (e *Engine) recordExecution(ctx context.Context, job *domain.Job, d time.Duration, execErr error, log *slog.Logger) {
	exec := &domain.Execution{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		Attempt:    job.RetryCount + 1,
		Status:     domain.StatusRunning,
		DurationMs: d.Milliseconds(),
		ExecutedAt: time.Now().UTC(),
	}
	if execErr != nil {
		exec.Error = execErr.Error()
	}
	if err := e.store.RecordExecution(ctx, exec); err != nil {
		log.Warn("failed to record execution", "error", err)
	}
}

package transition

import (
	"context"
	"log/slog"
	"time"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/mutator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/router"
)

// Failed implements FailedTransition (spec.md §6): an Error result from
// the activity runtime feeds the retry/poison policy. Within the retry
// budget, job moves back to Ready at once and is routed to its queue after
// retryDelay; past it, Poisoned takes over.
type Failed struct {
	mutator  *mutator.Mutator
	router   *router.Router
	poisoned *Poisoned
	log      *slog.Logger
}

// NewFailed returns a Failed transition wired to its collaborators.
func NewFailed(m *mutator.Mutator, r *router.Router, p *Poisoned, log *slog.Logger) *Failed {
	if log == nil {
		log = slog.Default()
	}
	return &Failed{mutator: m, router: r, poisoned: p, log: log}
}

// Apply records activityErr against job and applies the retry/poison
// policy from cfg.
func (f *Failed) Apply(ctx context.Context, job *domain.Job, cfg domain.ActivityConfiguration, activityErr error) error {
	job.RetryCount++

	if job.RetryCount > cfg.MaxRetries {
		f.log.Warn("job exhausted retry budget, poisoning", "job_id", job.ID, "retry_count", job.RetryCount, "error", activityErr)
		return f.poisoned.ApplyFromRunning(ctx, job)
	}

	if err := f.mutator.Transition(ctx, job, domain.StatusFailed); err != nil {
		return err
	}
	if err := f.mutator.Transition(ctx, job, domain.StatusReady); err != nil {
		return err
	}

	f.requeue(job, cfg.RetryDelay)
	return nil
}

// requeue routes job back onto its queue after delay. A zero delay routes
// immediately on the caller's goroutine; a positive delay schedules the
// route on its own timer so the coordinator turn that called Apply isn't
// held open for retryDelay.
func (f *Failed) requeue(job *domain.Job, delay time.Duration) {
	if delay <= 0 {
		f.router.Route(context.Background(), job)
		return
	}
	time.AfterFunc(delay, func() {
		f.router.Route(context.Background(), job)
	})
}

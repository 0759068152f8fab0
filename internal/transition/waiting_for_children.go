// Package transition implements the edges of the job lifecycle graph
// (spec.md §4.7, §4.10): WaitingForChildrenTransition, EndTransition,
// FailedTransition, and PoisonedTransition.
package transition

import (
	"context"
	"log/slog"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/continuation"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/coordinator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/mutator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/recoverable"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store"
)

// WaitingForChildren implements spec.md §4.7: invoked when a running job
// returns an activity graph rather than a value.
type WaitingForChildren struct {
	store       store.Store
	mutator     *mutator.Mutator
	dispatcher  *continuation.Dispatcher
	liveness    *continuation.Liveness
	coordinator *coordinator.Coordinator
	action      *recoverable.Action
	log         *slog.Logger
}

// New returns a WaitingForChildren transition wired to its collaborators.
func New(
	s store.Store,
	m *mutator.Mutator,
	d *continuation.Dispatcher,
	l *continuation.Liveness,
	c *coordinator.Coordinator,
	retryCfg recoverable.Config,
	log *slog.Logger,
) *WaitingForChildren {
	if log == nil {
		log = slog.Default()
	}
	return &WaitingForChildren{store: s, mutator: m, dispatcher: d, liveness: l, coordinator: c, action: recoverable.New(retryCfg, log, nil), log: log}
}

// Apply runs the five steps of spec.md §4.7 for parent, given the Activity
// graph it returned instead of a value.
func (w *WaitingForChildren) Apply(ctx context.Context, parent *domain.Job, activity domain.Activity) error {
	converted, err := continuation.Convert(parent, activity)
	if err != nil {
		return err
	}

	// Step 2: persist newJobs in a single store(jobs) call before any of
	// them are made visible.
	if err := w.store.StoreBatch(ctx, converted.Jobs); err != nil {
		return err
	}

	// Step 3: change the parent's status and attach the continuation,
	// through the primitive status changer.
	parent.Continuation = converted.Continuation
	if err := w.mutator.Transition(ctx, parent, domain.StatusWaitingForChildren); err != nil {
		return err
	}

	// Step 4: dispatch; step 5 on failure schedules a liveness sweep
	// through the coordinator so the parent cannot be permanently stuck.
	// Apply itself runs inside a coordinator.Run callback for parent.ID
	// (see engine.process), so the sweep must not be run inline here: the
	// per-job mutex is already held by this goroutine and Run is not
	// reentrant. Scheduling it on its own goroutine lets it queue behind
	// the in-flight callback instead of deadlocking against it.
	if _, err := w.dispatcher.DispatchWithJobs(ctx, parent, converted.Jobs); err != nil {
		w.log.Warn("dispatch failed after WaitingForChildren, scheduling liveness verification",
			"job_id", parent.ID, "error", err)
		parentID := parent.ID
		go w.coordinator.Run(ctx, parentID, func(ctx context.Context) {
			if err := w.liveness.Verify(ctx, parentID); err != nil {
				w.log.Error("liveness verification failed", "job_id", parentID, "error", err)
			}
		})
	}
	return nil
}

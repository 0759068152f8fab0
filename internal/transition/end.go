package transition

import (
	"context"
	"log/slog"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/continuation"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/coordinator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/mutator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store"
)

// End implements EndTransition (spec.md §6): a Value result moves a
// running job to ReadyToComplete then Completed, and — if the job has a
// parent waiting on it — wakes the parent's continuation dispatch.
type End struct {
	store       store.Store
	mutator     *mutator.Mutator
	dispatcher  *continuation.Dispatcher
	coordinator *coordinator.Coordinator
	log         *slog.Logger
}

// NewEnd returns an End transition wired to its collaborators.
func NewEnd(s store.Store, m *mutator.Mutator, d *continuation.Dispatcher, c *coordinator.Coordinator, log *slog.Logger) *End {
	if log == nil {
		log = slog.Default()
	}
	return &End{store: s, mutator: m, dispatcher: d, coordinator: c, log: log}
}

// Apply transitions job to Completed and notifies its parent's
// continuation, if any.
func (e *End) Apply(ctx context.Context, job *domain.Job) error {
	if err := e.mutator.Transition(ctx, job, domain.StatusReadyToComplete); err != nil {
		return err
	}
	if err := e.mutator.Transition(ctx, job, domain.StatusCompleted); err != nil {
		return err
	}

	if job.ParentID == "" {
		return nil
	}

	parentID := job.ParentID
	e.coordinator.Run(ctx, parentID, func(ctx context.Context) {
		parent, err := e.store.Load(ctx, parentID)
		if err != nil {
			e.log.Warn("end transition: failed to load parent for dispatch", "parent_id", parentID, "error", err)
			return
		}
		if _, err := e.dispatcher.Dispatch(ctx, parent); err != nil {
			e.log.Warn("end transition: dispatch on parent failed", "parent_id", parentID, "error", err)
		}
	})
	return nil
}

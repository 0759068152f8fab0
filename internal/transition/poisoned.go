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

// Poisoned implements the terminal failure edge: ReadyToPoison → Poisoned.
// Like End, it wakes the parent's continuation dispatch once the job is
// finalized, so a poisoned child still advances (or fails) its parent.
type Poisoned struct {
	store       store.Store
	mutator     *mutator.Mutator
	dispatcher  *continuation.Dispatcher
	coordinator *coordinator.Coordinator
	log         *slog.Logger
}

// NewPoisoned returns a Poisoned transition wired to its collaborators.
func NewPoisoned(s store.Store, m *mutator.Mutator, d *continuation.Dispatcher, c *coordinator.Coordinator, log *slog.Logger) *Poisoned {
	if log == nil {
		log = slog.Default()
	}
	return &Poisoned{store: s, mutator: m, dispatcher: d, coordinator: c, log: log}
}

// ApplyFromRunning moves job straight from Running through ReadyToPoison
// to Poisoned — the exhausted-retries path out of FailedTransition.
func (p *Poisoned) ApplyFromRunning(ctx context.Context, job *domain.Job) error {
	if err := p.mutator.Transition(ctx, job, domain.StatusReadyToPoison); err != nil {
		return err
	}
	return p.Finalize(ctx, job)
}

// Finalize moves job from ReadyToPoison to Poisoned and notifies its
// parent's continuation, if any.
func (p *Poisoned) Finalize(ctx context.Context, job *domain.Job) error {
	if err := p.mutator.Transition(ctx, job, domain.StatusPoisoned); err != nil {
		return err
	}

	if job.ParentID == "" {
		return nil
	}
	parentID := job.ParentID
	p.coordinator.Run(ctx, parentID, func(ctx context.Context) {
		parent, err := p.store.Load(ctx, parentID)
		if err != nil {
			p.log.Warn("poisoned transition: failed to load parent for dispatch", "parent_id", parentID, "error", err)
			return
		}
		if _, err := p.dispatcher.Dispatch(ctx, parent); err != nil {
			p.log.Warn("poisoned transition: dispatch on parent failed", "parent_id", parentID, "error", err)
		}
	})
	return nil
}

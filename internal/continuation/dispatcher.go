package continuation

import (
	"context"
	"log/slog"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/mutator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/recoverable"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/router"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store"
	"github.com/ramiqadoumi/go-durable-orchestrator/pkg/telemetry"
)

// Dispatcher implements spec.md §4.8: on a child's completion, it walks a
// parent's continuation tree and advances every leaf whose referenced
// child is ready to move from Created to Ready.
type Dispatcher struct {
	store   store.Store
	mutator *mutator.Mutator
	router  *router.Router
	action  *recoverable.Action
	log     *slog.Logger
}

// New returns a Dispatcher wired to its collaborators.
func New(s store.Store, m *mutator.Mutator, r *router.Router, retryCfg recoverable.Config, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{store: s, mutator: m, router: r, action: recoverable.New(retryCfg, log, nil), log: log}
}

// Dispatch walks parent.Continuation, readies every pending leaf whose
// child is still Created, and routes each newly-readied child. It loads
// children from the store.
func (d *Dispatcher) Dispatch(ctx context.Context, parent *domain.Job) ([]*domain.Continuation, error) {
	return d.dispatch(ctx, parent, nil)
}

// DispatchWithJobs is the variant WaitingForChildrenTransition calls with
// the freshly-created child list, avoiding a store round-trip.
func (d *Dispatcher) DispatchWithJobs(ctx context.Context, parent *domain.Job, newJobs []*domain.Job) ([]*domain.Continuation, error) {
	byID := make(map[string]*domain.Job, len(newJobs))
	for _, j := range newJobs {
		byID[j.ID] = j
	}
	return d.dispatch(ctx, parent, byID)
}

func (d *Dispatcher) dispatch(ctx context.Context, parent *domain.Job, primed map[string]*domain.Job) ([]*domain.Continuation, error) {
	pending := parent.Continuation.PendingContinuations()
	if len(pending) == 0 {
		return nil, nil
	}

	for _, leaf := range pending {
		leaf.Status = domain.ContinuationReady
	}
	if err := d.mutator.Persist(ctx, parent); err != nil {
		return nil, err
	}

	readied := make([]*domain.Continuation, 0, len(pending))
	for _, leaf := range pending {
		child, err := d.resolveChild(ctx, leaf.ID, primed)
		if err != nil {
			d.log.Warn("dispatch: failed to resolve child", "job_id", leaf.ID, "error", err)
			continue
		}
		// Idempotency guard: only a child still in Created is a dispatch
		// candidate — anything else has already been routed.
		if child.Status != domain.StatusCreated {
			continue
		}

		leaf := leaf
		d.action.Run(ctx, func() error {
			return d.mutator.Transition(ctx, child, domain.StatusReady)
		}, func() {
			d.router.Route(ctx, child)
			telemetry.ContinuationDispatched.WithLabelValues(child.ActivityType).Inc()
			readied = append(readied, leaf)
		})
	}
	return readied, nil
}

func (d *Dispatcher) resolveChild(ctx context.Context, id string, primed map[string]*domain.Job) (*domain.Job, error) {
	if primed != nil {
		if job, ok := primed[id]; ok {
			return job, nil
		}
	}
	return d.store.Load(ctx, id)
}

package continuation

import (
	"context"
	"log/slog"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/mutator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store"
)

// Liveness implements ContinuationLiveness (spec.md §4.9): the recovery
// mechanism that re-derives a parent's continuation status from its
// children's current state after a partial dispatch crash.
type Liveness struct {
	store   store.Store
	mutator *mutator.Mutator
	log     *slog.Logger
}

// NewLiveness returns a Liveness wired to its collaborators.
func NewLiveness(s store.Store, m *mutator.Mutator, log *slog.Logger) *Liveness {
	if log == nil {
		log = slog.Default()
	}
	return &Liveness{store: s, mutator: m, log: log}
}

// Verify reloads parentID, re-checks every Ready leaf of its continuation
// against the referenced child's current status, and — if that leaves the
// tree satisfied — transitions the parent to ReadyToComplete or
// ReadyToPoison.
func (l *Liveness) Verify(ctx context.Context, parentID string) error {
	parent, err := l.store.Load(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.Continuation == nil {
		return nil
	}

	changed, err := l.reconcileReadyLeaves(ctx, parent.Continuation)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	parent.Continuation.Recompute()
	if err := l.mutator.Persist(ctx, parent); err != nil {
		return err
	}

	if !parent.Continuation.IsSatisfied() {
		return nil
	}

	to := domain.StatusReadyToComplete
	if parent.Continuation.Status == domain.ContinuationFailed {
		to = domain.StatusReadyToPoison
	}
	return l.mutator.Transition(ctx, parent, to)
}

// reconcileReadyLeaves finds every Single leaf still marked Ready whose
// referenced job has since reached a terminal status, and advances the
// leaf to match. Returns whether any leaf changed.
func (l *Liveness) reconcileReadyLeaves(ctx context.Context, node *domain.Continuation) (bool, error) {
	changed := false
	switch node.Type {
	case domain.ContinuationSingle:
		if node.Status != domain.ContinuationReady {
			return false, nil
		}
		child, err := l.store.Load(ctx, node.ID)
		if err != nil {
			l.log.Warn("liveness: failed to load child", "job_id", node.ID, "error", err)
			return false, nil
		}
		switch child.Status {
		case domain.StatusCompleted:
			node.Status = domain.ContinuationCompleted
			changed = true
		case domain.StatusPoisoned:
			node.Status = domain.ContinuationFailed
			changed = true
		}
		return changed, nil
	default:
		for _, child := range node.Children {
			c, err := l.reconcileReadyLeaves(ctx, child)
			if err != nil {
				return changed, err
			}
			changed = changed || c
		}
		return changed, nil
	}
}

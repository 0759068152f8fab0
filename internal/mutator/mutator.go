// Package mutator implements the primitive status changer: the only
// component permitted to issue store writes for job status changes.
// Every caller reaches it through the Job Coordinator, which gives it an
// implicit single-writer-per-id guarantee.
package mutator

import (
	"context"
	"time"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/eventstream"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store"
)

// Mutator applies validated status transitions to a job and persists the
// result, publishing a Snapshot to the event stream on every success.
type Mutator struct {
	store  store.Store
	stream eventstream.Stream
}

// New returns a Mutator backed by store and publishing to stream.
func New(s store.Store, stream eventstream.Stream) *Mutator {
	return &Mutator{store: s, stream: stream}
}

// Transition moves job from its current status to to, mutating the in-memory
// value and persisting it. Returns *domain.InvalidTransitionError without
// touching the store if the edge is illegal.
func (m *Mutator) Transition(ctx context.Context, job *domain.Job, to domain.Status) error {
	if !domain.IsValidTransition(job.Status, to) {
		return &domain.InvalidTransitionError{JobID: job.ID, From: job.Status, To: to}
	}
	job.Status = to
	job.UpdatedUtc = time.Now().UTC()

	if err := m.store.Store(ctx, job); err != nil {
		return err
	}
	m.stream.Publish(ctx, job.ToSnapshot())
	return nil
}

// Persist stores job as-is (e.g. dispatch-count bumps that don't change
// status) and publishes the resulting snapshot.
func (m *Mutator) Persist(ctx context.Context, job *domain.Job) error {
	job.UpdatedUtc = time.Now().UTC()
	if err := m.store.Store(ctx, job); err != nil {
		return err
	}
	m.stream.Publish(ctx, job.ToSnapshot())
	return nil
}

// PersistDrift publishes a snapshot of job flagged with DriftSuspected,
// without writing the store, for the StoreFailed-during-suspended-reload case spec.md
// §9 calls out: the caller already knows the store write is unreliable
// here, so the snapshot tells operators to look rather than swallowing it.
func (m *Mutator) PersistDrift(ctx context.Context, job *domain.Job) {
	snap := job.ToSnapshot()
	snap.DriftSuspected = true
	m.stream.Publish(ctx, snap)
}

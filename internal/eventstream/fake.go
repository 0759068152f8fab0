package eventstream

import (
	"context"
	"sync"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

// Fake is an in-memory Stream for tests; it never drops and records every
// snapshot in arrival order.
type Fake struct {
	mu        sync.Mutex
	snapshots []domain.Snapshot
}

// NewFake returns an empty Fake.
func NewFake() *Fake { return &Fake{} }

func (f *Fake) Publish(_ context.Context, snap domain.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
}

func (f *Fake) Close() error { return nil }

// Snapshots returns a copy of every published snapshot, in order.
func (f *Fake) Snapshots() []domain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Snapshot, len(f.snapshots))
	copy(out, f.snapshots)
	return out
}

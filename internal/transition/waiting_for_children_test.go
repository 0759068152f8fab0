package transition_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/continuation"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/coordinator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/eventstream"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/jobqueue"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/mutator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/recoverable"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/router"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store/memstore"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/transition"
)

func newWaitingHarness(t *testing.T) (*transition.WaitingForChildren, *memstore.Store, *jobqueue.Queue) {
	s := memstore.New()
	stream := eventstream.NewFake()
	m := mutator.New(s, stream)
	q := jobqueue.New(domain.ActivityConfiguration{}, s, stream, nil, nil)
	_, err := q.Initialize(context.Background(), nil)
	require.NoError(t, err)
	r := router.New(nil, q)
	retryCfg := recoverable.Config{MaxAttempts: 1}
	d := continuation.New(s, m, r, retryCfg, nil)
	l := continuation.NewLiveness(s, m, nil)
	c := coordinator.New()
	w := transition.New(s, m, d, l, c, retryCfg, nil)
	return w, s, q
}

func TestWaitingForChildren_Apply_SingleActivity_RoutesChild(t *testing.T) {
	w, s, q := newWaitingHarness(t)
	ctx := context.Background()

	parent := &domain.Job{ID: "parent", Status: domain.StatusRunning, CorrelationID: "corr", RootID: "parent"}
	require.NoError(t, s.Store(ctx, parent))

	activity := domain.Single("webhook", "ping", nil)
	require.NoError(t, w.Apply(ctx, parent, activity))

	assert.Equal(t, domain.StatusWaitingForChildren, parent.Status)
	require.NotNil(t, parent.Continuation)
	assert.Equal(t, domain.ContinuationSingle, parent.Continuation.Type)

	routed, err := q.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "webhook", routed.ActivityType)
	assert.Equal(t, "parent", routed.ParentID)
}

func TestWaitingForChildren_Apply_ParallelActivity_RoutesAllChildren(t *testing.T) {
	w, s, q := newWaitingHarness(t)
	ctx := context.Background()

	parent := &domain.Job{ID: "parent", Status: domain.StatusRunning}
	require.NoError(t, s.Store(ctx, parent))

	activity := domain.Parallel(false,
		domain.Single("webhook", "a", nil),
		domain.Single("webhook", "b", nil),
	)
	require.NoError(t, w.Apply(ctx, parent, activity))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		routed, err := q.Read(ctx)
		require.NoError(t, err)
		seen[routed.ID] = true
	}
	assert.Len(t, seen, 2)
}

// failNthStoreWrites wraps a store.Store and fails the Nth call to Store,
// so a test can force Dispatch's post-WaitingForChildren persist to fail
// without touching memstore itself.
type failNthStoreWrites struct {
	inner store.Store
	n     int32
	hit   int32
}

func (f *failNthStoreWrites) Store(ctx context.Context, job *domain.Job) error {
	if atomic.AddInt32(&f.hit, 1) == f.n {
		return errors.New("simulated store failure")
	}
	return f.inner.Store(ctx, job)
}

func (f *failNthStoreWrites) Load(ctx context.Context, id string) (*domain.Job, error) {
	return f.inner.Load(ctx, id)
}

func (f *failNthStoreWrites) LoadByCorrelation(ctx context.Context, correlationID string) (*domain.Job, error) {
	return f.inner.LoadByCorrelation(ctx, correlationID)
}

func (f *failNthStoreWrites) LoadByStatus(ctx context.Context, status domain.Status) ([]*domain.Job, error) {
	return f.inner.LoadByStatus(ctx, status)
}

func (f *failNthStoreWrites) StoreBatch(ctx context.Context, jobs []*domain.Job) error {
	return f.inner.StoreBatch(ctx, jobs)
}

func (f *failNthStoreWrites) LoadSuspended(ctx context.Context, activityType string, max int) ([]*domain.Job, error) {
	return f.inner.LoadSuspended(ctx, activityType, max)
}

func (f *failNthStoreWrites) LoadSuspendedExcluding(ctx context.Context, excludeTypes []string, max int) ([]*domain.Job, error) {
	return f.inner.LoadSuspendedExcluding(ctx, excludeTypes, max)
}

func (f *failNthStoreWrites) CountSuspended(ctx context.Context, activityType string) (int, error) {
	return f.inner.CountSuspended(ctx, activityType)
}

func (f *failNthStoreWrites) RecordExecution(ctx context.Context, exec *domain.Execution) error {
	return f.inner.RecordExecution(ctx, exec)
}

// TestWaitingForChildren_Apply_DispatchFailure_DoesNotDeadlockCoordinator
// reproduces spec.md §8 scenario 6 (dispatch failure triggers liveness)
// through the real coordinator, the same way engine.process invokes
// Apply: wrapped in a coordinator.Run callback for the job's own id. If
// the liveness sweep scheduled on dispatch failure ever regresses to a
// synchronous coordinator.Run call for that same id, this test hangs
// instead of returning.
func TestWaitingForChildren_Apply_DispatchFailure_DoesNotDeadlockCoordinator(t *testing.T) {
	s := memstore.New()
	stream := eventstream.NewFake()
	failing := &failNthStoreWrites{inner: s, n: 2} // 1st Store = parent -> WaitingForChildren, 2nd = dispatch's Persist
	m := mutator.New(failing, stream)
	q := jobqueue.New(domain.ActivityConfiguration{}, s, stream, nil, nil)
	_, err := q.Initialize(context.Background(), nil)
	require.NoError(t, err)
	r := router.New(nil, q)
	retryCfg := recoverable.Config{MaxAttempts: 1}
	d := continuation.New(failing, m, r, retryCfg, nil)
	l := continuation.NewLiveness(failing, m, nil)
	c := coordinator.New()
	w := transition.New(failing, m, d, l, c, retryCfg, nil)

	ctx := context.Background()
	parent := &domain.Job{ID: "parent", Status: domain.StatusRunning, CorrelationID: "corr", RootID: "parent"}
	require.NoError(t, s.Store(ctx, parent))

	activity := domain.Single("webhook", "ping", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, parent.ID, func(ctx context.Context) {
			require.NoError(t, w.Apply(ctx, parent, activity))
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Apply deadlocked on its own coordinator entry after a dispatch failure")
	}

	// The scheduled liveness sweep runs on its own goroutine and also goes
	// through the coordinator for the same job id; give it a moment to
	// finish so nothing leaks, then confirm the entry table is empty.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(ctx, parent.ID, func(context.Context) {})
	}()
	wg.Wait()
}

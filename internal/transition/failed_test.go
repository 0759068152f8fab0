package transition_test

import (
	"context"
	"errors"
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
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store/memstore"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/transition"
)

func newFailedHarness(t *testing.T) (*transition.Failed, *memstore.Store, *jobqueue.Queue) {
	s := memstore.New()
	stream := eventstream.NewFake()
	m := mutator.New(s, stream)
	q := jobqueue.New(domain.ActivityConfiguration{}, s, stream, nil, nil)
	_, err := q.Initialize(context.Background(), nil)
	require.NoError(t, err)
	r := router.New(nil, q)
	d := continuation.New(s, m, r, recoverable.Config{MaxAttempts: 1}, nil)
	c := coordinator.New()
	p := transition.NewPoisoned(s, m, d, c, nil)
	f := transition.NewFailed(m, r, p, nil)
	return f, s, q
}

func TestFailed_Apply_RetriesWithinBudget(t *testing.T) {
	f, s, q := newFailedHarness(t)
	ctx := context.Background()

	job := &domain.Job{ID: "j1", Status: domain.StatusRunning, RetryCount: 0}
	require.NoError(t, s.Store(ctx, job))

	cfg := domain.ActivityConfiguration{MaxRetries: 3, RetryDelay: 0}
	require.NoError(t, f.Apply(ctx, job, cfg, errors.New("boom")))

	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, domain.StatusReady, job.Status)

	got, err := q.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "j1", got.ID)
}

func TestFailed_Apply_PoisonsOnceBudgetExhausted(t *testing.T) {
	f, s, _ := newFailedHarness(t)
	ctx := context.Background()

	job := &domain.Job{ID: "j1", Status: domain.StatusRunning, RetryCount: 2}
	require.NoError(t, s.Store(ctx, job))

	cfg := domain.ActivityConfiguration{MaxRetries: 2, RetryDelay: 0}
	require.NoError(t, f.Apply(ctx, job, cfg, errors.New("boom")))

	assert.Equal(t, 3, job.RetryCount)
	assert.Equal(t, domain.StatusPoisoned, job.Status)
}

func TestFailed_Apply_DelayedRetryEventuallyRequeues(t *testing.T) {
	f, s, q := newFailedHarness(t)
	ctx := context.Background()

	job := &domain.Job{ID: "j1", Status: domain.StatusRunning, RetryCount: 0}
	require.NoError(t, s.Store(ctx, job))

	cfg := domain.ActivityConfiguration{MaxRetries: 3, RetryDelay: 20 * time.Millisecond}
	require.NoError(t, f.Apply(ctx, job, cfg, errors.New("boom")))

	assert.Equal(t, domain.StatusReady, job.Status)

	require.Eventually(t, func() bool {
		got, err := q.Read(ctx)
		return err == nil && got.ID == "j1"
	}, time.Second, 5*time.Millisecond)
}

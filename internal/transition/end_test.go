package transition_test

import (
	"context"
	"testing"

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

func TestEnd_Apply_CompletesRootJob(t *testing.T) {
	s := memstore.New()
	stream := eventstream.NewFake()
	m := mutator.New(s, stream)
	q := jobqueue.New(domain.ActivityConfiguration{}, s, stream, nil, nil)
	_, err := q.Initialize(context.Background(), nil)
	require.NoError(t, err)
	r := router.New(nil, q)
	d := continuation.New(s, m, r, recoverable.Config{MaxAttempts: 1}, nil)
	c := coordinator.New()
	e := transition.NewEnd(s, m, d, c, nil)
	ctx := context.Background()

	job := &domain.Job{ID: "j1", Status: domain.StatusRunning}
	require.NoError(t, s.Store(ctx, job))

	require.NoError(t, e.Apply(ctx, job))
	assert.Equal(t, domain.StatusCompleted, job.Status)
}

func TestEnd_Apply_WakesParentContinuation(t *testing.T) {
	s := memstore.New()
	stream := eventstream.NewFake()
	m := mutator.New(s, stream)
	q := jobqueue.New(domain.ActivityConfiguration{}, s, stream, nil, nil)
	_, err := q.Initialize(context.Background(), nil)
	require.NoError(t, err)
	r := router.New(nil, q)
	d := continuation.New(s, m, r, recoverable.Config{MaxAttempts: 1}, nil)
	c := coordinator.New()
	e := transition.NewEnd(s, m, d, c, nil)
	ctx := context.Background()

	child := &domain.Job{ID: "child", ParentID: "parent", Status: domain.StatusRunning}
	require.NoError(t, s.Store(ctx, child))

	sibling := &domain.Job{ID: "sibling", Status: domain.StatusCreated}
	require.NoError(t, s.Store(ctx, sibling))

	parent := &domain.Job{
		ID:     "parent",
		Status: domain.StatusWaitingForChildren,
		Continuation: &domain.Continuation{
			Type: domain.ContinuationAll,
			Children: []*domain.Continuation{
				{Type: domain.ContinuationSingle, ID: "child", Status: domain.ContinuationReady},
				{Type: domain.ContinuationSingle, ID: "sibling", Status: domain.ContinuationWaiting},
			},
			Status: domain.ContinuationWaiting,
		},
	}
	require.NoError(t, s.Store(ctx, parent))

	require.NoError(t, e.Apply(ctx, child))

	got, err := s.Load(ctx, "sibling")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, got.Status, "dispatching the parent's continuation should route the still-Created sibling")
}

package mutator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/eventstream"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/mutator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store/memstore"
)

func TestMutator_Transition_PersistsAndPublishes(t *testing.T) {
	s := memstore.New()
	stream := eventstream.NewFake()
	m := mutator.New(s, stream)

	job := &domain.Job{ID: "j1", Status: domain.StatusCreated}
	require.NoError(t, m.Transition(context.Background(), job, domain.StatusReady))

	assert.Equal(t, domain.StatusReady, job.Status)

	loaded, err := s.Load(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, loaded.Status)

	snaps := stream.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, domain.StatusReady, snaps[0].Status)
}

func TestMutator_Transition_RejectsIllegalEdge(t *testing.T) {
	s := memstore.New()
	stream := eventstream.NewFake()
	m := mutator.New(s, stream)

	job := &domain.Job{ID: "j1", Status: domain.StatusCreated}
	err := m.Transition(context.Background(), job, domain.StatusRunning)

	require.Error(t, err)
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, domain.StatusCreated, job.Status, "job must not be mutated on a rejected transition")
	assert.Empty(t, stream.Snapshots(), "nothing should publish on a rejected transition")
}

func TestMutator_Persist_PublishesWithoutStatusChange(t *testing.T) {
	s := memstore.New()
	stream := eventstream.NewFake()
	m := mutator.New(s, stream)

	job := &domain.Job{ID: "j1", Status: domain.StatusRunning, DispatchCount: 1}
	require.NoError(t, m.Persist(context.Background(), job))

	loaded, err := s.Load(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.DispatchCount)
	assert.Len(t, stream.Snapshots(), 1)
}

func TestMutator_PersistDrift_PublishesFlaggedSnapshotOnly(t *testing.T) {
	s := memstore.New()
	stream := eventstream.NewFake()
	m := mutator.New(s, stream)

	job := &domain.Job{ID: "j1", Status: domain.StatusRunning}
	m.PersistDrift(context.Background(), job)

	_, err := s.Load(context.Background(), "j1")
	require.Error(t, err, "PersistDrift must not write the store")

	snaps := stream.Snapshots()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].DriftSuspected)
}

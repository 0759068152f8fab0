package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

func TestStatusConstants(t *testing.T) {
	tests := []struct {
		status domain.Status
		want   string
	}{
		{domain.StatusCreated, "CREATED"},
		{domain.StatusReady, "READY"},
		{domain.StatusRunning, "RUNNING"},
		{domain.StatusWaitingForChildren, "WAITING_FOR_CHILDREN"},
		{domain.StatusCompleted, "COMPLETED"},
		{domain.StatusFailed, "FAILED"},
		{domain.StatusPoisoned, "POISONED"},
		{domain.StatusReadyToComplete, "READY_TO_COMPLETE"},
		{domain.StatusReadyToPoison, "READY_TO_POISON"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []domain.Status{domain.StatusCompleted, domain.StatusPoisoned}
	nonTerminal := []domain.Status{
		domain.StatusCreated, domain.StatusReady, domain.StatusRunning,
		domain.StatusWaitingForChildren, domain.StatusFailed,
		domain.StatusReadyToComplete, domain.StatusReadyToPoison,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to domain.Status
		want     bool
	}{
		{domain.StatusCreated, domain.StatusReady, true},
		{domain.StatusReady, domain.StatusRunning, true},
		{domain.StatusRunning, domain.StatusWaitingForChildren, true},
		{domain.StatusRunning, domain.StatusReadyToComplete, true},
		{domain.StatusRunning, domain.StatusReadyToPoison, true},
		{domain.StatusRunning, domain.StatusFailed, true},
		{domain.StatusWaitingForChildren, domain.StatusReadyToComplete, true},
		{domain.StatusWaitingForChildren, domain.StatusReadyToPoison, true},
		{domain.StatusReadyToComplete, domain.StatusCompleted, true},
		{domain.StatusReadyToPoison, domain.StatusPoisoned, true},
		{domain.StatusFailed, domain.StatusReady, true},
		// illegal edges
		{domain.StatusCreated, domain.StatusRunning, false},
		{domain.StatusCompleted, domain.StatusReady, false},
		{domain.StatusPoisoned, domain.StatusReady, false},
		{domain.StatusReady, domain.StatusWaitingForChildren, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, domain.IsValidTransition(tt.from, tt.to))
		})
	}
}

func TestJobClone_IndependentArguments(t *testing.T) {
	job := &domain.Job{ID: "j1", Arguments: []byte("original")}
	clone := job.Clone()
	clone.Arguments[0] = 'X'

	assert.Equal(t, "original", string(job.Arguments), "mutating the clone must not affect the original")
	assert.NotEqual(t, string(job.Arguments), string(clone.Arguments))
}

func TestJobClone_IndependentContinuation(t *testing.T) {
	job := &domain.Job{
		ID: "parent",
		Continuation: &domain.Continuation{
			Type:   domain.ContinuationSingle,
			ID:     "child-1",
			Status: domain.ContinuationWaiting,
		},
	}
	clone := job.Clone()
	clone.Continuation.Status = domain.ContinuationCompleted

	assert.Equal(t, domain.ContinuationWaiting, job.Continuation.Status)
	assert.Equal(t, domain.ContinuationCompleted, clone.Continuation.Status)
}

func TestJob_ToSnapshot(t *testing.T) {
	job := &domain.Job{
		ID:            "j1",
		ActivityType:  "webhook",
		Method:        "Ping",
		Status:        domain.StatusRunning,
		DispatchCount: 2,
	}
	snap := job.ToSnapshot()
	assert.Equal(t, "j1", snap.ID)
	assert.Equal(t, "webhook", snap.ActivityType)
	assert.Equal(t, "Ping", snap.Method)
	assert.Equal(t, domain.StatusRunning, snap.Status)
	assert.Equal(t, 2, snap.DispatchCount)
}

func TestActivityConfiguration_IsDefault(t *testing.T) {
	assert.True(t, domain.ActivityConfiguration{}.IsDefault())
	assert.False(t, domain.ActivityConfiguration{ActivityType: "email"}.IsDefault())
}

package activity

import (
	"context"
	"sync"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

// Registry maps activity types to their executors and is itself a Runtime,
// dispatching each job to the executor registered for its ActivityType.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds an executor. Safe to call concurrently.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.ActivityType()] = e
}

// Get returns the executor for the given activity type.
func (r *Registry) Get(activityType string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[activityType]
	if !ok {
		return nil, &domain.InvalidActivityTypeError{ActivityType: activityType}
	}
	return e, nil
}

// Execute implements Runtime by dispatching job to its registered executor.
func (r *Registry) Execute(ctx context.Context, job *domain.Job) (domain.Result, error) {
	e, err := r.Get(job.ActivityType)
	if err != nil {
		return domain.Result{}, err
	}
	return e.Execute(ctx, job)
}

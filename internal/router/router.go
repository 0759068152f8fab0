// Package router implements the Job Router: maps an activity type to its
// Job Queue, falling back to the default queue for unconfigured types.
package router

import (
	"context"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/jobqueue"
)

// Router dispatches jobs to the queue configured for their activity type.
type Router struct {
	queues   map[string]*jobqueue.Queue
	fallback *jobqueue.Queue
}

// New builds a Router over queues (keyed by activity type) and fallback,
// the unbounded default queue used for any activity type with no
// dedicated entry.
func New(queues map[string]*jobqueue.Queue, fallback *jobqueue.Queue) *Router {
	return &Router{queues: queues, fallback: fallback}
}

// QueueFor returns the queue a job of activityType routes through.
func (r *Router) QueueFor(activityType string) *jobqueue.Queue {
	if q, ok := r.queues[activityType]; ok {
		return q
	}
	return r.fallback
}

// Route writes job onto the queue for its activity type.
func (r *Router) Route(ctx context.Context, job *domain.Job) {
	r.QueueFor(job.ActivityType).Write(ctx, job)
}

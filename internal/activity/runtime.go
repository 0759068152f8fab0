// Package activity defines the activity runtime: the external collaborator
// spec.md treats as opaque, which executes user code for a dispatched job
// and returns a Result. Registry and the sample executors adapt the
// teacher's handler registry to this shape.
package activity

import (
	"context"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

// Runtime executes a job's activity and reports what happened next: a
// terminal value, a further activity graph to wait on, or an error.
type Runtime interface {
	Execute(ctx context.Context, job *domain.Job) (domain.Result, error)
}

// Executor processes jobs of a specific activity type.
type Executor interface {
	Execute(ctx context.Context, job *domain.Job) (domain.Result, error)
	ActivityType() string
}

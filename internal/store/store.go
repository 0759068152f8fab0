// Package store defines the persistence contract the core consumes
// (load/store/loadByStatus/loadSuspended/countSuspended), plus two
// backends: a Postgres-backed implementation and an in-memory one for
// tests and embedding.
package store

import (
	"context"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

// Store is the persistence contract every other component depends on.
// Every method is synchronous from the caller's perspective; a blocking
// backend may run it on a worker goroutine internally.
type Store interface {
	// Load returns the job with the given id, or *domain.NotFoundError.
	Load(ctx context.Context, id string) (*domain.Job, error)

	// LoadByCorrelation returns the root job for a correlation id, or
	// *domain.NotFoundError.
	LoadByCorrelation(ctx context.Context, correlationID string) (*domain.Job, error)

	// LoadByStatus returns every job currently in status. Used by the boot
	// reload and by the periodic liveness sweep.
	LoadByStatus(ctx context.Context, status domain.Status) ([]*domain.Job, error)

	// Store upserts a single job. Failure is retryable and should be
	// surfaced as *domain.StoreFailedError by the caller.
	Store(ctx context.Context, job *domain.Job) error

	// StoreBatch upserts many jobs atomically: all-or-nothing with respect
	// to readers.
	StoreBatch(ctx context.Context, jobs []*domain.Job) error

	// LoadSuspended returns up to max jobs with suspended=true for
	// activityType, in FIFO insertion order (createdUtc then id).
	LoadSuspended(ctx context.Context, activityType string, max int) ([]*domain.Job, error)

	// LoadSuspendedExcluding returns the same, for the default queue: every
	// suspended job whose activity type is not in excludeTypes.
	LoadSuspendedExcluding(ctx context.Context, excludeTypes []string, max int) ([]*domain.Job, error)

	// CountSuspended returns the exact count of suspended jobs for
	// activityType.
	CountSuspended(ctx context.Context, activityType string) (int, error)

	// RecordExecution appends an audit row for one dispatch attempt.
	RecordExecution(ctx context.Context, exec *domain.Execution) error
}

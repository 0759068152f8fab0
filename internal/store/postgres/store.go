// Package postgres is the pgx-backed implementation of store.Store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

// Store is a pgxpool-backed implementation of store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pgxpool with the Store contract.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (s *Store) Load(ctx context.Context, id string) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, correlation_id, parent_id, root_id, activity_type, method, arguments,
		       status, dispatch_count, retry_count, retry_on_count, retry_delay_ms,
		       poison_retry_count, suspended, continuation, created_utc, updated_utc
		FROM jobs
		WHERE id = $1
	`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Kind: "job", ID: id}
		}
		return nil, &domain.StoreFailedError{Op: "Load", Err: err}
	}
	return job, nil
}

func (s *Store) LoadByCorrelation(ctx context.Context, correlationID string) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, correlation_id, parent_id, root_id, activity_type, method, arguments,
		       status, dispatch_count, retry_count, retry_on_count, retry_delay_ms,
		       poison_retry_count, suspended, continuation, created_utc, updated_utc
		FROM jobs
		WHERE correlation_id = $1 AND parent_id = ''
	`, correlationID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Kind: "correlation", ID: correlationID}
		}
		return nil, &domain.StoreFailedError{Op: "LoadByCorrelation", Err: err}
	}
	return job, nil
}

func (s *Store) LoadByStatus(ctx context.Context, status domain.Status) ([]*domain.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, correlation_id, parent_id, root_id, activity_type, method, arguments,
		       status, dispatch_count, retry_count, retry_on_count, retry_delay_ms,
		       poison_retry_count, suspended, continuation, created_utc, updated_utc
		FROM jobs
		WHERE status = $1
		ORDER BY created_utc ASC, id ASC
	`, string(status))
	if err != nil {
		return nil, &domain.StoreFailedError{Op: "LoadByStatus", Err: err}
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *Store) Store(ctx context.Context, job *domain.Job) error {
	if err := s.upsert(ctx, s.pool, job); err != nil {
		return &domain.StoreFailedError{Op: "Store", Err: err}
	}
	return nil
}

func (s *Store) StoreBatch(ctx context.Context, jobs []*domain.Job) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &domain.StoreFailedError{Op: "StoreBatch", Err: err}
	}
	defer tx.Rollback(ctx)

	for _, job := range jobs {
		if err := s.upsert(ctx, tx, job); err != nil {
			return &domain.StoreFailedError{Op: "StoreBatch", Err: err}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return &domain.StoreFailedError{Op: "StoreBatch", Err: err}
	}
	return nil
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx, letting upsert run
// inside or outside a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) upsert(ctx context.Context, q execer, job *domain.Job) error {
	cont, err := marshalContinuation(job.Continuation)
	if err != nil {
		return fmt.Errorf("marshal continuation for job %s: %w", job.ID, err)
	}
	now := time.Now().UTC()
	if job.CreatedUtc.IsZero() {
		job.CreatedUtc = now
	}
	job.UpdatedUtc = now

	_, err = q.Exec(ctx, `
		INSERT INTO jobs
			(id, correlation_id, parent_id, root_id, activity_type, method, arguments,
			 status, dispatch_count, retry_count, retry_on_count, retry_delay_ms,
			 poison_retry_count, suspended, continuation, created_utc, updated_utc)
		VALUES
			($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			dispatch_count = EXCLUDED.dispatch_count,
			retry_count = EXCLUDED.retry_count,
			retry_on_count = EXCLUDED.retry_on_count,
			poison_retry_count = EXCLUDED.poison_retry_count,
			suspended = EXCLUDED.suspended,
			continuation = EXCLUDED.continuation,
			updated_utc = EXCLUDED.updated_utc
	`,
		job.ID, job.CorrelationID, job.ParentID, job.RootID, job.ActivityType, job.Method, job.Arguments,
		string(job.Status), job.DispatchCount, job.RetryCount, job.RetryOnCount, job.RetryDelay.Milliseconds(),
		job.PoisonRetryCount, job.Suspended, cont, job.CreatedUtc, job.UpdatedUtc,
	)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) LoadSuspended(ctx context.Context, activityType string, max int) ([]*domain.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, correlation_id, parent_id, root_id, activity_type, method, arguments,
		       status, dispatch_count, retry_count, retry_on_count, retry_delay_ms,
		       poison_retry_count, suspended, continuation, created_utc, updated_utc
		FROM jobs
		WHERE suspended = true AND activity_type = $1
		ORDER BY created_utc ASC, id ASC
		LIMIT $2
	`, activityType, max)
	if err != nil {
		return nil, &domain.StoreFailedError{Op: "LoadSuspended", Err: err}
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *Store) LoadSuspendedExcluding(ctx context.Context, excludeTypes []string, max int) ([]*domain.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, correlation_id, parent_id, root_id, activity_type, method, arguments,
		       status, dispatch_count, retry_count, retry_on_count, retry_delay_ms,
		       poison_retry_count, suspended, continuation, created_utc, updated_utc
		FROM jobs
		WHERE suspended = true AND NOT (activity_type = ANY($1))
		ORDER BY created_utc ASC, id ASC
		LIMIT $2
	`, excludeTypes, max)
	if err != nil {
		return nil, &domain.StoreFailedError{Op: "LoadSuspendedExcluding", Err: err}
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *Store) CountSuspended(ctx context.Context, activityType string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM jobs WHERE suspended = true AND activity_type = $1
	`, activityType).Scan(&n)
	if err != nil {
		return 0, &domain.StoreFailedError{Op: "CountSuspended", Err: err}
	}
	return n, nil
}

func (s *Store) RecordExecution(ctx context.Context, exec *domain.Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	if exec.ExecutedAt.IsZero() {
		exec.ExecutedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_executions
			(id, job_id, attempt, status, duration_ms, error, executed_at)
		VALUES
			($1,$2,$3,$4,$5,$6,$7)
	`, exec.ID, exec.JobID, exec.Attempt, string(exec.Status), exec.DurationMs, exec.Error, exec.ExecutedAt)
	if err != nil {
		return &domain.StoreFailedError{Op: "RecordExecution", Err: err}
	}
	return nil
}

type row interface {
	Scan(dest ...any) error
}

func scanJob(r row) (*domain.Job, error) {
	var (
		job          domain.Job
		statusStr    string
		retryDelayMs int64
		contRaw      []byte
	)
	err := r.Scan(
		&job.ID, &job.CorrelationID, &job.ParentID, &job.RootID, &job.ActivityType, &job.Method, &job.Arguments,
		&statusStr, &job.DispatchCount, &job.RetryCount, &job.RetryOnCount, &retryDelayMs,
		&job.PoisonRetryCount, &job.Suspended, &contRaw, &job.CreatedUtc, &job.UpdatedUtc,
	)
	if err != nil {
		return nil, err
	}
	job.Status = domain.Status(statusStr)
	job.RetryDelay = time.Duration(retryDelayMs) * time.Millisecond
	cont, err := unmarshalContinuation(contRaw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal continuation for job %s: %w", job.ID, err)
	}
	job.Continuation = cont
	return &job, nil
}

func scanJobs(rows pgx.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, &domain.StoreFailedError{Op: "scan", Err: err}
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreFailedError{Op: "scan", Err: err}
	}
	return jobs, nil
}

func marshalContinuation(c *domain.Continuation) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func unmarshalContinuation(raw []byte) (*domain.Continuation, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var c domain.Continuation
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

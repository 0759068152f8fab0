// Package jobqueue implements the bounded, per-activity-type Job Queue
// (spec.md §4.4): an in-memory FIFO buffer that suspends overflow to the
// persistence store and reloads it on drain.
package jobqueue

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/eventstream"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/recoverable"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store"
	"github.com/ramiqadoumi/go-durable-orchestrator/pkg/telemetry"
)

type readResult struct {
	job *domain.Job
	err error
}

// Queue is a single activity type's (or the default queue's) in-memory
// buffer plus its suspended-overflow bookkeeping.
type Queue struct {
	cfg          domain.ActivityConfiguration
	excludeTypes []string // only meaningful for the default queue
	store        store.Store
	stream       eventstream.Stream
	log          *slog.Logger
	action       *recoverable.Action

	mu             sync.Mutex
	buffer         []*domain.Job
	suspendedCount int
	initialized    bool
	waiters        []chan readResult
	shutdown       bool
}

// Config returns the activity configuration this queue was built from.
func (q *Queue) Config() domain.ActivityConfiguration { return q.cfg }

// metricsLabel returns the activity type this queue reports gauges under,
// using a recognizable label for the default/fallback queue.
func (q *Queue) metricsLabel() string {
	if q.cfg.IsDefault() {
		return "_default"
	}
	return q.cfg.ActivityType
}

// reportMetrics publishes the current buffer depth and suspended count to
// the orchestrator_jobqueue_* gauges.
func (q *Queue) reportMetrics() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reportMetricsLocked()
}

// reportMetricsLocked is reportMetrics for callers that already hold q.mu.
func (q *Queue) reportMetricsLocked() {
	label := q.metricsLabel()
	telemetry.QueueDepth.WithLabelValues(label).Set(float64(len(q.buffer)))
	telemetry.QueueSuspendedCount.WithLabelValues(label).Set(float64(q.suspendedCount))
}

// New constructs an uninitialized Queue for cfg. excludeTypes is only
// consulted by the default queue (cfg.IsDefault()) during suspended reload.
func New(cfg domain.ActivityConfiguration, s store.Store, stream eventstream.Stream, excludeTypes []string, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		cfg:          cfg,
		excludeTypes: excludeTypes,
		store:        s,
		stream:       stream,
		log:          log,
		action:       recoverable.New(recoverable.Config{MaxAttempts: 1}, log, nil),
	}
}

// Initialize partitions candidates into this queue's matching subset and
// the remainder, admits up to maxQueueLength of the matching subset (FIFO
// order preserved), and primes suspendedCount from the store. Must be
// called exactly once.
func (q *Queue) Initialize(ctx context.Context, candidates []*domain.Job) ([]*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.initialized {
		return nil, &domain.AlreadyInitializedError{ActivityType: q.cfg.ActivityType}
	}
	q.initialized = true

	var matching, remainder []*domain.Job
	for _, j := range candidates {
		if q.matches(j.ActivityType) {
			matching = append(matching, j)
		} else {
			remainder = append(remainder, j)
		}
	}

	limit := len(matching)
	if q.cfg.MaxQueueLength > 0 && limit > q.cfg.MaxQueueLength {
		limit = q.cfg.MaxQueueLength
	}
	q.buffer = append(q.buffer, matching[:limit]...)
	remainder = append(remainder, matching[limit:]...)

	n, err := q.store.CountSuspended(ctx, q.cfg.ActivityType)
	if err != nil {
		return remainder, err
	}
	q.suspendedCount = n
	q.reportMetricsLocked()
	return remainder, nil
}

func (q *Queue) matches(activityType string) bool {
	if q.cfg.IsDefault() {
		for _, t := range q.excludeTypes {
			if t == activityType {
				return false
			}
		}
		return true
	}
	return activityType == q.cfg.ActivityType
}

// Write admits job to the buffer if there is room and nothing is still
// draining from the suspended pool; otherwise it spills job to the store
// as suspended. The default queue never suspends.
func (q *Queue) Write(ctx context.Context, job *domain.Job) {
	q.mu.Lock()
	hasRoom := q.cfg.IsDefault() || ((q.cfg.MaxQueueLength <= 0 || len(q.buffer) < q.cfg.MaxQueueLength) && q.suspendedCount == 0)
	if hasRoom {
		q.buffer = append(q.buffer, job)
		q.wakeOneLocked()
		q.reportMetricsLocked()
		q.mu.Unlock()
		return
	}
	job.Suspended = true
	q.suspendedCount++
	q.reportMetricsLocked()
	q.mu.Unlock()

	if err := q.store.Store(ctx, job); err != nil {
		// Failures of store.store for suspended items are ignored: the job
		// is already durable from earlier states; worst case it stays with
		// its previous suspended value and is reloaded via status scan on
		// restart. Published as a drift-flagged snapshot so operators can
		// see it instead of it being silently swallowed (spec.md §9).
		q.log.Warn("suspend write failed, job remains suspended in memory only",
			"job_id", job.ID, "activity_type", job.ActivityType, "error", err)
		snap := job.ToSnapshot()
		snap.DriftSuspected = true
		q.stream.Publish(ctx, snap)
	}
}

// wakeOneLocked hands the buffer head to the oldest parked reader, if any.
// Must be called with q.mu held.
func (q *Queue) wakeOneLocked() {
	if len(q.waiters) == 0 || len(q.buffer) == 0 {
		return
	}
	ch := q.waiters[0]
	q.waiters = q.waiters[1:]
	job := q.buffer[0]
	q.buffer = q.buffer[1:]
	ch <- readResult{job: job}
}

// Read pops the buffer head, reloading from the suspended pool first if
// the buffer is empty, or parks the caller until a Write admits an item or
// the queue shuts down.
func (q *Queue) Read(ctx context.Context) (*domain.Job, error) {
	q.mu.Lock()
	if job := q.popLocked(); job != nil {
		q.reportMetricsLocked()
		q.mu.Unlock()
		return job, nil
	}
	suspended := q.suspendedCount
	q.mu.Unlock()

	if suspended > 0 {
		if job, ok := q.tryReload(ctx); ok {
			return job, nil
		}
		// Reload failed or yielded nothing this attempt; park below, to be
		// retried on the next Write wake-up.
	}

	return q.park(ctx)
}

func (q *Queue) popLocked() *domain.Job {
	if len(q.buffer) == 0 {
		return nil
	}
	job := q.buffer[0]
	q.buffer = q.buffer[1:]
	return job
}

// tryReload loads up to min(maxQueueLength, suspendedCount) suspended jobs,
// clears each one's suspended flag through the recoverable action, and
// appends the successfully-cleared jobs to the buffer before popping the
// head. Load failures are retried once per call to Read.
func (q *Queue) tryReload(ctx context.Context) (*domain.Job, bool) {
	q.mu.Lock()
	n := q.suspendedCount
	q.mu.Unlock()
	if q.cfg.MaxQueueLength > 0 && n > q.cfg.MaxQueueLength {
		n = q.cfg.MaxQueueLength
	}
	if n <= 0 {
		return nil, false
	}

	loaded, err := q.loadSuspendedWithOneRetry(ctx, n)
	if err != nil || len(loaded) == 0 {
		return nil, false
	}

	sortByCreated(loaded)

	cleared := make([]*domain.Job, 0, len(loaded))
	for _, job := range loaded {
		job.Suspended = false
		stored := false
		q.action.Run(ctx, func() error {
			return q.store.Store(ctx, job)
		}, func() {
			cleared = append(cleared, job)
			stored = true
		})
		if !stored {
			snap := job.ToSnapshot()
			snap.DriftSuspected = true
			q.stream.Publish(ctx, snap)
		}
	}
	if len(cleared) == 0 {
		return nil, false
	}

	q.mu.Lock()
	q.suspendedCount -= len(cleared)
	if q.suspendedCount < 0 {
		q.suspendedCount = 0
	}
	q.buffer = append(q.buffer, cleared...)
	job := q.popLocked()
	q.reportMetricsLocked()
	q.mu.Unlock()
	return job, job != nil
}

func (q *Queue) loadSuspendedWithOneRetry(ctx context.Context, n int) ([]*domain.Job, error) {
	var load func() ([]*domain.Job, error)
	if q.cfg.IsDefault() {
		load = func() ([]*domain.Job, error) { return q.store.LoadSuspendedExcluding(ctx, q.excludeTypes, n) }
	} else {
		load = func() ([]*domain.Job, error) { return q.store.LoadSuspended(ctx, q.cfg.ActivityType, n) }
	}
	loaded, err := load()
	if err != nil {
		q.log.Warn("suspended reload failed, retrying once", "activity_type", q.cfg.ActivityType, "error", err)
		loaded, err = load()
	}
	return loaded, err
}

// park blocks the caller on a fresh channel until a Write admits directly
// to it, or the queue shuts down, or ctx is cancelled.
func (q *Queue) park(ctx context.Context) (*domain.Job, error) {
	ch := make(chan readResult, 1)

	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		return nil, &domain.ShutdownError{}
	}
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case res := <-ch:
		return res.job, res.err
	case <-ctx.Done():
		q.removeWaiter(ch)
		return nil, ctx.Err()
	}
}

func (q *Queue) removeWaiter(ch chan readResult) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiters {
		if w == ch {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

// Shutdown wakes every parked reader with a ShutdownError and marks the
// queue so future Read calls fail the same way instead of parking.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shutdown = true
	for _, w := range q.waiters {
		w <- readResult{err: &domain.ShutdownError{}}
	}
	q.waiters = nil
}

func sortByCreated(jobs []*domain.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedUtc.Equal(jobs[j].CreatedUtc) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedUtc.Before(jobs[j].CreatedUtc)
	})
}

// Package scheduler is the process that owns the orchestrator core end to
// end: it reloads in-flight jobs at boot, runs the scheduler loop
// (internal/engine) against every configured queue, and leader-elects a
// periodic ContinuationLiveness sweep so exactly one instance repairs
// crash-interrupted dispatches at a time.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/continuation"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/engine"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/leaderlock"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store"
	"github.com/ramiqadoumi/go-durable-orchestrator/pkg/telemetry"
)

// Scheduler boots the engine against every queue and drives the
// leader-elected liveness sweep alongside it.
type Scheduler struct {
	store    store.Store
	engine   *engine.Engine
	liveness *continuation.Liveness
	lock     *leaderlock.Lock
	interval time.Duration
	log      *slog.Logger
}

// New wires a Scheduler.
func New(s store.Store, eng *engine.Engine, liveness *continuation.Liveness, lock *leaderlock.Lock, sweepInterval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{store: s, engine: eng, liveness: liveness, lock: lock, interval: sweepInterval, log: log}
}

// Reload re-enqueues every job left Ready or Running from a previous
// process's lifetime. Running jobs are demoted back to Ready rather than
// assumed to still have a worker holding them — a crash never leaves a
// job mid-execution with anyone left to finish it.
func (s *Scheduler) Reload(ctx context.Context) error {
	for _, status := range []domain.Status{domain.StatusReady, domain.StatusRunning} {
		jobs, err := s.store.LoadByStatus(ctx, status)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			s.engine.Requeue(ctx, job)
		}
		s.log.Info("reloaded jobs", "status", status, "count", len(jobs))
	}
	return nil
}

// Run starts the engine's poll loop and the liveness sweep, blocking
// until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.engine.Run(ctx)
	s.sweepLoop(ctx)
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.lock.Release(context.Background())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.lock.AcquireOrRenew(ctx) {
				continue
			}
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	start := time.Now()
	defer func() { telemetry.LivenessSweepDurationSeconds.Observe(time.Since(start).Seconds()) }()

	parents, err := s.store.LoadByStatus(ctx, domain.StatusWaitingForChildren)
	if err != nil {
		s.log.Error("liveness sweep: load waiting parents failed", "error", err)
		return
	}
	for _, parent := range parents {
		if err := s.liveness.Verify(ctx, parent.ID); err != nil {
			s.log.Error("liveness sweep: verify failed", "job_id", parent.ID, "error", err)
		}
	}
}

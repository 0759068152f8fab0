// Package memstore is an in-memory implementation of store.Store, used by
// package tests and by embedders that don't want a Postgres dependency.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

// Store is a mutex-guarded map implementation of store.Store.
type Store struct {
	mu         sync.Mutex
	jobs       map[string]*domain.Job
	byCorr     map[string]string // correlationId -> root job id
	executions []*domain.Execution
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs:   make(map[string]*domain.Job),
		byCorr: make(map[string]string),
	}
}

func (s *Store) Load(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "job", ID: id}
	}
	return job.Clone(), nil
}

func (s *Store) LoadByCorrelation(_ context.Context, correlationID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCorr[correlationID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "correlation", ID: correlationID}
	}
	return s.jobs[id].Clone(), nil
}

func (s *Store) LoadByStatus(_ context.Context, status domain.Status) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, job := range s.jobs {
		if job.Status == status {
			out = append(out, job.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *Store) Store(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(job)
	return nil
}

func (s *Store) StoreBatch(_ context.Context, jobs []*domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		s.putLocked(job)
	}
	return nil
}

func (s *Store) putLocked(job *domain.Job) {
	clone := job.Clone()
	s.jobs[clone.ID] = clone
	if clone.ParentID == "" {
		s.byCorr[clone.CorrelationID] = clone.ID
	}
}

func (s *Store) LoadSuspended(_ context.Context, activityType string, max int) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, job := range s.jobs {
		if job.Suspended && job.ActivityType == activityType {
			out = append(out, job.Clone())
		}
	}
	sortByCreated(out)
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (s *Store) LoadSuspendedExcluding(_ context.Context, excludeTypes []string, max int) ([]*domain.Job, error) {
	excluded := make(map[string]bool, len(excludeTypes))
	for _, t := range excludeTypes {
		excluded[t] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, job := range s.jobs {
		if job.Suspended && !excluded[job.ActivityType] {
			out = append(out, job.Clone())
		}
	}
	sortByCreated(out)
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (s *Store) CountSuspended(_ context.Context, activityType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if job.Suspended && job.ActivityType == activityType {
			n++
		}
	}
	return n, nil
}

func (s *Store) RecordExecution(_ context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, exec)
	return nil
}

// Executions returns a snapshot of recorded executions, for assertions in
// tests of dependent packages.
func (s *Store) Executions() []*domain.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Execution, len(s.executions))
	copy(out, s.executions)
	return out
}

func sortByCreated(jobs []*domain.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedUtc.Equal(jobs[j].CreatedUtc) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedUtc.Before(jobs[j].CreatedUtc)
	})
}

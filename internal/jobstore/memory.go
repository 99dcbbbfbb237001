// Package jobstore provides the JobStore implementations: an in-memory map
// for single-process deployments and a Postgres-backed store shared between
// the API and the standalone worker.
package jobstore

import (
	"context"
	"sync"
	"time"

	"listingpilot/internal/domain"
)

// Memory keeps jobs in a guarded map. It satisfies the full store contract
// (atomic per-job updates, snapshot reads) and is the default backend when no
// DATABASE_URL is configured.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

func (m *Memory) Create(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	stored := job.Clone()
	if stored.Stage == "" {
		stored.Stage = domain.StagePending
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.jobs[stored.ID] = stored
	job.CreatedAt = stored.CreatedAt
	job.UpdatedAt = stored.UpdatedAt
	job.Stage = stored.Stage
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, id string, update domain.JobUpdate) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := job.Apply(update, m.now()); err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

func (m *Memory) PurgeTerminal(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := m.now().Add(-olderThan)
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int
	for id, job := range m.jobs {
		if job.Stage.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			purged++
		}
	}
	return purged, nil
}

// Len reports the number of retained jobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

var _ domain.JobStore = (*Memory)(nil)

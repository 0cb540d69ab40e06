package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joelkehle/clinical-handoff/internal/handoff"
)

type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, noteID string) (Job, error) {
	now := s.now().UTC()
	j := &Job{
		ID:        uuid.NewString(),
		NoteID:    noteID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.jobs[j.ID] = j
	s.order = append(s.order, j.ID)
	s.mu.Unlock()
	return *j, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

func (s *MemoryStore) SetStage(_ context.Context, id, stage string) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusRunning
		j.Stage = stage
	})
}

func (s *MemoryStore) Complete(_ context.Context, id string, summary handoff.StructuredSummary) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Summary = &summary
	})
}

func (s *MemoryStore) Fail(_ context.Context, id, stage, reason string) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.FailedStage = stage
		j.Error = reason
	})
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, *s.jobs[s.order[i]])
	}
	return out, nil
}

func (s *MemoryStore) update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(j)
	j.UpdatedAt = s.now().UTC()
	return nil
}

package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps jobs in process memory for local/dev use.
type InMemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	order []string // insertion order, for stable listings
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{jobs: make(map[string]*Job)}
}

func (s *InMemoryStore) Create(_ context.Context, job Job) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Status = StatusScheduled
	job.Attempts = 0

	stored := job
	s.jobs[job.ID] = &stored
	s.order = append(s.order, job.ID)
	return job, nil
}

func (s *InMemoryStore) List(_ context.Context, ownerID, kind string, filter ListFilter) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Job
	for _, id := range s.order {
		j := s.jobs[id]
		if j.OwnerID != ownerID || j.Kind != kind {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Platform != "" && j.Platform != filter.Platform {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (s *InMemoryStore) Cancel(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.OwnerID != ownerID {
		return ErrNotFound
	}
	if j.Status != StatusScheduled {
		return ErrNotCancellable
	}
	j.Status = StatusCancelled
	return nil
}

func (s *InMemoryStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}
	var claimed []Job
	for _, id := range s.order {
		if len(claimed) >= limit {
			break
		}
		j := s.jobs[id]
		if j.Status != StatusScheduled || j.ScheduledAt.After(now) {
			continue
		}
		j.Status = StatusProcessing
		j.Attempts++
		at := now
		j.LastAttemptAt = &at
		claimed = append(claimed, *j)
	}
	return claimed, nil
}

func (s *InMemoryStore) MarkResult(_ context.Context, id, status, errorMessage, externalServiceID string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != StatusProcessing {
		return ErrNotFound
	}
	j.Status = status
	j.ErrorMessage = errorMessage
	j.ExternalServiceID = externalServiceID
	if status != StatusFailed {
		at := completedAt
		j.CompletedAt = &at
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

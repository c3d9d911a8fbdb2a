package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps notifications in process memory for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	byUID map[string][]Notification
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byUID: make(map[string][]Notification)}
}

func (s *InMemoryStore) Insert(_ context.Context, n Notification) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Type == "" {
		n.Type = TypeInfo
	}
	s.byUID[n.UserID] = append(s.byUID[n.UserID], n)
	return n, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	arr := s.byUID[userID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	// Newest first.
	out := make([]Notification, 0, limit)
	for i := len(arr) - 1; i >= len(arr)-limit; i-- {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

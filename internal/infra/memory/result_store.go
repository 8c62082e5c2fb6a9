package memory

import (
	"context"
	"sync"

	"quiz-engine/internal/domain"
)

// ResultStore keeps completed results per user, newest first.
type ResultStore struct {
	mu     sync.RWMutex
	byUser map[string][]domain.Result
}

func NewResultStore() *ResultStore {
	return &ResultStore{byUser: make(map[string][]domain.Result)}
}

func (s *ResultStore) SaveResult(_ context.Context, result domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[result.UserID] = append([]domain.Result{result}, s.byUser[result.UserID]...)
	return nil
}

// ListResults returns up to limit results for userID; limit <= 0 returns all.
func (s *ResultStore) ListResults(_ context.Context, userID string, limit int) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := s.byUser[userID]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]domain.Result, len(results))
	copy(out, results)
	return out, nil
}

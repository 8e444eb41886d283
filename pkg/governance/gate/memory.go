package gate

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process ChallengeStore. Expired entries are dropped
// lazily on Put.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
}

// NewMemoryStore creates an empty in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{challenges: make(map[string]*Challenge)}
}

// Put stores c under key.
func (s *MemoryStore) Put(ctx context.Context, key string, c *Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, existing := range s.challenges {
		if existing.Expired(now) {
			delete(s.challenges, k)
		}
	}
	copied := *c
	s.challenges[key] = &copied
	return nil
}

// Take returns and removes the challenge under key.
func (s *MemoryStore) Take(ctx context.Context, key string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[key]
	if !ok {
		return nil, nil
	}
	delete(s.challenges, key)
	return c, nil
}

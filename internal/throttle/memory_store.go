package throttle

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process counter backend. All mutations happen
// under one mutex, which gives Incr its required atomicity.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Attempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]*Attempt{}}
}

func (s *MemoryStore) Incr(ctx context.Context, identity string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.entries[identity]
	if a == nil {
		a = &Attempt{Identity: identity}
		s.entries[identity] = a
	}
	a.Count++
	return a.Count, nil
}

func (s *MemoryStore) Lock(ctx context.Context, identity string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.entries[identity]
	if a == nil {
		a = &Attempt{Identity: identity}
		s.entries[identity] = a
	}
	a.LockedUntil = until
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, identity string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.entries[identity]
	if a == nil {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (s *MemoryStore) Reset(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identity)
	return nil
}

package session

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu      sync.Mutex
	byToken map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byToken: map[string]*Session{}}
}

func (s *MemoryStore) Put(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *sess
	s.byToken[sess.Token] = &c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byToken[token]; ok {
		c := *sess
		return &c, nil
	}
	return nil, ErrSessionNotFound
}

func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byToken, token)
	return nil
}

func (s *MemoryStore) DeleteByUser(ctx context.Context, userID, keepToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.byToken {
		if sess.UserID == userID && token != keepToken {
			delete(s.byToken, token)
		}
	}
	return nil
}

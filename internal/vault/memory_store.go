package vault

import (
	"context"
	"encoding/hex"
	"sync"
)

// MemoryUserStore is the in-process UserStore, used by tests and
// single-node development setups.
type MemoryUserStore struct {
	mu      sync.Mutex
	byIndex map[string]*AdminUser
	byID    map[string]*AdminUser
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byIndex: map[string]*AdminUser{},
		byID:    map[string]*AdminUser{},
	}
}

func cloneUser(u *AdminUser) *AdminUser {
	c := *u
	return &c
}

func (s *MemoryUserStore) Add(ctx context.Context, u *AdminUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := hex.EncodeToString(u.IdentityIndex)
	if _, exists := s.byIndex[key]; exists {
		return ErrDuplicateUser
	}
	c := cloneUser(u)
	s.byIndex[key] = c
	s.byID[u.ID] = c
	return nil
}

func (s *MemoryUserStore) FindByIndex(ctx context.Context, index []byte) (*AdminUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byIndex[hex.EncodeToString(index)]; ok {
		return cloneUser(u), nil
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStore) FindByID(ctx context.Context, id string) (*AdminUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[id]; ok {
		return cloneUser(u), nil
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStore) Update(ctx context.Context, u *AdminUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[u.ID]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.byIndex, hex.EncodeToString(old.IdentityIndex))
	c := cloneUser(u)
	s.byID[u.ID] = c
	s.byIndex[hex.EncodeToString(u.IdentityIndex)] = c
	return nil
}

func (s *MemoryUserStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.byIndex, hex.EncodeToString(u.IdentityIndex))
	delete(s.byID, id)
	return nil
}

func (s *MemoryUserStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.byID)), nil
}

func (s *MemoryUserStore) CountByCapability(ctx context.Context, c Capability) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.byID {
		if u.Capability == c {
			n++
		}
	}
	return n, nil
}

// MemoryMetaStore holds the single deployment meta record in memory.
type MemoryMetaStore struct {
	mu   sync.Mutex
	meta *Meta
}

func NewMemoryMetaStore() *MemoryMetaStore { return &MemoryMetaStore{} }

func (s *MemoryMetaStore) Load(ctx context.Context) (*Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return nil, ErrNoMeta
	}
	c := *s.meta
	return &c, nil
}

func (s *MemoryMetaStore) Save(ctx context.Context, m *Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *m
	s.meta = &c
	return nil
}

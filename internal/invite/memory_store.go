package invite

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/chobbledotcom/tickets-sub001/internal/vault"
)

type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Invite
	byHash map[string]*Invite
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]*Invite{}, byHash: map[string]*Invite{}}
}

func cloneInvite(i *Invite) *Invite {
	c := *i
	if i.ConsumedAt != nil {
		at := *i.ConsumedAt
		c.ConsumedAt = &at
	}
	return &c
}

func (s *MemoryStore) Add(ctx context.Context, i *Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneInvite(i)
	s.byID[i.ID] = c
	s.byHash[hex.EncodeToString(i.CodeHash)] = c
	return nil
}

func (s *MemoryStore) FindByCodeHash(ctx context.Context, hash []byte) (*Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byHash[hex.EncodeToString(hash)]; ok {
		return cloneInvite(i), nil
	}
	return nil, vault.ErrInvalidInvite
}

func (s *MemoryStore) Consume(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok || i.ConsumedAt != nil {
		return vault.ErrInvalidInvite
	}
	i.ConsumedAt = &at
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return vault.ErrInvalidInvite
	}
	i.ConsumedAt = nil
	return nil
}

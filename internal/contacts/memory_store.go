package contacts

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore is an in-process Store used by the memory-queue setup and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	contacts map[int64]*Contact
	saves    int
}

// NewMemoryStore seeds a store with copies of the given contacts.
func NewMemoryStore(seed ...*Contact) *MemoryStore {
	s := &MemoryStore{contacts: make(map[int64]*Contact)}
	for _, c := range seed {
		s.contacts[c.ID] = clone(c)
	}
	return s
}

// Get returns a copy so callers cannot mutate stored state without Save.
func (s *MemoryStore) Get(_ context.Context, id int64) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(c), nil
}

// Save replaces the stored contact (last write wins).
func (s *MemoryStore) Save(_ context.Context, contact *Contact) error {
	contact.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[contact.ID] = clone(contact)
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func clone(c *Contact) *Contact {
	if c == nil {
		return nil
	}
	out := *c
	if c.CustomAttributes != nil {
		out.CustomAttributes = maps.Clone(c.CustomAttributes)
	}
	return &out
}

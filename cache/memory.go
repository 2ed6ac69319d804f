package cache

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	caches map[string]map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		caches: make(map[string]map[string]*Entry),
	}
}

// Names returns the names of all caches in sorted order.
func (s *MemoryStore) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Open creates the named cache if it does not exist.
func (s *MemoryStore) Open(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.caches[name]; !ok {
		s.caches[name] = make(map[string]*Entry)
	}
	return nil
}

// Drop deletes the named cache and everything in it.
func (s *MemoryStore) Drop(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.caches[name]
	delete(s.caches, name)
	return ok, nil
}

// Get returns a copy of the stored entry. Returns (nil, false, nil) on miss.
func (s *MemoryStore) Get(_ context.Context, name, key string) (*Entry, bool, error) {
	s.mu.RLock()
	entry, ok := s.caches[name][key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	return cloneEntry(entry), true, nil
}

// Set stores a copy of entry, creating the cache when needed.
func (s *MemoryStore) Set(_ context.Context, name string, entry *Entry) error {
	if err := ValidateKey(entry.Key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.caches[name]
	if !ok {
		c = make(map[string]*Entry)
		s.caches[name] = c
	}
	c[entry.Key] = cloneEntry(entry)
	return nil
}

// Delete removes an entry. Idempotent - no error on miss.
func (s *MemoryStore) Delete(_ context.Context, name, key string) error {
	s.mu.Lock()
	delete(s.caches[name], key)
	s.mu.Unlock()
	return nil
}

// Keys returns the keys of the named cache in sorted order.
func (s *MemoryStore) Keys(_ context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.caches[name]
	if !ok {
		return nil, ErrUnknownCache
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func cloneEntry(e *Entry) *Entry {
	c := *e
	c.Header = e.Header.Clone()
	c.Body = append([]byte(nil), e.Body...)
	return &c
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

package storage

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore keeps slots in a map for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value stored under key and whether it exists.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]

	return value, ok, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	return s.Apply(ctx, NewMutation().WithSet(key, value))
}

// Remove deletes key.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	return s.Apply(ctx, Mutation{}.WithRemove(key))
}

// Apply performs the mutation under a single lock.
func (s *MemoryStore) Apply(_ context.Context, mutation Mutation) error {
	if err := mutation.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	maps.Copy(s.values, mutation.Set)

	for _, key := range mutation.Remove {
		delete(s.values, key)
	}

	return nil
}

// Snapshot returns a copy of all stored values.
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.values)
}

package storage

//go:generate $MOCKGEN -source=storage.go -destination=mocks/storage_mock.go

import (
	"context"
	"errors"
)

// ErrEmptyKey indicates that an empty key was used.
var ErrEmptyKey = errors.New("storage key cannot be empty")

// Store is a session-scoped key/value store.
type Store interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Apply performs all writes and removals of the mutation atomically.
	Apply(ctx context.Context, mutation Mutation) error
}

// Mutation is a set of writes and removals applied together.
type Mutation struct {
	// Set holds the values to write.
	Set map[string]string
	// Remove lists the keys to delete.
	Remove []string
}

// NewMutation returns an empty mutation.
func NewMutation() Mutation {
	return Mutation{Set: make(map[string]string)}
}

// WithSet adds a write to the mutation.
func (m Mutation) WithSet(key, value string) Mutation {
	if m.Set == nil {
		m.Set = make(map[string]string)
	}

	m.Set[key] = value

	return m
}

// WithRemove adds a removal to the mutation.
func (m Mutation) WithRemove(keys ...string) Mutation {
	m.Remove = append(m.Remove, keys...)

	return m
}

// IsEmpty reports whether the mutation changes nothing.
func (m Mutation) IsEmpty() bool {
	return len(m.Set) == 0 && len(m.Remove) == 0
}

func (m Mutation) validate() error {
	for key := range m.Set {
		if key == "" {
			return ErrEmptyKey
		}
	}

	for _, key := range m.Remove {
		if key == "" {
			return ErrEmptyKey
		}
	}

	return nil
}

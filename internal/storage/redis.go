package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmptyNamespace indicates that a Redis store was created without a session namespace.
var ErrEmptyNamespace = errors.New("redis session namespace cannot be empty")

// RedisStore keeps slots in Redis under "<prefix>:<namespace>:<key>".
// Every write refreshes the key lifetime, so slots end with the session.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// RedisKeyPrefix is the first component of every key written by RedisStore.
const RedisKeyPrefix = "sso-keeper"

// NewRedisStore creates a RedisStore. A zero ttl keeps keys until they are removed.
func NewRedisStore(client redis.UniversalClient, namespace string, ttl time.Duration) (*RedisStore, error) {
	if namespace == "" {
		return nil, ErrEmptyNamespace
	}

	return &RedisStore{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
	}, nil
}

// Ping verifies the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}

	return nil
}

// Get returns the value stored under key and whether it exists.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	value, err := s.client.Get(ctx, s.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return value, true, nil
}

// Set stores value under key.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.Apply(ctx, NewMutation().WithSet(key, value))
}

// Remove deletes key.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return s.Apply(ctx, Mutation{}.WithRemove(key))
}

// Apply sends the mutation in a single MULTI/EXEC transaction.
func (s *RedisStore) Apply(ctx context.Context, mutation Mutation) error {
	if err := mutation.validate(); err != nil {
		return err
	}

	if mutation.IsEmpty() {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range mutation.Set {
			pipe.Set(ctx, s.redisKey(key), value, s.ttl)
		}

		if len(mutation.Remove) > 0 {
			keys := make([]string, 0, len(mutation.Remove))
			for _, key := range mutation.Remove {
				keys = append(keys, s.redisKey(key))
			}

			pipe.Del(ctx, keys...)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply session mutation: %w", err)
	}

	return nil
}

func (s *RedisStore) redisKey(key string) string {
	return RedisKeyPrefix + ":" + s.namespace + ":" + key
}

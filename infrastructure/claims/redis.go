// Package claims provides short-lived exclusive claims on submissions so
// that concurrent batch runs never grade the same submission twice.
package claims

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kcay/local-ai-grader/internal/ports"
)

// KeyPrefix namespaces claim keys in Redis.
const KeyPrefix = "grader:claim:"

// RedisStore implements ports.ClaimStore with SET NX and a TTL.
type RedisStore struct {
	client *redis.Client
}

var _ ports.ClaimStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Claim sets the key if it does not exist yet.
func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, KeyPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the key.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, KeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// ConnectRedis configures a Redis client from url and checks it responds.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url must not be empty")
	}

	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	return client, nil
}

// MemoryStore is a process-local ClaimStore used when Redis is not
// configured.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	claims map[string]time.Time
}

var _ ports.ClaimStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, claims: make(map[string]time.Time)}
}

// Claim records key until ttl elapses.
func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, held := s.claims[key]; held && now.Before(exp) {
		return false, nil
	}
	s.claims[key] = now.Add(ttl)
	return true, nil
}

// Release forgets key.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, key)
	return nil
}

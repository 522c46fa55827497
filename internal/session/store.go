package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"moff.io/moff-wallet/pkg/errors"
)

// Store keeps the session id between runs.
type Store interface {
	// SessionID returns "" when no session is stored.
	SessionID(ctx context.Context) (string, error)
	SetSessionID(ctx context.Context, id string) error
}

type MemoryStore struct {
	mu sync.Mutex
	id string
}

func (s *MemoryStore) SessionID(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, nil
}

func (s *MemoryStore) SetSessionID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	return nil
}

const DefaultRedisKey = "wallet:session_id"

type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore stores the id under key, which defaults to DefaultRedisKey.
// A zero ttl keeps it forever.
func NewRedisStore(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

func (s *RedisStore) SessionID(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.WrapAndReport(err, "get session id from redis")
	}
	return id, nil
}

func (s *RedisStore) SetSessionID(ctx context.Context, id string) error {
	if err := s.client.Set(ctx, s.key, id, s.ttl).Err(); err != nil {
		return errors.WrapAndReport(err, "set session id in redis")
	}
	return nil
}

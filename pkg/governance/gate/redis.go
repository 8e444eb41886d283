package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"maturity-hq/steward/pkg/governance"
)

// DefaultRedisPrefix namespaces challenge keys.
const DefaultRedisPrefix = "steward:challenge"

// RedisStore keeps challenges in Redis so every replica of the service
// sees the same outstanding challenge. Expiry is delegated to the key TTL
// and single use to GETDEL.
type RedisStore struct {
	rc     *redis.Client
	prefix string
}

// NewRedisStore creates a challenge store on rc.
func NewRedisStore(rc *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rc: rc, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return fmt.Sprintf("%s:%s", s.prefix, k)
}

// Put stores c under key with the given ttl.
func (s *RedisStore) Put(ctx context.Context, key string, c *Challenge, ttl time.Duration) error {
	if s.rc == nil {
		return errors.New("redis client is nil, cannot store challenge")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}
	if err := s.rc.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return governance.NewTransientStoreError("redis", "set_challenge", err)
	}
	return nil
}

// Take returns and removes the challenge under key.
func (s *RedisStore) Take(ctx context.Context, key string) (*Challenge, error) {
	if s.rc == nil {
		return nil, errors.New("redis client is nil, cannot read challenge")
	}
	data, err := s.rc.GetDel(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, governance.NewTransientStoreError("redis", "take_challenge", err)
	}

	var c Challenge
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}
	return &c, nil
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rc.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rc.Close()
}

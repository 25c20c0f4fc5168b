package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/valora-bff/internal/domain/oauth"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

// RedisStateStore implements OAuthStateStore backed by Redis, so in-flight
// flows survive restarts and are shared between instances.
type RedisStateStore struct {
	client redis.UniversalClient
}

var _ repository.OAuthStateStore = (*RedisStateStore)(nil)

// NewRedisStateStore constructs a Redis-backed state store.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// SaveState stores the encoded state. The key lives for ttl plus
// ExpiredStateGrace so an expired state is still returned once.
func (s *RedisStateStore) SaveState(ctx context.Context, key string, state oauth.State, ttl time.Duration) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, key, payload, ttl+ExpiredStateGrace).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// ConsumeState atomically reads and deletes the state.
func (s *RedisStateStore) ConsumeState(ctx context.Context, key string) (*oauth.State, error) {
	bytes, err := s.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("consume state: %w", err)
	}
	var state oauth.State
	if err := json.Unmarshal(bytes, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

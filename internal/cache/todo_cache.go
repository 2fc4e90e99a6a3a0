// Package cache holds the Redis-backed read cache for per-user todo lists.
// The cache stores the full unfiltered list; filtering and pagination stay in
// the service so cached and uncached reads behave identically.
package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/remindkit/remindd/internal/domain"
)

const keyPrefix = "remindd:todos:user:"

// TodoCache caches a user's complete todo list in Redis.
type TodoCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a TodoCache with the given entry TTL.
func New(rdb *redis.Client, ttl time.Duration) *TodoCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &TodoCache{rdb: rdb, ttl: ttl}
}

// GetUserList returns the cached list, or nil on a miss.
func (c *TodoCache) GetUserList(ctx context.Context, userID string) ([]domain.Todo, error) {
	b, err := c.rdb.Get(ctx, keyPrefix+userID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []domain.Todo
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SetUserList stores the list under the user's key.
func (c *TodoCache) SetUserList(ctx context.Context, userID string, list []domain.Todo) error {
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyPrefix+userID, b, c.ttl).Err()
}

// Invalidate drops the user's cached list. Called after every write that
// touches one of the user's todos.
func (c *TodoCache) Invalidate(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, keyPrefix+userID).Err()
}

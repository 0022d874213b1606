package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// RedisSnapshotCache keeps the latest payload published for each view.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotCache returns a cache whose entries expire after ttl; zero
// keeps them forever.
func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

func (r RedisSnapshotCache) SetSnapshot(ctx context.Context, viewID string, payload json.RawMessage) error {
	if !json.Valid(payload) {
		return fmt.Errorf("setting snapshot %q: invalid JSON payload", viewID)
	}
	if err := r.client.Set(ctx, formatKey(viewID), []byte(payload), r.ttl).Err(); err != nil {
		return fmt.Errorf("setting snapshot: %w", err)
	}
	return nil
}

func (r RedisSnapshotCache) GetSnapshot(ctx context.Context, viewID string) (json.RawMessage, error) {
	val, err := r.client.Get(ctx, formatKey(viewID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}
	return json.RawMessage(val), nil
}

func formatKey(viewID string) string {
	return fmt.Sprintf("dashboard:%s", viewID)
}

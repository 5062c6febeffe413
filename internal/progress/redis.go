package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "progress:"

// RedisStore keeps task states in Redis with a TTL, so several server
// processes can share progress.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. Non-positive ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Put(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+state.TaskID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, taskID string) (State, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+taskID).Bytes()
	if err == redis.Nil {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("failed to get progress: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return state, true, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)

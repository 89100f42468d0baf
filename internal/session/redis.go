package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

// RedisStore backs sessions with redis so they survive restarts and are
// shared across replicas. Key TTLs make pruning redis's job.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Put(ctx context.Context, tokenHash string, s Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKeyPrefix+tokenHash, data, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, tokenHash string) (Session, bool, error) {
	value, err := r.client.Get(ctx, redisKeyPrefix+tokenHash).Result()
	if err == redis.Nil {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var s Session
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	return r.client.Del(ctx, redisKeyPrefix+tokenHash).Err()
}

func (r *RedisStore) Prune(context.Context, time.Time) error {
	return nil
}

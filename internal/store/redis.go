package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "offline-sync:slot"

// RedisBackend stores slot blobs in redis. Useful where the agent runs
// next to a local redis instance instead of having a writable data
// directory. Blobs are encrypted before they reach the backend, so redis
// only ever sees ciphertext.
type RedisBackend struct {
	client redis.Cmdable
}

func NewRedisBackend(client redis.Cmdable) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, slot string) (string, bool, error) {
	val, err := b.client.Get(ctx, redisKey(slot)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", slot, err)
	}
	return val, true, nil
}

func (b *RedisBackend) Put(ctx context.Context, slot, blob string) error {
	if err := b.client.Set(ctx, redisKey(slot), blob, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", slot, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, slot string) error {
	if err := b.client.Del(ctx, redisKey(slot)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", slot, err)
	}
	return nil
}

func redisKey(slot string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, slot)
}

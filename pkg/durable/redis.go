package durable

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCmdable abstracts the minimal surface this package needs from a
// Redis client — callers can pass a *redis.Client or a
// *redis.ClusterClient interchangeably since both satisfy it.
type RedisCmdable interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// redisFilteredPhraseKey is the Redis set every add_filter/remove_filter
// mirrors into.
const redisFilteredPhraseKey = "typeahead:filtered_phrases"

// RedisFilteredPhraseMirror keeps the filtered-phrase set in a Redis set.
// The inappropriate-content check does not consult it: its fallback reads
// a FilteredPhraseStore.
type RedisFilteredPhraseMirror struct {
	client RedisCmdable
}

// NewRedisFilteredPhraseMirror wraps an already-configured client.
func NewRedisFilteredPhraseMirror(client RedisCmdable) *RedisFilteredPhraseMirror {
	return &RedisFilteredPhraseMirror{client: client}
}

// Add mirrors an administratively-added filter entry into the set.
func (r *RedisFilteredPhraseMirror) Add(ctx context.Context, phrase string) error {
	return r.client.SAdd(ctx, redisFilteredPhraseKey, phrase).Err()
}

// Remove drops phrase from the mirrored set.
func (r *RedisFilteredPhraseMirror) Remove(ctx context.Context, phrase string) error {
	return r.client.SRem(ctx, redisFilteredPhraseKey, phrase).Err()
}

// IsMember reports whether phrase is currently in the mirrored set.
func (r *RedisFilteredPhraseMirror) IsMember(ctx context.Context, phrase string) (bool, error) {
	return r.client.SIsMember(ctx, redisFilteredPhraseKey, phrase).Result()
}

// RedisSuggestionCacheStore is a key-value store of serialized suggestion
// lists with TTL, and glob-pattern invalidation via SCAN. pkg/cache does
// not use it.
type RedisSuggestionCacheStore struct {
	client *redis.Client
}

// NewRedisSuggestionCacheStore wraps an already-configured client.
func NewRedisSuggestionCacheStore(client *redis.Client) *RedisSuggestionCacheStore {
	return &RedisSuggestionCacheStore{client: client}
}

func (r *RedisSuggestionCacheStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisSuggestionCacheStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// InvalidatePattern deletes every key matching pattern (e.g. "suggest:se*")
// for the admin clear_cache(pattern) endpoint, scanning in batches rather
// than KEYS to avoid blocking Redis on a large keyspace.
func (r *RedisSuggestionCacheStore) InvalidatePattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

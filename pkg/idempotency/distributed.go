package idempotency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DistributedLock acquires a short CAS lock via SETNX before an
// idempotent operation executes in a multi-process deployment: a "has
// this already run" marker guarded by a compare-and-set, not a
// traditional mutex.
type DistributedLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDistributedLock wraps an already-configured client. ttl defaults to
// DefaultLockTTL.
func NewDistributedLock(client *redis.Client, ttl time.Duration) *DistributedLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &DistributedLock{client: client, ttl: ttl}
}

func lockKey(idempotencyKey string) string {
	return "typeahead:idem-lock:" + idempotencyKey
}

// Acquire attempts to set the lock marker for key. The returned token
// must be passed to Release; ok is false if another process already
// holds the lock.
func (d *DistributedLock) Acquire(ctx context.Context, key string) (token string, ok bool, err error) {
	token = uuid.NewString()
	acquired, err := d.client.SetNX(ctx, lockKey(key), token, d.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, acquired, nil
}

// Release clears the lock marker iff it still holds our token, avoiding
// releasing a lock some other process has since acquired after our TTL
// expired.
func (d *DistributedLock) Release(ctx context.Context, key, token string) error {
	const script = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0`
	return d.client.Eval(ctx, script, []string{lockKey(key)}, token).Err()
}

// WaitAndReread handles a lock conflict: poll the store for up to
// maxWait, returning as soon as the winner's entry appears.
func WaitAndReread(ctx context.Context, store *Store, key string, pollInterval, maxWait time.Duration) (Entry, bool) {
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	if entry, ok := store.Get(key); ok {
		return entry, true
	}
	for {
		select {
		case <-ctx.Done():
			return Entry{}, false
		case <-ticker.C:
			if entry, ok := store.Get(key); ok {
				return entry, true
			}
			if time.Now().After(deadline) {
				return Entry{}, false
			}
		}
	}
}

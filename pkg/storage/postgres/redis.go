package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// NewRedisClient creates and verifies a Redis client from a URL
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

const lockKeyPrefix = "arbor:sync:lock:"

// releaseScript deletes the lock only when still held by this owner
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// SyncLock bounds concurrent duplicate synchronization runs per project.
// Losing a lock (expiry, Redis restart) is harmless: the walk is idempotent,
// the lock only reduces redundant upstream calls.
type SyncLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSyncLock creates a per-project sync lock with the given TTL
func NewSyncLock(client *redis.Client, ttl time.Duration) *SyncLock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SyncLock{client: client, ttl: ttl}
}

// Acquire attempts to take the lock for the given key. On success it returns
// ok=true and a release function; ok=false means another run holds the lock.
func (l *SyncLock) Acquire(ctx context.Context, key string) (release func(), ok bool, err error) {
	owner := uuid.NewString()
	fullKey := lockKeyPrefix + key

	acquired, err := l.client.SetNX(ctx, fullKey, owner, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	release = func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		// Best effort; an expired lock releases itself.
		releaseScript.Run(releaseCtx, l.client, []string{fullKey}, owner)
	}
	return release, true, nil
}

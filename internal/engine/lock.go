package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker serializes pipeline runs for one key (one trading date).
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// MemoryLocker is a per-key mutex for a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{keys: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.keys[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.keys[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ErrLockHeld is returned when another process keeps the lock past the wait.
var ErrLockHeld = errors.New("engine: lock held by another writer")

// releaseScript deletes the lease only while it still holds our token.
const releaseScript = `if redis.call("get",KEYS[1]) == ARGV[1] then return redis.call("del",KEYS[1]) end return 0`

// RedisLocker takes a SET NX lease so only one process computes a date.
type RedisLocker struct {
	client   redis.Cmdable
	ttl      time.Duration
	retry    time.Duration
	newToken func() string
}

// NewRedisLocker creates a lease-based locker. The lease expires after ttl
// so a crashed writer never blocks the next day.
func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 250 * time.Millisecond, newToken: uuid.NewString}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = "sentinel:lock:" + key
	token := l.newToken()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// The caller's context may already be done; release regardless.
				// A lease that expired and was taken over is left alone.
				l.client.Eval(context.Background(), releaseScript, []string{key}, token)
			}, nil
		}
		select {
		case <-time.After(l.retry):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, ctx.Err())
		}
	}
}

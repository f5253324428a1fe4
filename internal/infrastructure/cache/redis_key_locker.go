package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	appstock "github.com/erp/inventory-engine/internal/application/stock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockPrefix        = "lock:"
	defaultLockRetryInterval = 5 * time.Millisecond
	maxLockRetryInterval     = 100 * time.Millisecond
	lockReleaseTimeout       = 2 * time.Second
)

// releaseScript deletes a lock only while it still carries our token, so an
// expired lock re-acquired by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisKeyLocker serializes critical sections across engine instances with
// one Redis key per lock name (SET NX PX). Every lock expires after ttl, so
// a crashed holder cannot block a key forever; ttl must exceed the longest
// critical section.
type RedisKeyLocker struct {
	client        redis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
	prefix        string
	logger        *zap.Logger
}

// RedisKeyLockerOption configures a RedisKeyLocker
type RedisKeyLockerOption func(*RedisKeyLocker)

// WithLockPrefix namespaces the lock keys
func WithLockPrefix(prefix string) RedisKeyLockerOption {
	return func(l *RedisKeyLocker) {
		l.prefix = prefix
	}
}

// WithRetryInterval sets the initial poll interval while a lock is held elsewhere
func WithRetryInterval(d time.Duration) RedisKeyLockerOption {
	return func(l *RedisKeyLocker) {
		if d > 0 {
			l.retryInterval = d
		}
	}
}

// WithLockLogger sets the logger
func WithLockLogger(logger *zap.Logger) RedisKeyLockerOption {
	return func(l *RedisKeyLocker) {
		l.logger = logger
	}
}

// NewRedisKeyLocker creates a RedisKeyLocker
func NewRedisKeyLocker(client redis.UniversalClient, ttl time.Duration, opts ...RedisKeyLockerOption) *RedisKeyLocker {
	l := &RedisKeyLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: defaultLockRetryInterval,
		prefix:        defaultLockPrefix,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires every name in sorted order. On failure the locks taken so
// far are released before returning.
func (l *RedisKeyLocker) Lock(ctx context.Context, names ...string) (func(), error) {
	ordered := appstock.SortedNames(names)
	token := uuid.NewString()
	held := make([]string, 0, len(ordered))

	for _, name := range ordered {
		key := l.prefix + name
		if err := l.acquire(ctx, key, token); err != nil {
			l.release(held, token)
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(held, token) })
	}, nil
}

func (l *RedisKeyLocker) acquire(ctx context.Context, key, token string) error {
	wait := l.retryInterval
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		wait = min(wait*2, maxLockRetryInterval)
	}
}

// release runs on a fresh context: the caller's context may already be done
// when the critical section ends.
func (l *RedisKeyLocker) release(keys []string, token string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
	defer cancel()

	for i := len(keys) - 1; i >= 0; i-- {
		n, err := releaseScript.Run(ctx, l.client, []string{keys[i]}, token).Int()
		if err != nil {
			l.logger.Error("Failed to release lock",
				zap.String("key", keys[i]),
				zap.Error(err))
			continue
		}
		if n == 0 {
			l.logger.Warn("Lock expired before release",
				zap.String("key", keys[i]),
				zap.Duration("ttl", l.ttl))
		}
	}
}

// Ensure RedisKeyLocker implements KeyLocker
var _ appstock.KeyLocker = (*RedisKeyLocker)(nil)

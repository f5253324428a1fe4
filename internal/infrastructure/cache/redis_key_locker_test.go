package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKeyLocker(t *testing.T) {
	client := newTestRedis(t)

	t.Run("excludes concurrent holders of the same name", func(t *testing.T) {
		locker := NewRedisKeyLocker(client, 5*time.Second, WithLockPrefix("test:exclusive:"))
		var (
			inside  atomic.Int32
			maxSeen atomic.Int32
			wg      sync.WaitGroup
		)

		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(context.Background(), "stock:p:w")
				if !assert.NoError(t, err) {
					return
				}
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxSeen.Load())
	})

	t.Run("gives up when the context expires", func(t *testing.T) {
		locker := NewRedisKeyLocker(client, 5*time.Second, WithLockPrefix("test:timeout:"))
		unlock, err := locker.Lock(context.Background(), "a")
		require.NoError(t, err)
		defer unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(ctx, "a")

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("releases partial acquisitions on failure", func(t *testing.T) {
		locker := NewRedisKeyLocker(client, 5*time.Second, WithLockPrefix("test:partial:"))
		unlockB, err := locker.Lock(context.Background(), "b")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(ctx, "b", "a")
		require.Error(t, err)

		exists, err := client.Exists(context.Background(), "test:partial:a").Result()
		require.NoError(t, err)
		assert.Zero(t, exists)
		unlockB()
	})

	t.Run("does not release a lock taken over after expiry", func(t *testing.T) {
		locker := NewRedisKeyLocker(client, 50*time.Millisecond, WithLockPrefix("test:expiry:"))
		unlock, err := locker.Lock(context.Background(), "k")
		require.NoError(t, err)

		time.Sleep(80 * time.Millisecond)
		other := NewRedisKeyLocker(client, 5*time.Second, WithLockPrefix("test:expiry:"))
		unlockOther, err := other.Lock(context.Background(), "k")
		require.NoError(t, err)
		defer unlockOther()

		unlock()

		exists, err := client.Exists(context.Background(), "test:expiry:k").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
	})

	t.Run("unlock is idempotent", func(t *testing.T) {
		locker := NewRedisKeyLocker(client, 5*time.Second, WithLockPrefix("test:idem:"))
		unlock, err := locker.Lock(context.Background(), "x", "y", "x")
		require.NoError(t, err)

		unlock()
		unlock()

		again, err := locker.Lock(context.Background(), "x", "y")
		require.NoError(t, err)
		again()
	})
}

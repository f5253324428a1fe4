package stock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKeyLocker(t *testing.T) {
	t.Run("serializes holders of the same name", func(t *testing.T) {
		l := NewMemoryKeyLocker()
		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := l.Lock(context.Background(), "a")
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxInside)
		assert.Equal(t, 0, l.Len())
	})

	t.Run("gives up when the context ends", func(t *testing.T) {
		l := NewMemoryKeyLocker()
		unlock, err := l.Lock(context.Background(), "a")
		require.NoError(t, err)
		defer unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, "b", "a")

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, l.Len())
	})

	t.Run("opposite acquisition orders do not deadlock", func(t *testing.T) {
		l := NewMemoryKeyLocker()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				unlock, err := l.Lock(context.Background(), "x", "y")
				if assert.NoError(t, err) {
					unlock()
				}
			}()
			go func() {
				defer wg.Done()
				unlock, err := l.Lock(context.Background(), "y", "x")
				if assert.NoError(t, err) {
					unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 0, l.Len())
	})

	t.Run("unlock is idempotent", func(t *testing.T) {
		l := NewMemoryKeyLocker()
		unlock, err := l.Lock(context.Background(), "a", "a")
		require.NoError(t, err)
		unlock()
		unlock()
		assert.Equal(t, 0, l.Len())
	})
}

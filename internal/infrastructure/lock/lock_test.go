package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/timesheet-approval/internal/application/port"
)

func setupRedisLocker(t *testing.T, opts RedisOptions) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, opts, zap.NewNop()), s
}

// exclusive runs n goroutines through the lock and reports the highest overlap seen
func exclusive(t *testing.T, locker port.Locker, n int) int32 {
	t.Helper()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "timesheet:1")
			if err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			now := atomic.AddInt32(&inside, 1)
			for {
				seen := atomic.LoadInt32(&maxInside)
				if now <= seen || atomic.CompareAndSwapInt32(&maxInside, seen, now) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	return maxInside
}

func TestLocalLocker_Exclusive(t *testing.T) {
	assert.Equal(t, int32(1), exclusive(t, NewLocalLocker(), 20))
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	unlock()
	unlock()

	unlock2, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock2()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.slots, "released keys are forgotten")
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	a, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer a()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	b()
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	l, s := setupRedisLocker(t, RedisOptions{Prefix: "lock:", TTL: time.Second, RetryInterval: 5 * time.Millisecond})

	unlock, err := l.Lock(context.Background(), "timesheet:1")
	require.NoError(t, err)
	assert.True(t, s.Exists("lock:timesheet:1"))
	assert.Equal(t, time.Second, s.TTL("lock:timesheet:1"))

	unlock()
	assert.False(t, s.Exists("lock:timesheet:1"))
}

func TestRedisLocker_Contention(t *testing.T) {
	l, _ := setupRedisLocker(t, RedisOptions{TTL: time.Minute, RetryInterval: 5 * time.Millisecond})

	unlock, err := l.Lock(context.Background(), "timesheet:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "timesheet:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()

	unlock, err = l.Lock(context.Background(), "timesheet:1")
	require.NoError(t, err)
	unlock()
}

func TestRedisLocker_Exclusive(t *testing.T) {
	l, _ := setupRedisLocker(t, RedisOptions{TTL: time.Minute, RetryInterval: time.Millisecond})
	assert.Equal(t, int32(1), exclusive(t, l, 10))
}

func TestRedisLocker_ExpiredHolderDoesNotReleaseNewOwner(t *testing.T) {
	l, s := setupRedisLocker(t, RedisOptions{TTL: time.Second, RetryInterval: time.Millisecond})

	stale, err := l.Lock(context.Background(), "timesheet:1")
	require.NoError(t, err)

	s.FastForward(2 * time.Second)

	fresh, err := l.Lock(context.Background(), "timesheet:1")
	require.NoError(t, err)

	stale()
	assert.True(t, s.Exists("lock:timesheet:1"), "stale unlock must not drop the new holder's key")

	fresh()
	assert.False(t, s.Exists("lock:timesheet:1"))
}

func TestRedisLocker_Unreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "redis://127.0.0.1:1")
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	l := NewRedisLocker(client, RedisOptions{}, zap.NewNop())
	_, err = l.Lock(context.Background(), "k")
	assert.Error(t, err)
}

package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/timesheet-approval/internal/application/port"
)

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions tunes the redis lock
type RedisOptions struct {
	// Prefix is prepended to every key; empty means "lock:"
	Prefix string
	// TTL bounds how long a crashed holder blocks others
	TTL time.Duration
	// RetryInterval is the wait between acquisition attempts
	RetryInterval time.Duration
}

// DefaultRedisOptions returns the options used when none are configured
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:        "lock:",
		TTL:           10 * time.Second,
		RetryInterval: 25 * time.Millisecond,
	}
}

// RedisLocker is a lock shared by every process using the same redis
type RedisLocker struct {
	client *redis.Client
	opts   RedisOptions
	logger *zap.Logger
}

// NewRedisClient connects to redis and checks it is reachable
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisLocker creates a locker on an existing client
func NewRedisLocker(client *redis.Client, opts RedisOptions, logger *zap.Logger) *RedisLocker {
	defaults := DefaultRedisOptions()
	if opts.Prefix == "" {
		opts.Prefix = defaults.Prefix
	}
	if opts.TTL <= 0 {
		opts.TTL = defaults.TTL
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaults.RetryInterval
	}
	return &RedisLocker{client: client, opts: opts, logger: logger}
}

// Lock takes key with SET NX PX, retrying until ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.opts.Prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.opts.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(fullKey, token) })
	}, nil
}

func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	released, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		l.logger.Error("Failed to release lock", zap.String("key", key), zap.Error(err))
		return
	}
	if released == 0 {
		l.logger.Warn("Lock expired before release", zap.String("key", key), zap.Duration("ttl", l.opts.TTL))
	}
}

// Ping checks if redis is reachable
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the redis connection
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

var _ port.Locker = (*RedisLocker)(nil)

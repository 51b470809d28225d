// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"aitools-pro-billing/internal/domain"
	"aitools-pro-billing/internal/domain/ports/adapter"
)

var _ adapter.Locker = (*RedisLocker)(nil)

// RedisLocker holds a SETNX key with a random token; only the holder of the
// token can release it.
type RedisLocker struct {
	cli      *redis.Client
	attempts int
	backoff  time.Duration
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli, attempts: 5, backoff: 50 * time.Millisecond}
}

// TryLock returns domain.ErrEventInFlight only when another holder keeps the
// key for every attempt. Transport failures are returned as plain redis
// errors so callers can tell an outage from contention.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.attempts; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		switch {
		case err != nil:
			lastErr = fmt.Errorf("redis setnx %s: %w", key, err)
		case ok:
			return token, nil
		default:
			lastErr = domain.ErrEventInFlight
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.backoff):
		}
	}
	return "", lastErr
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}

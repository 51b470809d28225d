//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"
)

type counterClient struct {
	RedisClient
	counts  map[string]int64
	expires map[string]time.Duration
	incrErr error
}

func (c *counterClient) Incr(_ context.Context, key string) (int64, error) {
	if c.incrErr != nil {
		return 0, c.incrErr
	}
	c.counts[key]++
	return c.counts[key], nil
}

func (c *counterClient) Expire(_ context.Context, key string, d time.Duration) error {
	c.expires[key] = d
	return nil
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("should allow up to the limit then block", func(t *testing.T) {
		c := &counterClient{counts: map[string]int64{}, expires: map[string]time.Duration{}}
		rl := NewRateLimiter(c)
		key := WebhookIPKey("10.0.0.1")
		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, key, 3, time.Minute)
			if err != nil || !ok {
				t.Fatalf("call %d: expected allow, got ok=%v err=%v", i+1, ok, err)
			}
		}
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected fourth call to be blocked")
		}
		if c.expires[key] != time.Minute {
			t.Errorf("expected window set on first hit, got %v", c.expires[key])
		}
	})

	t.Run("should surface redis errors", func(t *testing.T) {
		c := &counterClient{incrErr: errors.New("down")}
		if _, err := NewRateLimiter(c).Allow(ctx, "k", 1, time.Minute); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})
}

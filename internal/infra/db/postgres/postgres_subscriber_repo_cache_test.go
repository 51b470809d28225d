//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"aitools-pro-billing/internal/domain"
	"aitools-pro-billing/internal/domain/model"
	"aitools-pro-billing/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestSubscriberRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	sub := &model.Subscriber{Email: "a@example.com", Status: model.SubscriptionStatusActive, Tier: model.SubscriptionTierMonthly, ProEnabled: true, PremiumBadge: true}

	t.Run("FindByEmail should fetch from DB and set cache on miss", func(t *testing.T) {
		innerCalled := false
		var setKey string
		var setTTL time.Duration
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", redis.Nil },
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				setKey, setTTL = key, expiration
				return nil
			},
		}
		inner := &mockInnerSubscriberRepo{
			FindByEmailFunc: func(ctx context.Context, tx repository.Tx, email string) (*model.Subscriber, error) {
				innerCalled = true
				return sub, nil
			},
		}

		d := NewSubscriberRepoCacheDecorator(inner, mockRedis, time.Minute, newTestLogger())
		got, err := d.FindByEmail(ctx, nil, "A@Example.com")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !innerCalled {
			t.Error("inner repository should be called on a cache miss")
		}
		if setKey != "subscriber:email:a@example.com" {
			t.Errorf("unexpected cache key %q", setKey)
		}
		if setTTL != time.Minute {
			t.Errorf("expected ttl 1m, got %s", setTTL)
		}
		if got.Status != model.SubscriptionStatusActive {
			t.Errorf("unexpected status %q", got.Status)
		}
	})

	t.Run("FindByEmail should serve from cache on hit", func(t *testing.T) {
		b, _ := json.Marshal(sub)
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return string(b), nil },
		}
		inner := &mockInnerSubscriberRepo{
			FindByEmailFunc: func(ctx context.Context, tx repository.Tx, email string) (*model.Subscriber, error) {
				t.Fatal("inner repository should not be called on a cache hit")
				return nil, nil
			},
		}

		d := NewSubscriberRepoCacheDecorator(inner, mockRedis, time.Minute, newTestLogger())
		got, err := d.FindByEmail(ctx, nil, "a@example.com")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Email != sub.Email || !got.ProEnabled {
			t.Errorf("unexpected cached subscriber %+v", got)
		}
	})

	t.Run("FindByEmail should bypass cache inside a transaction", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				t.Fatal("cache should not be read inside a transaction")
				return "", nil
			},
		}
		inner := &mockInnerSubscriberRepo{
			FindByEmailFunc: func(ctx context.Context, tx repository.Tx, email string) (*model.Subscriber, error) {
				return sub, nil
			},
		}

		d := NewSubscriberRepoCacheDecorator(inner, mockRedis, time.Minute, newTestLogger())
		if _, err := d.FindByEmail(ctx, struct{}{}, "a@example.com"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("FindByEmail should not cache a miss in the database", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", errors.New("redis down") },
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				t.Fatal("not-found results should not be cached")
				return nil
			},
		}
		inner := &mockInnerSubscriberRepo{
			FindByEmailFunc: func(ctx context.Context, tx repository.Tx, email string) (*model.Subscriber, error) {
				return nil, domain.ErrNotFound
			},
		}

		d := NewSubscriberRepoCacheDecorator(inner, mockRedis, time.Minute, newTestLogger())
		if _, err := d.FindByEmail(ctx, nil, "ghost@example.com"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Upsert should invalidate the cache key after writing", func(t *testing.T) {
		var deleted []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deleted = append(deleted, keys...)
				return nil
			},
		}
		inner := &mockInnerSubscriberRepo{
			UpsertFunc: func(ctx context.Context, tx repository.Tx, s *model.Subscriber) error { return nil },
		}

		d := NewSubscriberRepoCacheDecorator(inner, mockRedis, time.Minute, newTestLogger())
		if err := d.Upsert(ctx, nil, sub); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deleted) != 1 || deleted[0] != "subscriber:email:a@example.com" {
			t.Errorf("unexpected invalidated keys %v", deleted)
		}
	})

	t.Run("Upsert should leave the cache alone when the write fails", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				t.Fatal("cache should not be invalidated on a failed write")
				return nil
			},
		}
		inner := &mockInnerSubscriberRepo{
			UpsertFunc: func(ctx context.Context, tx repository.Tx, s *model.Subscriber) error { return domain.ErrOperationFailed },
		}

		d := NewSubscriberRepoCacheDecorator(inner, mockRedis, time.Minute, newTestLogger())
		if err := d.Upsert(ctx, nil, sub); !errors.Is(err, domain.ErrOperationFailed) {
			t.Fatalf("expected ErrOperationFailed, got %v", err)
		}
	})
}

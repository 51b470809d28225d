package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"aitools-pro-billing/internal/domain/model"
	"aitools-pro-billing/internal/domain/ports/repository"
	"aitools-pro-billing/internal/infra/metrics"
	red "aitools-pro-billing/internal/infra/redis"
)

var _ repository.SubscriberRepository = (*subscriberRepoCacheDecorator)(nil)

// subscriberRepoCacheDecorator serves out-of-transaction reads from Redis.
// Reads inside a transaction always hit the database so FOR UPDATE applies.
type subscriberRepoCacheDecorator struct {
	inner repository.SubscriberRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewSubscriberRepoCacheDecorator(inner repository.SubscriberRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.SubscriberRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	l := logger.With().Str("component", "SubscriberCache").Logger()
	return &subscriberRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func subscriberKey(email string) string {
	return fmt.Sprintf("subscriber:email:%s", model.NormalizeEmail(email))
}

func (d *subscriberRepoCacheDecorator) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Subscriber, error) {
	if tx != nil {
		metrics.IncCacheRequest("subscriber", "bypass")
		return d.inner.FindByEmail(ctx, tx, email)
	}

	key := subscriberKey(email)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var s model.Subscriber
		if json.Unmarshal([]byte(val), &s) == nil {
			metrics.IncCacheRequest("subscriber", "hit")
			return &s, nil
		}
	} else if !errors.Is(err, red.Nil) {
		d.log.Warn().Err(err).Msg("subscriber cache read failed")
	}

	metrics.IncCacheRequest("subscriber", "miss")
	s, err := d.inner.FindByEmail(ctx, tx, email)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(s); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return s, nil
}

func (d *subscriberRepoCacheDecorator) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscriber) error {
	if err := d.inner.Upsert(ctx, tx, s); err != nil {
		return err
	}
	if s != nil {
		if err := d.cache.Del(ctx, subscriberKey(s.Email)); err != nil {
			d.log.Warn().Err(err).Msg("subscriber cache invalidation failed")
		}
	}
	return nil
}

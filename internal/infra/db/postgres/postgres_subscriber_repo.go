package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"aitools-pro-billing/internal/domain"
	"aitools-pro-billing/internal/domain/model"
	"aitools-pro-billing/internal/domain/ports/repository"
)

var _ repository.SubscriberRepository = (*subscriberRepo)(nil)

type subscriberRepo struct{ pool *pgxpool.Pool }

func NewSubscriberRepo(pool *pgxpool.Pool) *subscriberRepo {
	return &subscriberRepo{pool: pool}
}

func (r *subscriberRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Subscriber, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	q := `
SELECT email, COALESCE(provider_customer_id, ''), subscription_status, COALESCE(subscription_tier, ''),
       premium_badge, pro_enabled, subscription_started_at, subscription_ends_at,
       COALESCE(last_payment_ref, ''), created_at, updated_at
  FROM subscribers
 WHERE email=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, email)
	if err != nil {
		return nil, err
	}

	s := &model.Subscriber{}
	var status, tier string
	if err := row.Scan(&s.Email, &s.ProviderCustomerID, &status, &tier, &s.PremiumBadge, &s.ProEnabled,
		&s.StartedAt, &s.EndsAt, &s.LastPaymentRef, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.SubscriptionStatus(status)
	s.Tier = model.SubscriptionTier(tier)
	return s, nil
}

// Upsert merges per field on conflict: empty customer id / payment ref and an
// already-set start date never overwrite what is stored. Entitlement flags are
// recomputed from the status so they cannot drift.
func (r *subscriberRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscriber) error {
	if s == nil || model.NormalizeEmail(s.Email) == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO subscribers (
  email, provider_customer_id, subscription_status, subscription_tier, premium_badge, pro_enabled,
  subscription_started_at, subscription_ends_at, last_payment_ref, created_at, updated_at
) VALUES (
  $1, NULLIF($2, ''), $3, NULLIF($4, ''), $5, $5, $6, $7, NULLIF($8, ''), COALESCE($9, NOW()), NOW()
) ON CONFLICT (email) DO UPDATE SET
  provider_customer_id    = COALESCE(EXCLUDED.provider_customer_id, subscribers.provider_customer_id),
  subscription_status     = EXCLUDED.subscription_status,
  subscription_tier       = COALESCE(EXCLUDED.subscription_tier, subscribers.subscription_tier),
  premium_badge           = EXCLUDED.premium_badge,
  pro_enabled             = EXCLUDED.pro_enabled,
  subscription_started_at = COALESCE(subscribers.subscription_started_at, EXCLUDED.subscription_started_at),
  subscription_ends_at    = EXCLUDED.subscription_ends_at,
  last_payment_ref        = COALESCE(EXCLUDED.last_payment_ref, subscribers.last_payment_ref),
  updated_at              = NOW()
RETURNING created_at, updated_at;`

	row, err := pickRow(ctx, r.pool, tx, q,
		model.NormalizeEmail(s.Email), s.ProviderCustomerID, string(s.Status), string(s.Tier),
		s.Status.Entitled(), s.StartedAt, s.EndsAt, s.LastPaymentRef, nullableTime(s.CreatedAt))
	if err != nil {
		return err
	}
	var createdAt, updatedAt time.Time
	if err := row.Scan(&createdAt, &updatedAt); err != nil {
		return mapExecErr(err)
	}
	s.CreatedAt, s.UpdatedAt = createdAt, updatedAt
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

package repository

import (
	"context"

	"aitools-pro-billing/internal/domain/model"
)

// SubscriberRepository is the port for the email-keyed entitlement projection.
type SubscriberRepository interface {
	// FindByEmail returns domain.ErrNotFound for unknown emails. Inside a
	// transaction the row is locked until commit.
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.Subscriber, error)
	// Upsert inserts or updates by email, never overwriting provider_customer_id,
	// subscription_started_at or last_payment_ref with an empty value.
	Upsert(ctx context.Context, tx Tx, s *model.Subscriber) error
}

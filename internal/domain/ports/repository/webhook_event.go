package repository

import (
	"context"
	"time"

	"aitools-pro-billing/internal/domain/model"
)

// -----------------------------
// Webhook events (idempotency log)
// -----------------------------

type WebhookEventRepository interface {
	// FindByProviderEventID returns domain.ErrNotFound when the event was never seen.
	FindByProviderEventID(ctx context.Context, tx Tx, provider, providerEventID string) (*model.WebhookEvent, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.WebhookEvent, error)
	// InsertIfAbsent inserts ev unless (provider, provider_event_id) already exists.
	// It reports whether this call created the row.
	InsertIfAbsent(ctx context.Context, tx Tx, ev *model.WebhookEvent) (bool, error)
	// MarkProcessed flips processed false->true; it reports false when the row
	// was already processed.
	MarkProcessed(ctx context.Context, tx Tx, id string, at time.Time) (bool, error)
	ListUnprocessedOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.WebhookEvent, error)
	CountUnprocessedOlderThan(ctx context.Context, tx Tx, olderThan time.Time) (int, error)
}

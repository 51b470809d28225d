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

var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

type webhookEventRepo struct{ pool *pgxpool.Pool }

func NewWebhookEventRepo(pool *pgxpool.Pool) *webhookEventRepo {
	return &webhookEventRepo{pool: pool}
}

const webhookEventColumns = `id, provider, provider_event_id, event_type, raw_payload, processed, processed_at, created_at`

func scanWebhookEvent(row pgx.Row) (*model.WebhookEvent, error) {
	ev := &model.WebhookEvent{}
	var eventType string
	if err := row.Scan(&ev.ID, &ev.Provider, &ev.ProviderEventID, &eventType, &ev.RawPayload, &ev.Processed, &ev.ProcessedAt, &ev.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	ev.EventType = model.EventType(eventType)
	return ev, nil
}

func (r *webhookEventRepo) FindByProviderEventID(ctx context.Context, tx repository.Tx, provider, providerEventID string) (*model.WebhookEvent, error) {
	q := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE provider=$1 AND provider_event_id=$2`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, provider, providerEventID)
	if err != nil {
		return nil, err
	}
	return scanWebhookEvent(row)
}

func (r *webhookEventRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WebhookEvent, error) {
	const q = `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanWebhookEvent(row)
}

func (r *webhookEventRepo) InsertIfAbsent(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) (bool, error) {
	if ev == nil || ev.ID == "" || ev.Provider == "" || ev.ProviderEventID == "" {
		return false, domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO webhook_events (
  id, provider, provider_event_id, event_type, raw_payload, processed, processed_at, created_at
) VALUES ($1,$2,$3,$4,$5,FALSE,NULL,$6)
ON CONFLICT (provider, provider_event_id) DO NOTHING;`

	cmd, err := execSQL(ctx, r.pool, tx, q, ev.ID, ev.Provider, ev.ProviderEventID, string(ev.EventType), ev.RawPayload, ev.CreatedAt)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

// MarkProcessed only touches unprocessed rows, so processed_at is written once.
func (r *webhookEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	const q = `UPDATE webhook_events SET processed=TRUE, processed_at=$2 WHERE id=$1 AND processed=FALSE;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, at)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *webhookEventRepo) ListUnprocessedOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.WebhookEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE processed=FALSE AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.WebhookEvent
	for rows.Next() {
		ev, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, mapExecErr(err)
	}
	return out, nil
}

func (r *webhookEventRepo) CountUnprocessedOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM webhook_events WHERE processed=FALSE AND created_at < $1;`
	row, err := pickRow(ctx, r.pool, tx, q, olderThan)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

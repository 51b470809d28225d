// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"aitools-pro-billing/internal/domain"
	"aitools-pro-billing/internal/domain/model"
	"aitools-pro-billing/internal/domain/ports/adapter"
	"aitools-pro-billing/internal/domain/ports/repository"
	"aitools-pro-billing/internal/infra/logging"
	"aitools-pro-billing/internal/infra/metrics"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// Delivery is one inbound webhook request as received on the wire.
type Delivery struct {
	Body      []byte // raw, unparsed
	Signature string
}

// WebhookResult describes what happened to a delivery.
type WebhookResult struct {
	EventID         string // webhook_events.id
	ProviderEventID string
	EventType       model.EventType
	Idempotent      bool // already processed; projector not invoked
	Changed         bool // subscriber row written
	From            model.SubscriptionStatus
	To              model.SubscriptionStatus
}

type WebhookUseCase interface {
	// Handle authenticates, deduplicates and applies one delivery exactly once.
	Handle(ctx context.Context, d Delivery) (*WebhookResult, error)
	// Replay re-runs an already logged event from its stored payload. The
	// signature was verified when the row was first written. End dates are
	// anchored on the payload's paid_at (else created_at), not on the replay
	// time, so replaying an old charge can yield a past ends_at.
	Replay(ctx context.Context, eventID string) (*WebhookResult, error)
	// ListStale lists events still unprocessed after olderThan.
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*model.WebhookEvent, error)
}

type webhookUC struct {
	provider adapter.WebhookProvider
	events   repository.WebhookEventRepository
	subs     repository.SubscriberRepository
	tm       repository.TransactionManager
	locker   adapter.Locker // optional
	lockTTL  time.Duration
	now      func() time.Time
	log      *zerolog.Logger
}

// NewWebhookUseCase wires the receiver. locker may be nil to disable the
// per-event in-flight lock.
func NewWebhookUseCase(
	provider adapter.WebhookProvider,
	events repository.WebhookEventRepository,
	subs repository.SubscriberRepository,
	tm repository.TransactionManager,
	locker adapter.Locker,
	logger *zerolog.Logger,
) *webhookUC {
	ucLog := logger.With().Str("component", "WebhookUseCase").Logger()
	return &webhookUC{
		provider: provider,
		events:   events,
		subs:     subs,
		tm:       tm,
		locker:   locker,
		lockTTL:  30 * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
		log:      &ucLog,
	}
}

func (u *webhookUC) Handle(ctx context.Context, d Delivery) (*WebhookResult, error) {
	defer logging.TraceDuration(u.log, "WebhookUC.Handle")()
	// Signature covers the exact bytes; nothing is parsed before this check.
	if err := u.provider.VerifySignature(d.Body, d.Signature); err != nil {
		metrics.IncSignatureFailure()
		logging.With(ctx, u.log).Warn().Msg("webhook rejected: bad signature")
		return nil, err
	}
	return u.ingest(ctx, d.Body)
}

func (u *webhookUC) Replay(ctx context.Context, eventID string) (*WebhookResult, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidArgument
	}
	rec, err := u.events.FindByID(ctx, nil, eventID)
	if err != nil {
		return nil, err
	}
	return u.ingest(ctx, rec.RawPayload)
}

func (u *webhookUC) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*model.WebhookEvent, error) {
	if olderThan < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return u.events.ListUnprocessedOlderThan(ctx, nil, u.now().Add(-olderThan), limit)
}

func (u *webhookUC) ingest(ctx context.Context, raw []byte) (*WebhookResult, error) {
	ev, providerEventID, err := u.provider.ParseEvent(raw)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithEventID(ctx, providerEventID)
	l := logging.With(ctx, u.log)
	l.Debug().Str("event_type", string(ev.Type())).Msg("webhook received")

	if u.locker != nil {
		key := lockKey(u.provider.Name(), providerEventID)
		token, err := u.locker.TryLock(ctx, key, u.lockTTL)
		switch {
		case errors.Is(err, domain.ErrEventInFlight):
			return nil, err
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Locker outage: the processed flag in the event log still gates reapplication.
			l.Warn().Err(err).Msg("event lock unavailable; continuing without it")
		default:
			defer func() {
				if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
					l.Warn().Err(err).Msg("release event lock")
				}
			}()
		}
	}

	rec, err := u.record(ctx, ev, providerEventID, raw)
	if err != nil {
		return nil, err
	}

	res := &WebhookResult{
		EventID:         rec.ID,
		ProviderEventID: providerEventID,
		EventType:       ev.Type(),
	}
	if rec.Processed {
		l.Info().Msg("duplicate webhook ignored")
		res.Idempotent = true
		return res, nil
	}

	if ev.Type() != model.EventTypeUnknown {
		if err := u.apply(ctx, ev, res); err != nil {
			// Row stays unprocessed so the provider's retry can redo the work.
			return nil, err
		}
	} else {
		l.Info().Str("event_name", ev.(model.UnrecognizedEvent).Name).Msg("unhandled event type; logging only")
	}

	marked, err := u.events.MarkProcessed(ctx, nil, rec.ID, u.now())
	if err != nil {
		return nil, err
	}
	if !marked {
		// A concurrent delivery finished first; the projection is idempotent.
		l.Debug().Msg("event already marked processed")
	}
	if res.Changed {
		metrics.IncSubscriberTransition(res.From, res.To)
		l.Info().Str("from", string(res.From)).Str("to", string(res.To)).Msg("subscriber updated")
	}
	return res, nil
}

// record returns the log row for the event, inserting it unprocessed on first sight.
func (u *webhookUC) record(ctx context.Context, ev model.BillingEvent, providerEventID string, raw []byte) (*model.WebhookEvent, error) {
	provider := u.provider.Name()
	existing, err := u.events.FindByProviderEventID(ctx, nil, provider, providerEventID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	rec := model.NewWebhookEvent(provider, providerEventID, ev.Type(), raw, u.now())
	created, err := u.events.InsertIfAbsent(ctx, nil, rec)
	if err != nil {
		return nil, err
	}
	if created {
		return rec, nil
	}
	// Lost the insert race to a concurrent delivery.
	return u.events.FindByProviderEventID(ctx, nil, provider, providerEventID)
}

// apply reads the current row, projects the event and upserts in one
// transaction so deliveries for the same email serialize on the row lock.
func (u *webhookUC) apply(ctx context.Context, ev model.BillingEvent, res *WebhookResult) error {
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var current *model.Subscriber
		if email := model.NormalizeEmail(ev.Data().CustomerEmail); email != "" {
			s, err := u.subs.FindByEmail(ctx, tx, email)
			switch {
			case err == nil:
				current = s
			case errors.Is(err, domain.ErrNotFound):
			default:
				return err
			}
		}

		p, err := Project(ev, current, u.now())
		if err != nil {
			return err
		}
		res.From, res.To = p.From, p.To
		if !p.Changed {
			return nil
		}
		if err := u.subs.Upsert(ctx, tx, p.Subscriber); err != nil {
			return err
		}
		res.Changed = true
		return nil
	})
}

func lockKey(provider, providerEventID string) string {
	return fmt.Sprintf("webhook_lock:%s:%s", provider, providerEventID)
}

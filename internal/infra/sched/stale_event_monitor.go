package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"aitools-pro-billing/internal/domain/ports/repository"
	"aitools-pro-billing/internal/infra/metrics"
)

// PoolStatsFunc reports connection pool usage (total, idle, in use).
type PoolStatsFunc func() (total, idle, inUse int32)

// StaleEventMonitor periodically counts webhook events that were logged but
// never processed. It only reports; reprocessing is left to provider retries
// and the admin replay endpoint.
type StaleEventMonitor struct {
	events     repository.WebhookEventRepository
	interval   time.Duration
	staleAfter time.Duration
	poolStats  PoolStatsFunc // optional
	now        func() time.Time
	log        *zerolog.Logger
}

func NewStaleEventMonitor(events repository.WebhookEventRepository, interval, staleAfter time.Duration, poolStats PoolStatsFunc, logger *zerolog.Logger) *StaleEventMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	l := logger.With().Str("component", "StaleEventMonitor").Logger()
	return &StaleEventMonitor{
		events:     events,
		interval:   interval,
		staleAfter: staleAfter,
		poolStats:  poolStats,
		now:        func() time.Time { return time.Now().UTC() },
		log:        &l,
	}
}

func (w *StaleEventMonitor) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("Starting stale event monitor")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stale event monitor")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *StaleEventMonitor) tick(ctx context.Context) {
	if w.poolStats != nil {
		metrics.SetDBPoolStats(w.poolStats())
	}

	cutoff := w.now().Add(-w.staleAfter)
	n, err := w.events.CountUnprocessedOlderThan(ctx, nil, cutoff)
	if err != nil {
		w.log.Error().Err(err).Msg("count stale webhook events")
		return
	}
	metrics.SetStaleWebhookEvents(n)
	if n == 0 {
		return
	}

	ev := w.log.Warn().Int("count", n).Time("cutoff", cutoff)
	if sample, err := w.events.ListUnprocessedOlderThan(ctx, nil, cutoff, 5); err == nil {
		ids := make([]string, 0, len(sample))
		for _, s := range sample {
			ids = append(ids, s.ID)
		}
		ev = ev.Strs("sample_ids", ids)
	}
	ev.Msg("webhook events logged but not processed")
}

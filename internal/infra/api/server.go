package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"aitools-pro-billing/internal/domain"
	"aitools-pro-billing/internal/domain/model"
	"aitools-pro-billing/internal/infra/adapters/payment"
	"aitools-pro-billing/internal/infra/logging"
	"aitools-pro-billing/internal/infra/metrics"
	"aitools-pro-billing/internal/usecase"
)

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	WebhookPath       string
	MaxBodyBytes      int64
	RequestTimeout    time.Duration
	WebhookPerMinute  int           // <=0 disables the limiter
	DefaultStaleAfter time.Duration // default older_than for the stale listing
	TrustProxy        bool          // honor X-Forwarded-For / X-Real-IP
	Dev               bool
}

// Server exposes the webhook receiver, health, metrics and the admin API.
type Server struct {
	webhooks usecase.WebhookUseCase
	ents     usecase.EntitlementUseCase
	auth     *AdminAuth // nil: admin routes are not mounted
	limiter  Limiter    // nil: no rate limit
	checks   map[string]Pinger
	opts     Options
	log      *zerolog.Logger
}

func NewServer(
	webhooks usecase.WebhookUseCase,
	ents usecase.EntitlementUseCase,
	auth *AdminAuth,
	limiter Limiter,
	checks map[string]Pinger,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.WebhookPath == "" {
		opts.WebhookPath = "/webhooks/paystack"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.DefaultStaleAfter <= 0 {
		opts.DefaultStaleAfter = 5 * time.Minute
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		webhooks: webhooks,
		ents:     ents,
		auth:     auth,
		limiter:  limiter,
		checks:   checks,
		opts:     opts,
		log:      &l,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	if s.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(TraceID(s.log), RequestLog(s.log), Recover(s.log))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(CORS("Content-Type, " + payment.SignatureHeader))
		r.Use(RateLimit(s.limiter, s.opts.WebhookPerMinute, s.log))
		r.Use(Timeout(s.opts.RequestTimeout))
		r.Post(s.opts.WebhookPath, s.handleWebhook)
		r.Options(s.opts.WebhookPath, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	if s.auth != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(s.auth.Middleware(s.log))
			r.Use(Timeout(s.opts.RequestTimeout))
			r.Get("/entitlements/{email}", s.handleEntitlement)
			r.Get("/webhook-events/stale", s.handleListStale)
			r.Post("/webhook-events/{id}/replay", s.handleReplay)
		})
	}
	return r
}

type webhookAck struct {
	Received   bool `json:"received"`
	Idempotent bool `json:"idempotent,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	l := logging.With(r.Context(), s.log)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.ObserveWebhook("unparsed", "too_large", time.Since(start))
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		metrics.ObserveWebhook("unparsed", "error", time.Since(start))
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	res, err := s.webhooks.Handle(r.Context(), usecase.Delivery{
		Body:      body,
		Signature: r.Header.Get(payment.SignatureHeader),
	})
	if err != nil {
		code, msg, outcome := webhookFailure(err)
		metrics.ObserveWebhook("unparsed", outcome, time.Since(start))
		if code >= http.StatusInternalServerError {
			l.Error().Err(err).Msg("webhook processing failed")
		} else {
			l.Warn().Err(err).Msg("webhook rejected")
		}
		writeError(w, code, msg)
		return
	}

	outcome := "processed"
	switch {
	case res.Idempotent:
		outcome = "idempotent"
	case res.EventType == model.EventTypeUnknown:
		outcome = "ignored"
	}
	metrics.ObserveWebhook(string(res.EventType), outcome, time.Since(start))
	writeJSON(w, http.StatusOK, webhookAck{Received: true, Idempotent: res.Idempotent})
}

// webhookFailure maps use case errors onto status, body message and metric outcome.
func webhookFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid signature", "invalid_signature"
	case errors.Is(err, domain.ErrMissingCustomerEmail):
		return http.StatusBadRequest, "missing customer email", "invalid_payload"
	case errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusBadRequest, "invalid payload", "invalid_payload"
	case errors.Is(err, domain.ErrEventInFlight):
		return http.StatusInternalServerError, "event in flight", "in_flight"
	default:
		return http.StatusInternalServerError, "internal error", "error"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	code := http.StatusOK
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			status[name] = "down"
			code = http.StatusServiceUnavailable
			logging.With(r.Context(), s.log).Warn().Err(err).Str("dependency", name).Msg("health check failed")
			continue
		}
		status[name] = "ok"
	}
	writeJSON(w, code, map[string]any{"ok": code == http.StatusOK, "checks": status})
}

func (s *Server) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}
	e, err := s.ents.Get(r.Context(), email)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, e)
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid email")
	default:
		logging.With(r.Context(), s.log).Error().Err(err).
			Str("email", logging.Redact(email, s.opts.Dev)).Msg("entitlement lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type webhookEventView struct {
	ID              string     `json:"id"`
	Provider        string     `json:"provider"`
	ProviderEventID string     `json:"provider_event_id"`
	EventType       string     `json:"event_type"`
	Processed       bool       `json:"processed"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	PayloadBytes    int        `json:"payload_bytes"`
}

func toEventView(ev *model.WebhookEvent) webhookEventView {
	return webhookEventView{
		ID:              ev.ID,
		Provider:        ev.Provider,
		ProviderEventID: ev.ProviderEventID,
		EventType:       string(ev.EventType),
		Processed:       ev.Processed,
		ProcessedAt:     ev.ProcessedAt,
		CreatedAt:       ev.CreatedAt,
		PayloadBytes:    len(ev.RawPayload),
	}
}

func (s *Server) handleListStale(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	olderThan := s.opts.DefaultStaleAfter
	if v := q.Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "invalid older_than")
			return
		}
		olderThan = d
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	list, err := s.webhooks.ListStale(r.Context(), olderThan, limit)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("list stale events failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]webhookEventView, 0, len(list))
	for _, ev := range list {
		items = append(items, toEventView(ev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

type replayResponse struct {
	EventID         string `json:"event_id"`
	ProviderEventID string `json:"provider_event_id"`
	EventType       string `json:"event_type"`
	Idempotent      bool   `json:"idempotent"`
	Changed         bool   `json:"changed"`
	From            string `json:"from,omitempty"`
	To              string `json:"to,omitempty"`
}

// handleReplay serves POST /api/v1/webhook-events/{id}/replay. A processed
// event answers idempotent. Activations compute ends_at from the event's own
// paid_at/created_at, so a charge replayed days later keeps its original
// period and may already be past its end date; only a payload with neither
// timestamp falls back to the replay time.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.webhooks.Replay(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, domain.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, "invalid event id")
		default:
			code, msg, _ := webhookFailure(err)
			logging.With(r.Context(), s.log).Warn().Err(err).Str("event_id", id).Msg("replay failed")
			writeError(w, code, msg)
		}
		return
	}
	logging.With(r.Context(), s.log).Info().Str("event_id", id).Bool("changed", res.Changed).Msg("event replayed")
	writeJSON(w, http.StatusOK, replayResponse{
		EventID:         res.EventID,
		ProviderEventID: res.ProviderEventID,
		EventType:       string(res.EventType),
		Idempotent:      res.Idempotent,
		Changed:         res.Changed,
		From:            string(res.From),
		To:              string(res.To),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

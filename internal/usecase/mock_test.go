//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"aitools-pro-billing/internal/domain"
	"aitools-pro-billing/internal/domain/model"
	"aitools-pro-billing/internal/domain/ports/adapter"
	"aitools-pro-billing/internal/domain/ports/repository"
)

// ---- In-memory WebhookEventRepository ----

type MockWebhookEventRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.WebhookEvent
	byKey   map[string]string // provider|provider_event_id -> id
	Inserts int

	MarkProcessedErr error // returned (once) by MarkProcessed when set
}

var _ repository.WebhookEventRepository = (*MockWebhookEventRepo)(nil)

func NewMockWebhookEventRepo() *MockWebhookEventRepo {
	return &MockWebhookEventRepo{byID: map[string]*model.WebhookEvent{}, byKey: map[string]string{}}
}

func eventKey(provider, id string) string { return provider + "|" + id }

func copyEvent(ev *model.WebhookEvent) *model.WebhookEvent {
	cp := *ev
	cp.RawPayload = append([]byte(nil), ev.RawPayload...)
	if ev.ProcessedAt != nil {
		t := *ev.ProcessedAt
		cp.ProcessedAt = &t
	}
	return &cp
}

func (m *MockWebhookEventRepo) FindByProviderEventID(ctx context.Context, tx repository.Tx, provider, providerEventID string) (*model.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[eventKey(provider, providerEventID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyEvent(m.byID[id]), nil
}

func (m *MockWebhookEventRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyEvent(ev), nil
}

func (m *MockWebhookEventRepo) InsertIfAbsent(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := eventKey(ev.Provider, ev.ProviderEventID)
	if _, ok := m.byKey[k]; ok {
		return false, nil
	}
	m.byKey[k] = ev.ID
	m.byID[ev.ID] = copyEvent(ev)
	m.Inserts++
	return true, nil
}

func (m *MockWebhookEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.MarkProcessedErr; err != nil {
		m.MarkProcessedErr = nil
		return false, err
	}
	ev, ok := m.byID[id]
	if !ok || ev.Processed {
		return false, nil
	}
	ev.Processed = true
	ev.ProcessedAt = &at
	return true, nil
}

func (m *MockWebhookEventRepo) ListUnprocessedOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WebhookEvent
	for _, ev := range m.byID {
		if !ev.Processed && ev.CreatedAt.Before(olderThan) {
			out = append(out, copyEvent(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockWebhookEventRepo) CountUnprocessedOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time) (int, error) {
	list, err := m.ListUnprocessedOlderThan(ctx, tx, olderThan, 0)
	return len(list), err
}

// All returns every stored row.
func (m *MockWebhookEventRepo) All() []*model.WebhookEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.WebhookEvent, 0, len(m.byID))
	for _, ev := range m.byID {
		out = append(out, copyEvent(ev))
	}
	return out
}

// ---- In-memory SubscriberRepository ----

type MockSubscriberRepo struct {
	mu      sync.Mutex
	store   map[string]*model.Subscriber
	Upserts int

	FindErr   error
	UpsertErr error
}

var _ repository.SubscriberRepository = (*MockSubscriberRepo)(nil)

func NewMockSubscriberRepo() *MockSubscriberRepo {
	return &MockSubscriberRepo{store: map[string]*model.Subscriber{}}
}

func (m *MockSubscriberRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	s, ok := m.store[model.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MockSubscriberRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.store[model.NormalizeEmail(s.Email)] = s.Clone()
	m.Upserts++
	return nil
}

func (m *MockSubscriberRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

// ---- Transaction manager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
	Keys  []string
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Keys = append(l.Keys, key)
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrEventInFlight
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// Held reports whether key is currently locked.
func (l *MockLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

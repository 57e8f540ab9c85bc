// Package testutil provides in-memory repository fakes and a scriptable
// provider adapter for service-level tests. The transaction fake serializes
// Mutate on a mutex, mirroring the row lock of the real store.
package testutil

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"paygate/internal/domain/method"
	"paygate/internal/domain/providercfg"
	"paygate/internal/domain/tenant"
	"paygate/internal/domain/transaction"
	"paygate/internal/domain/webhook"
	"paygate/internal/provider"
	"paygate/internal/store/repositories"
)

type TenantRepo struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]tenant.Tenant
}

func NewTenantRepo() *TenantRepo {
	return &TenantRepo{tenants: make(map[uuid.UUID]tenant.Tenant)}
}

func (r *TenantRepo) Create(_ context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = *t
	return nil
}

func (r *TenantRepo) FindByAPIKeyHash(_ context.Context, hash string) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.APIKeyHash == hash {
			cp := t
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

type ProviderConfigRepo struct {
	mu      sync.Mutex
	configs map[uuid.UUID]providercfg.Config
}

func NewProviderConfigRepo() *ProviderConfigRepo {
	return &ProviderConfigRepo{configs: make(map[uuid.UUID]providercfg.Config)}
}

func (r *ProviderConfigRepo) Save(_ context.Context, c *providercfg.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.configs {
		if existing.TenantID == c.TenantID && existing.Provider == c.Provider && id != c.ID {
			delete(r.configs, id)
		}
	}
	r.configs[c.ID] = *c
	return nil
}

func (r *ProviderConfigRepo) FindByID(_ context.Context, id uuid.UUID) (*providercfg.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (r *ProviderConfigRepo) FindByTenantAndProvider(_ context.Context, tenantID uuid.UUID, providerName string) (*providercfg.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.configs {
		if c.TenantID == tenantID && c.Provider == providerName {
			cp := c
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *ProviderConfigRepo) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*providercfg.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*providercfg.Config
	for _, c := range r.configs {
		if c.TenantID == tenantID {
			cp := c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

type MethodRepo struct {
	mu      sync.Mutex
	methods map[uuid.UUID]method.Method
}

func NewMethodRepo() *MethodRepo {
	return &MethodRepo{methods: make(map[uuid.UUID]method.Method)}
}

func (r *MethodRepo) Save(_ context.Context, m *method.Method) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.methods {
		if existing.StorefrontID == m.StorefrontID && existing.Provider == m.Provider && id != m.ID {
			delete(r.methods, id)
		}
	}
	r.methods[m.ID] = *m
	return nil
}

func (r *MethodRepo) FindByStorefrontAndProvider(_ context.Context, storefrontID uuid.UUID, providerName string) (*method.Method, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.methods {
		if m.StorefrontID == storefrontID && m.Provider == providerName {
			cp := m
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *MethodRepo) ListByStorefront(_ context.Context, storefrontID uuid.UUID) ([]*method.Method, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*method.Method
	for _, m := range r.methods {
		if m.StorefrontID == storefrontID {
			cp := m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Provider < out[j].Provider
	})
	return out, nil
}

type TransactionRepo struct {
	mu          sync.Mutex
	txns        map[uuid.UUID]transaction.Transaction
	transitions []transaction.Transition
	nextID      int64

	// MutateErr is returned, then cleared, by the next Mutate call. It lets
	// tests inject a transient store failure.
	MutateErr error
}

func NewTransactionRepo() *TransactionRepo {
	return &TransactionRepo{txns: make(map[uuid.UUID]transaction.Transaction)}
}

func (r *TransactionRepo) Create(_ context.Context, t *transaction.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txns[t.ID] = *t
	return nil
}

func (r *TransactionRepo) FindByID(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txns[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := t
	return &cp, nil
}

func (r *TransactionRepo) FindByProviderIntentID(_ context.Context, providerName, intentID string) (*transaction.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.txns {
		if t.Provider == providerName && t.ProviderIntentID == intentID {
			cp := t
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *TransactionRepo) List(_ context.Context, f repositories.TransactionFilter) ([]*transaction.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*transaction.Transaction
	for _, t := range r.txns {
		if f.TenantID != nil && t.TenantID != *f.TenantID {
			continue
		}
		if f.StorefrontID != nil && t.StorefrontID != *f.StorefrontID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Provider != "" && t.Provider != f.Provider {
			continue
		}
		cp := t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *TransactionRepo) FindStale(_ context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*transaction.Transaction
	for _, t := range r.txns {
		switch t.Status {
		case transaction.StatusPending, transaction.StatusProcessing, transaction.StatusRequiresAction:
		default:
			continue
		}
		if !t.UpdatedAt.Before(cutoff) {
			continue
		}
		cp := t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *TransactionRepo) Mutate(_ context.Context, id uuid.UUID, cause string, eventID *uuid.UUID, fn func(*transaction.Transaction) error) (*transaction.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.MutateErr != nil {
		err := r.MutateErr
		r.MutateErr = nil
		return nil, err
	}
	t, ok := r.txns[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	before := t
	if err := fn(&t); err != nil {
		return nil, err
	}
	if t == before {
		cp := t
		return &cp, nil
	}
	r.txns[id] = t
	if t.Status != before.Status || t.RefundedAmount != before.RefundedAmount {
		r.nextID++
		r.transitions = append(r.transitions, transaction.Transition{
			ID:            r.nextID,
			TransactionID: id,
			From:          before.Status,
			To:            t.Status,
			Cause:         cause,
			EventID:       eventID,
			CreatedAt:     t.UpdatedAt,
		})
	}
	cp := t
	return &cp, nil
}

func (r *TransactionRepo) History(_ context.Context, id uuid.UUID) ([]*transaction.Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*transaction.Transition
	for i := range r.transitions {
		if r.transitions[i].TransactionID == id {
			cp := r.transitions[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *TransactionRepo) Stats(_ context.Context, tenantID uuid.UUID, from, to time.Time) ([]*repositories.ProviderStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byProvider := make(map[string]*repositories.ProviderStats)
	for _, t := range r.txns {
		if t.TenantID != tenantID || t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		s := byProvider[t.Provider]
		if s == nil {
			s = &repositories.ProviderStats{Provider: t.Provider}
			byProvider[t.Provider] = s
		}
		s.Total++
		switch t.Status {
		case transaction.StatusSucceeded, transaction.StatusPartiallyRefunded, transaction.StatusRefunded:
			s.Succeeded++
			s.VolumeCaptured += int64(t.Amount)
		case transaction.StatusFailed:
			s.Failed++
		}
		s.VolumeRefunded += int64(t.RefundedAmount)
	}
	out := make([]*repositories.ProviderStats, 0, len(byProvider))
	for _, s := range byProvider {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

type WebhookEventRepo struct {
	mu     sync.Mutex
	events []webhook.Event
}

func NewWebhookEventRepo() *WebhookEventRepo { return &WebhookEventRepo{} }

func (r *WebhookEventRepo) Insert(_ context.Context, e *webhook.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *WebhookEventRepo) Exists(_ context.Context, providerName, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Provider != providerName || e.EventID != eventID {
			continue
		}
		// same predicate as the partial unique index: only a claimed or
		// applied delivery holds the event id
		if e.Outcome == webhook.OutcomePending || e.Outcome == webhook.OutcomeProcessed {
			return true, nil
		}
	}
	return false, nil
}

func (r *WebhookEventRepo) Finalize(_ context.Context, e *webhook.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].ID == e.ID {
			r.events[i] = *e
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (r *WebhookEventRepo) ListRecent(_ context.Context, limit, offset int) ([]*webhook.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*webhook.Event, 0, len(r.events))
	for i := len(r.events) - 1; i >= 0; i-- {
		cp := r.events[i]
		out = append(out, &cp)
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every recorded event, oldest first.
func (r *WebhookEventRepo) All() []webhook.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]webhook.Event(nil), r.events...)
}

// Dedup is a process-local stand-in for the Redis filter.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewDedup() *Dedup { return &Dedup{seen: make(map[string]bool)} }

func (d *Dedup) MarkSeen(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *Dedup) Forget(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// FakeAdapter is a scriptable provider.Adapter. Unset function fields fall
// back to benign defaults.
type FakeAdapter struct {
	ProviderName string
	Info         provider.MethodInfo

	CreateIntentFn func(ctx context.Context, creds provider.Credentials, req provider.IntentRequest) (*provider.IntentResult, error)
	GetStatusFn    func(ctx context.Context, creds provider.Credentials, intentID string) (*provider.StatusResult, error)
	RefundFn       func(ctx context.Context, creds provider.Credentials, providerRef string, amount transaction.Money, reason string) (*provider.RefundResult, error)
	VerifyFn       func(payload []byte, headers http.Header, secret string) error
	ParseFn        func(payload []byte) (*provider.ParsedEvent, error)
}

func (f *FakeAdapter) Name() string { return f.ProviderName }

func (f *FakeAdapter) MethodInfo() provider.MethodInfo { return f.Info }

func (f *FakeAdapter) CreateIntent(ctx context.Context, creds provider.Credentials, req provider.IntentRequest) (*provider.IntentResult, error) {
	if f.CreateIntentFn != nil {
		return f.CreateIntentFn(ctx, creds, req)
	}
	return &provider.IntentResult{IntentID: "fake_" + req.OrderRef, Status: transaction.StatusPending}, nil
}

func (f *FakeAdapter) GetStatus(ctx context.Context, creds provider.Credentials, intentID string) (*provider.StatusResult, error) {
	if f.GetStatusFn != nil {
		return f.GetStatusFn(ctx, creds, intentID)
	}
	return &provider.StatusResult{Status: transaction.StatusPending}, nil
}

func (f *FakeAdapter) Refund(ctx context.Context, creds provider.Credentials, providerRef string, amount transaction.Money, reason string) (*provider.RefundResult, error) {
	if f.RefundFn != nil {
		return f.RefundFn(ctx, creds, providerRef, amount, reason)
	}
	return &provider.RefundResult{RefundID: "re_fake", Amount: amount}, nil
}

func (f *FakeAdapter) VerifyWebhook(payload []byte, headers http.Header, secret string) error {
	if f.VerifyFn != nil {
		return f.VerifyFn(payload, headers, secret)
	}
	return nil
}

func (f *FakeAdapter) ParseWebhook(payload []byte) (*provider.ParsedEvent, error) {
	if f.ParseFn != nil {
		return f.ParseFn(payload)
	}
	return &provider.ParsedEvent{}, nil
}

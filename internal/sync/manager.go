package sync

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rafteles16/CRMPSICO/internal/metrics"
	"github.com/rafteles16/CRMPSICO/internal/session"
	"github.com/rafteles16/CRMPSICO/internal/store"
)

// SubscriptionSet holds the three live subscriptions of one tenant. Close is
// safe exactly once and blocks until snapshot delivery into the reconciler
// has stopped, so no snapshot for the old tenant can land after a switch.
type SubscriptionSet struct {
	tenantCNPJ string
	cancel     context.CancelFunc
	subs       []store.Subscription
	done       chan struct{}
	once       sync.Once
}

// Close tears the subscription set down.
func (s *SubscriptionSet) Close() {
	s.once.Do(func() {
		for _, sub := range s.subs {
			sub.Close()
		}
		s.cancel()
		<-s.done
	})
}

// Tenant returns the tenant this set is scoped to.
func (s *SubscriptionSet) Tenant() string { return s.tenantCNPJ }

// Manager owns the lifecycle of the per-tenant collection subscriptions. At
// most one subscription per collection is open at any time; switching tenant
// tears the previous set down before the next one is established.
type Manager struct {
	store   store.DocumentStore
	session *session.Session
	rec     *Reconciler
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	current *SubscriptionSet
}

// NewManager creates a new subscription manager. metrics may be nil in tests.
func NewManager(st store.DocumentStore, sess *session.Session, rec *Reconciler, logger *zap.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		store:   st,
		session: sess,
		rec:     rec,
		logger:  logger,
		metrics: m,
	}
}

// Open establishes the three tenant subscriptions and starts the delivery
// pump. When the principal or the tenant is absent this is the documented
// idle state: no subscription is created and no error is returned.
func (m *Manager) Open(ctx context.Context, tenantCNPJ string) (*SubscriptionSet, error) {
	principal := m.session.Principal()
	if principal == "" || tenantCNPJ == "" {
		m.logger.Debug("Principal or tenant absent, staying idle",
			zap.String("principal", principal),
			zap.String("tenant_id", tenantCNPJ))
		return nil, nil
	}

	m.rec.Reset(tenantCNPJ)

	paths := []string{
		store.ClientsPath(tenantCNPJ),
		store.ConsultationsPath(tenantCNPJ),
		store.LeadsPath,
	}
	collections := []string{"clients", "consultations", "leads"}

	subs := make([]store.Subscription, 0, len(paths))
	for i, path := range paths {
		sub, err := m.store.Subscribe(ctx, path)
		if err != nil {
			for _, opened := range subs {
				opened.Close()
			}
			if m.metrics != nil {
				m.metrics.SubscriptionErrors.WithLabelValues(collections[i]).Inc()
			}
			return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
		}
		subs = append(subs, sub)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	set := &SubscriptionSet{
		tenantCNPJ: tenantCNPJ,
		cancel:     cancel,
		subs:       subs,
		done:       make(chan struct{}),
	}

	m.logger.Info("Subscriptions established",
		zap.String("tenant_id", tenantCNPJ),
		zap.String("principal", principal))
	if m.metrics != nil {
		m.metrics.SubscriptionsOpen.Add(float64(len(subs)))
	}

	go m.pump(pumpCtx, set)
	return set, nil
}

// pump serializes snapshot delivery: each snapshot is applied to completion
// before the next one is taken, so the reconciler needs no internal ordering
// of its own. Last-delivered wins when snapshots arrive out of order.
func (m *Manager) pump(ctx context.Context, set *SubscriptionSet) {
	defer close(set.done)
	defer func() {
		if m.metrics != nil {
			m.metrics.SubscriptionsOpen.Sub(float64(len(set.subs)))
		}
	}()

	clientsCh := set.subs[0].Snapshots()
	consultationsCh := set.subs[1].Snapshots()
	leadsCh := set.subs[2].Snapshots()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-clientsCh:
			m.rec.ApplyClients(snap)
			m.countSnapshot("clients")
		case snap := <-consultationsCh:
			m.rec.ApplyConsultations(snap)
			m.countSnapshot("consultations")
		case snap := <-leadsCh:
			m.rec.ApplyLeads(snap)
			m.countSnapshot("leads")
		}
	}
}

func (m *Manager) countSnapshot(collection string) {
	if m.metrics != nil {
		m.metrics.SnapshotsReceived.WithLabelValues(collection).Inc()
	}
}

// Switch closes the current subscription set, then opens one for the given
// tenant. An empty tenant resets to a logged-out, idle state. Open failures
// are reported and leave the reconciler empty (no stale cross-tenant data).
func (m *Manager) Switch(ctx context.Context, tenantCNPJ string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Close()
		m.current = nil
		if m.metrics != nil {
			m.metrics.TenantSwitches.Inc()
		}
	}

	if tenantCNPJ == "" {
		m.rec.Reset("")
		return
	}

	set, err := m.Open(ctx, tenantCNPJ)
	if err != nil {
		m.logger.Error("Failed to open tenant subscriptions",
			zap.String("tenant_id", tenantCNPJ),
			zap.Error(err))
		m.rec.Reset("")
		return
	}
	m.current = set
}

// Run watches the session and rebuilds the subscriptions on every tenant
// change until the context is cancelled.
func (m *Manager) Run(ctx context.Context) {
	changes := m.session.Watch()
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case change := <-changes:
			m.Switch(ctx, change.CNPJ)
		}
	}
}

// Close tears down the current subscription set, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}

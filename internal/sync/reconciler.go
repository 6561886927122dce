// Package sync owns the realtime core: the collection subscription manager
// and the view-state reconciler that mirrors the tenant's server-held
// collections into canonical in-memory state.
package sync

import (
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/rafteles16/CRMPSICO/internal/metrics"
	"github.com/rafteles16/CRMPSICO/internal/model"
)

// Reconciler owns the three canonical containers. They are updated only by
// whole-snapshot replacement; dependent views (the open client record, the
// per-client consultation subset, the lead ordering) are re-derived from the
// latest snapshot rather than patched.
type Reconciler struct {
	mu            sync.RWMutex
	tenantCNPJ    string
	clients       []model.Client
	consultations []model.Consultation
	leads         []model.Lead
	activeClient  *model.Client
	loading       bool

	collator *collate.Collator
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewReconciler creates a new reconciler. metrics may be nil in tests.
func NewReconciler(logger *zap.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		// Client names are Brazilian Portuguese; Loose ignores case and
		// diacritic differences the way the presentation expects.
		collator: collate.New(language.BrazilianPortuguese, collate.Loose),
		logger:   logger,
		metrics:  m,
	}
}

// Reset clears every container for a new tenant and arms the loading flag,
// which only the first clients snapshot clears. An empty tenant resets to
// the logged-out state with the flag down.
func (r *Reconciler) Reset(tenantCNPJ string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tenantCNPJ = tenantCNPJ
	r.clients = nil
	r.consultations = nil
	r.leads = nil
	r.activeClient = nil
	r.loading = tenantCNPJ != ""

	if r.metrics != nil {
		r.metrics.CanonicalDocuments.WithLabelValues("clients").Set(0)
		r.metrics.CanonicalDocuments.WithLabelValues("consultations").Set(0)
		r.metrics.CanonicalDocuments.WithLabelValues("leads").Set(0)
	}
}

// ApplyClients replaces the canonical client list, re-sorted by name. If a
// client record is currently open its refreshed version replaces it; when
// the record was deleted remotely the open record is left in place, not
// auto-dismissed. Clears the loading flag.
func (r *Reconciler) ApplyClients(snap model.Snapshot) {
	clients := make([]model.Client, 0, len(snap))
	for _, doc := range snap {
		clients = append(clients, model.ClientFromDocument(doc))
	}
	sort.SliceStable(clients, func(i, j int) bool {
		return r.collator.CompareString(clients[i].Name, clients[j].Name) < 0
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients = clients
	r.loading = false

	if r.activeClient != nil && r.activeClient.ID != model.NewClientID {
		for i := range clients {
			if clients[i].ID == r.activeClient.ID {
				refreshed := clients[i]
				r.activeClient = &refreshed
				break
			}
		}
	}

	if r.metrics != nil {
		r.metrics.CanonicalDocuments.WithLabelValues("clients").Set(float64(len(clients)))
	}
}

// ApplyConsultations replaces the canonical consultation list. The
// per-client subset is derived lazily in ConsultationsFor.
func (r *Reconciler) ApplyConsultations(snap model.Snapshot) {
	consultations := make([]model.Consultation, 0, len(snap))
	for _, doc := range snap {
		consultations = append(consultations, model.ConsultationFromDocument(doc))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.consultations = consultations
	if r.metrics != nil {
		r.metrics.CanonicalDocuments.WithLabelValues("consultations").Set(float64(len(consultations)))
	}
}

// ApplyLeads replaces the canonical lead list with the documents belonging
// to the active tenant. The lead collection is shared and unscoped at the
// storage level, so the tenant filter is enforced here, after fetch.
func (r *Reconciler) ApplyLeads(snap model.Snapshot) {
	r.mu.RLock()
	tenant := r.tenantCNPJ
	r.mu.RUnlock()

	leads := make([]model.Lead, 0, len(snap))
	for _, doc := range snap {
		lead := model.LeadFromDocument(doc)
		if lead.CNPJ != tenant {
			continue
		}
		leads = append(leads, lead)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// The tenant may have switched while decoding; a Reset has already
	// cleared the containers and this snapshot belongs to the old tenant.
	if r.tenantCNPJ != tenant {
		return
	}

	r.leads = leads
	if r.metrics != nil {
		r.metrics.CanonicalDocuments.WithLabelValues("leads").Set(float64(len(leads)))
	}
}

// Clients returns the canonical client list, sorted by name ascending.
func (r *Reconciler) Clients() []model.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Client(nil), r.clients...)
}

// Consultations returns the canonical consultation list.
func (r *Reconciler) Consultations() []model.Consultation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Consultation(nil), r.consultations...)
}

// Leads returns the lead list sorted by creation time descending. The sort
// is a view concern applied at read time, independent of storage order.
func (r *Reconciler) Leads() []model.Lead {
	r.mu.RLock()
	leads := append([]model.Lead(nil), r.leads...)
	r.mu.RUnlock()

	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].CreatedAt.After(leads[j].CreatedAt)
	})
	return leads
}

// ConsultationsFor derives the consultation subset of one client from the
// latest snapshot. Recomputed on every call, never stored.
func (r *Reconciler) ConsultationsFor(clientID string) []model.Consultation {
	if clientID == "" || clientID == model.NewClientID {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var subset []model.Consultation
	for _, c := range r.consultations {
		if c.ClientID == clientID {
			subset = append(subset, c)
		}
	}
	return subset
}

// SelectClient opens a client record in the detail view.
func (r *Reconciler) SelectClient(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.clients {
		if r.clients[i].ID == clientID {
			selected := r.clients[i]
			r.activeClient = &selected
			return true
		}
	}
	return false
}

// SelectNewClient opens the new-client placeholder in the detail view.
func (r *Reconciler) SelectNewClient() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeClient = &model.Client{ID: model.NewClientID}
}

// ClearSelection closes the detail view.
func (r *Reconciler) ClearSelection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeClient = nil
}

// ActiveClient returns the open client record, if any.
func (r *Reconciler) ActiveClient() (model.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeClient == nil {
		return model.Client{}, false
	}
	return *r.activeClient, true
}

// Loading reports whether the first clients snapshot for the current tenant
// is still pending. Consultations and leads never gate this flag.
func (r *Reconciler) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Tenant returns the tenant the containers are scoped to.
func (r *Reconciler) Tenant() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tenantCNPJ
}

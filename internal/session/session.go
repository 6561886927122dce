// Package session holds the session/tenant context: the authenticated
// principal and the currently selected tenant. All data access is
// parameterized by this context; changing the tenant is the sole trigger for
// rebuilding the collection subscriptions.
package session

import (
	"sync"

	"go.uber.org/zap"
)

// TenantChange is published to watchers whenever the active tenant changes.
// An empty CNPJ means logged out.
type TenantChange struct {
	CNPJ string
	Name string
}

// Session is the session/tenant context. The principal is assigned at most
// once per session; the tenant is set by login and cleared by logout.
type Session struct {
	mu         sync.RWMutex
	principal  string
	tenantCNPJ string
	tenantName string
	watchers   []chan TenantChange
	logger     *zap.Logger
}

// New creates an empty session
func New(logger *zap.Logger) *Session {
	return &Session{logger: logger}
}

// SetPrincipal assigns the principal identifier. Only the first assignment
// takes effect; later calls are ignored and logged.
func (s *Session) SetPrincipal(principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.principal != "" {
		s.logger.Warn("Principal already assigned, ignoring reassignment",
			zap.String("principal", s.principal),
			zap.String("ignored", principal))
		return
	}
	s.principal = principal
}

// Principal returns the principal identifier, or "" before sign-in.
func (s *Session) Principal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal
}

// Login selects the active tenant and notifies watchers.
func (s *Session) Login(cnpj, name string) {
	s.mu.Lock()
	s.tenantCNPJ = cnpj
	s.tenantName = name
	s.mu.Unlock()

	s.logger.Info("Tenant selected",
		zap.String("tenant_id", cnpj),
		zap.String("tenant_name", name))
	s.notify(TenantChange{CNPJ: cnpj, Name: name})
}

// Logout clears the active tenant and notifies watchers.
func (s *Session) Logout() {
	s.mu.Lock()
	cnpj := s.tenantCNPJ
	s.tenantCNPJ = ""
	s.tenantName = ""
	s.mu.Unlock()

	s.logger.Info("Tenant cleared", zap.String("tenant_id", cnpj))
	s.notify(TenantChange{})
}

// ActiveTenant returns the selected tenant identifier and display name;
// both empty when logged out.
func (s *Session) ActiveTenant() (cnpj, name string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenantCNPJ, s.tenantName
}

// Watch registers a tenant-change watcher. The channel has capacity one and
// coalesces: a slow watcher observes the latest change, not every
// intermediate one.
func (s *Session) Watch() <-chan TenantChange {
	ch := make(chan TenantChange, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Session) notify(change TenantChange) {
	s.mu.RLock()
	watchers := append([]chan TenantChange(nil), s.watchers...)
	s.mu.RUnlock()

	for _, ch := range watchers {
		select {
		case ch <- change:
		default:
			// Drop the stale pending change so the latest one wins.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}

// Package service implements the lead conversion workflow.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rafteles16/CRMPSICO/internal/metrics"
	"github.com/rafteles16/CRMPSICO/internal/model"
	"github.com/rafteles16/CRMPSICO/internal/session"
	"github.com/rafteles16/CRMPSICO/internal/store"
)

// DefaultSessionFee is the baseline fee stamped on clients converted from
// leads when no override is configured.
const DefaultSessionFee = 150.00

// LeadOrigin is the origin tag stamped on lead-derived clients.
const LeadOrigin = "Landing Page Lead"

// ErrNoActiveTenant is returned when a mutation is attempted without an
// active tenant or storage handle.
var ErrNoActiveTenant = errors.New("no active tenant")

// ConversionResult reports which phases of a conversion succeeded. The
// two-step sequence is not transactional: phase 1 may succeed while phase 2
// fails, leaving both a new client and a stale lead. Re-invoking Accept is
// the idempotent recovery path.
type ConversionResult struct {
	ClientID      string `json:"client_id,omitempty"`
	ClientCreated bool   `json:"client_created"`
	LeadDeleted   bool   `json:"lead_deleted"`
}

// ConversionService converts inbound leads into client records and deletes
// leads on request. It is the only component that writes documents.
type ConversionService struct {
	store      store.DocumentStore
	session    *session.Session
	sessionFee float64
	originTag  string
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewConversionService creates a new conversion service. metrics may be nil
// in tests.
func NewConversionService(st store.DocumentStore, sess *session.Session, sessionFee float64, originTag string, logger *zap.Logger, m *metrics.Metrics) *ConversionService {
	if sessionFee <= 0 {
		sessionFee = DefaultSessionFee
	}
	if originTag == "" {
		originTag = LeadOrigin
	}
	return &ConversionService{
		store:      st,
		session:    sess,
		sessionFee: sessionFee,
		originTag:  originTag,
		logger:     logger,
		metrics:    m,
	}
}

// Accept converts a lead into a client: phase 1 creates the client document
// under the active tenant, phase 2 deletes the source lead. Creation comes
// first so a failure between the phases leaves the lead visible for an
// idempotent retry instead of silently losing the contact. A lead already
// deleted by a concurrent call is treated as a successful no-op in phase 2.
//
// Concurrent Accept calls on the same lead are not guarded; the second
// create can duplicate the client. Matches the upstream data flow, where the
// operator retriggers conversions manually.
func (s *ConversionService) Accept(ctx context.Context, lead model.Lead) (ConversionResult, error) {
	start := time.Now()
	result := ConversionResult{}

	tenantCNPJ, _ := s.session.ActiveTenant()
	if s.store == nil || tenantCNPJ == "" {
		s.logger.Error("Cannot accept lead without store and active tenant",
			zap.String("lead_id", lead.ID))
		s.countAbort("accept")
		return result, ErrNoActiveTenant
	}

	// Phase 1: create the client record.
	fields := map[string]any{
		model.FieldName:         lead.Name,
		model.FieldEmail:        lead.Email,
		model.FieldPhone:        lead.Phone,
		model.FieldDefaultFee:   s.sessionFee,
		model.FieldFirstSession: s.store.ServerTime(),
		model.FieldCreatedAt:    s.store.ServerTime(),
		model.FieldOrigin:       s.originTag,
	}

	clientID, err := s.store.AddDocument(ctx, store.ClientsPath(tenantCNPJ), fields)
	if err != nil {
		s.logger.Error("Failed to create client from lead",
			zap.String("tenant_id", tenantCNPJ),
			zap.String("lead_id", lead.ID),
			zap.Error(err))
		s.countConversion("create_failed")
		return result, fmt.Errorf("failed to create client: %w", err)
	}
	result.ClientID = clientID
	result.ClientCreated = true

	// Phase 2: delete the source lead. No rollback of phase 1 on failure.
	if err := s.store.DeleteDocument(ctx, store.LeadsPath, lead.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("Client created but lead deletion failed, lead remains visible",
			zap.String("tenant_id", tenantCNPJ),
			zap.String("lead_id", lead.ID),
			zap.String("client_id", clientID),
			zap.Error(err))
		s.countConversion("delete_failed")
		return result, fmt.Errorf("failed to delete lead: %w", err)
	}
	result.LeadDeleted = true

	s.logger.Info("Lead converted to client",
		zap.String("tenant_id", tenantCNPJ),
		zap.String("lead_id", lead.ID),
		zap.String("client_id", clientID),
		zap.String("lead_name", lead.Name))
	s.countConversion("success")
	if s.metrics != nil {
		s.metrics.ConversionDuration.Observe(time.Since(start).Seconds())
	}
	return result, nil
}

// Remove deletes a lead directly, independent of conversion. Same
// precondition rule as Accept; a missing lead is a successful no-op.
func (s *ConversionService) Remove(ctx context.Context, leadID string) error {
	tenantCNPJ, _ := s.session.ActiveTenant()
	if s.store == nil || tenantCNPJ == "" {
		s.logger.Error("Cannot delete lead without store and active tenant",
			zap.String("lead_id", leadID))
		s.countAbort("remove")
		return ErrNoActiveTenant
	}

	if err := s.store.DeleteDocument(ctx, store.LeadsPath, leadID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("Failed to delete lead",
			zap.String("tenant_id", tenantCNPJ),
			zap.String("lead_id", leadID),
			zap.Error(err))
		if s.metrics != nil {
			s.metrics.LeadDeletionsTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("failed to delete lead: %w", err)
	}

	s.logger.Info("Lead deleted",
		zap.String("tenant_id", tenantCNPJ),
		zap.String("lead_id", leadID))
	if s.metrics != nil {
		s.metrics.LeadDeletionsTotal.WithLabelValues("success").Inc()
	}
	return nil
}

func (s *ConversionService) countConversion(outcome string) {
	if s.metrics != nil {
		s.metrics.ConversionsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *ConversionService) countAbort(operation string) {
	if s.metrics != nil {
		s.metrics.PreconditionAborts.WithLabelValues(operation).Inc()
	}
}

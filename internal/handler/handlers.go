// Package handler provides the HTTP handlers of the intent API: the surface
// through which the presentation layer reads reconciled state and issues
// user intents.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rafteles16/CRMPSICO/internal/directory"
	apierrors "github.com/rafteles16/CRMPSICO/internal/errors"
	"github.com/rafteles16/CRMPSICO/internal/model"
	"github.com/rafteles16/CRMPSICO/internal/service"
	"github.com/rafteles16/CRMPSICO/internal/session"
	syncpkg "github.com/rafteles16/CRMPSICO/internal/sync"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	directory    *directory.Directory
	session      *session.Session
	reconciler   *syncpkg.Reconciler
	conversions  *service.ConversionService
	errorHandler *apierrors.Handler
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	dir *directory.Directory,
	sess *session.Session,
	rec *syncpkg.Reconciler,
	conversions *service.ConversionService,
	errorHandler *apierrors.Handler,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		directory:    dir,
		session:      sess,
		reconciler:   rec,
		conversions:  conversions,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

type loginRequest struct {
	CNPJ   string `json:"cnpj"`
	Login  string `json:"login"`
	Secret string `json:"senha"`
}

type loginResponse struct {
	Status     string `json:"status"`
	TenantCNPJ string `json:"tenant_cnpj"`
	TenantName string `json:"tenant_name"`
}

// Login handles POST /v1/session/login requests.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteErrorResponse(w, http.StatusBadRequest, apierrors.ErrorCodeInvalidRequest, "invalid request body", requestID)
		return
	}

	tenant, ok := h.directory.Authenticate(req.CNPJ, req.Login, req.Secret)
	if !ok {
		h.errorHandler.WriteErrorResponse(w, http.StatusUnauthorized, apierrors.ErrorCodeInvalidCredentials,
			"invalid credentials, check the CNPJ, login and password", requestID)
		return
	}

	h.session.Login(tenant.CNPJ, tenant.Name)
	h.writeJSONResponse(w, http.StatusOK, loginResponse{
		Status:     "ok",
		TenantCNPJ: tenant.CNPJ,
		TenantName: tenant.Name,
	})
}

// Logout handles POST /v1/session/logout requests.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout()
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type stateResponse struct {
	TenantCNPJ    string               `json:"tenant_cnpj"`
	TenantName    string               `json:"tenant_name"`
	Principal     string               `json:"principal"`
	Loading       bool                 `json:"loading"`
	Clients       []model.Client       `json:"clients"`
	Consultations []model.Consultation `json:"consultations"`
	Leads         []model.Lead         `json:"leads"`
	ActiveClient  *model.Client        `json:"active_client,omitempty"`
}

// State handles GET /v1/state requests: the full reconciled view state.
func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	cnpj, name := h.session.ActiveTenant()
	resp := stateResponse{
		TenantCNPJ:    cnpj,
		TenantName:    name,
		Principal:     h.session.Principal(),
		Loading:       h.reconciler.Loading(),
		Clients:       h.reconciler.Clients(),
		Consultations: h.reconciler.Consultations(),
		Leads:         h.reconciler.Leads(),
	}
	if active, ok := h.reconciler.ActiveClient(); ok {
		resp.ActiveClient = &active
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// ListClients handles GET /v1/clients requests.
func (h *Handlers) ListClients(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.reconciler.Clients())
}

// ListConsultations handles GET /v1/consultations requests.
func (h *Handlers) ListConsultations(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.reconciler.Consultations())
}

// ListLeads handles GET /v1/leads requests.
func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.reconciler.Leads())
}

// ClientConsultations handles GET /v1/clients/{client_id}/consultations.
func (h *Handlers) ClientConsultations(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]
	h.writeJSONResponse(w, http.StatusOK, h.reconciler.ConsultationsFor(clientID))
}

// SelectClient handles POST /v1/clients/{client_id}/select requests.
func (h *Handlers) SelectClient(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	clientID := mux.Vars(r)["client_id"]

	if clientID == model.NewClientID {
		h.reconciler.SelectNewClient()
		h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if !h.reconciler.SelectClient(clientID) {
		h.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeClientNotFound, "client not found", requestID)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ClearSelection handles DELETE /v1/clients/selection requests.
func (h *Handlers) ClearSelection(w http.ResponseWriter, r *http.Request) {
	h.reconciler.ClearSelection()
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type acceptResponse struct {
	Status string                   `json:"status"`
	Result service.ConversionResult `json:"result"`
	Error  string                   `json:"error,omitempty"`
}

// AcceptLead handles POST /v1/leads/{lead_id}/accept requests. A partial
// failure (client created, lead not deleted) is reported in the result, not
// raised as an error status: the operator retries or deletes the lead.
func (h *Handlers) AcceptLead(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	leadID := mux.Vars(r)["lead_id"]

	var lead model.Lead
	found := false
	for _, candidate := range h.reconciler.Leads() {
		if candidate.ID == leadID {
			lead = candidate
			found = true
			break
		}
	}
	if !found {
		h.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeLeadNotFound, "lead not found", requestID)
		return
	}

	result, err := h.conversions.Accept(r.Context(), lead)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveTenant) {
			h.errorHandler.WriteErrorResponse(w, http.StatusConflict, apierrors.ErrorCodeNoActiveTenant, err.Error(), requestID)
			return
		}
		if !result.ClientCreated {
			h.errorHandler.WriteErrorResponse(w, http.StatusBadGateway, apierrors.ErrorCodeInternalError, err.Error(), requestID)
			return
		}
		h.writeJSONResponse(w, http.StatusOK, acceptResponse{Status: "partial", Result: result, Error: err.Error()})
		return
	}

	h.writeJSONResponse(w, http.StatusOK, acceptResponse{Status: "ok", Result: result})
}

// DeleteLead handles DELETE /v1/leads/{lead_id} requests.
func (h *Handlers) DeleteLead(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	leadID := mux.Vars(r)["lead_id"]

	if err := h.conversions.Remove(r.Context(), leadID); err != nil {
		if errors.Is(err, service.ErrNoActiveTenant) {
			h.errorHandler.WriteErrorResponse(w, http.StatusConflict, apierrors.ErrorCodeNoActiveTenant, err.Error(), requestID)
			return
		}
		h.errorHandler.WriteErrorResponse(w, http.StatusBadGateway, apierrors.ErrorCodeInternalError, err.Error(), requestID)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSONResponse writes a JSON response with the given status code.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rafteles16/CRMPSICO/internal/config"
	"github.com/rafteles16/CRMPSICO/internal/directory"
	apierrors "github.com/rafteles16/CRMPSICO/internal/errors"
	"github.com/rafteles16/CRMPSICO/internal/handler"
	"github.com/rafteles16/CRMPSICO/internal/health"
	"github.com/rafteles16/CRMPSICO/internal/model"
	"github.com/rafteles16/CRMPSICO/internal/server"
	"github.com/rafteles16/CRMPSICO/internal/service"
	"github.com/rafteles16/CRMPSICO/internal/session"
	"github.com/rafteles16/CRMPSICO/internal/store"
	syncpkg "github.com/rafteles16/CRMPSICO/internal/sync"
)

const testTenant = "00.111.222/0001-33"

type fixture struct {
	router *mux.Router
	store  *store.MemoryDocumentStore
	sess   *session.Session
	rec    *syncpkg.Reconciler
	mgr    *syncpkg.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	st := store.NewMemoryDocumentStore(logger)
	t.Cleanup(func() { st.Close() })

	sess := session.New(logger)
	sess.SetPrincipal("token-test")

	rec := syncpkg.NewReconciler(logger, nil)
	mgr := syncpkg.NewManager(st, sess, rec, logger, nil)
	t.Cleanup(mgr.Close)

	conversions := service.NewConversionService(st, sess, 0, "", logger, nil)
	errorHandler := apierrors.NewHandler(logger)
	handlers := handler.NewHandlers(directory.New(logger), sess, rec, conversions, errorHandler, logger)
	healthChecker := health.NewHealthChecker(st, logger)

	cfg := config.DefaultConfig()
	cfg.RateLimiter.Enabled = false
	srv := server.NewServer(cfg, handlers, healthChecker, errorHandler, logger)
	srv.SetupRoutes()

	return &fixture{router: srv.Router(), store: st, sess: sess, rec: rec, mgr: mgr}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

// login authenticates and opens the tenant subscriptions, waiting for the
// initial snapshots to land.
func (f *fixture) login(t *testing.T) {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/v1/session/login", map[string]string{
		"cnpj":  testTenant,
		"login": "sp.admin",
		"senha": "123",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	f.mgr.Switch(context.Background(), testTenant)
	deadline := time.Now().Add(2 * time.Second)
	for f.rec.Loading() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.False(t, f.rec.Loading(), "initial snapshots not delivered")
}

func (f *fixture) seedLead(id, name string) {
	f.store.PutDocument(store.LeadsPath, id, map[string]any{
		model.FieldName:       name,
		model.FieldEmail:      "a@x.com",
		model.FieldPhone:      "111",
		model.FieldTenantCNPJ: testTenant,
		model.FieldCreatedAt:  time.Now().UTC(),
	})
}

func (f *fixture) waitLeads(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(f.rec.Leads()) != n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Len(t, f.rec.Leads(), n)
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/session/login", map[string]string{
		"cnpj":  "00111222000133",
		"login": "sp.admin",
		"senha": "123",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, testTenant, resp["tenant_cnpj"])
	assert.Equal(t, "Clínica Mente Sã", resp["tenant_name"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/session/login", map[string]string{
		"cnpj":  testTenant,
		"login": "sp.admin",
		"senha": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	var resp apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, apierrors.ErrorCodeInvalidCredentials, resp.ErrorCode)
}

func TestLoginMalformedBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/session/login", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStateReflectsReconciledView(t *testing.T) {
	f := newFixture(t)
	f.store.PutDocument(store.ClientsPath(testTenant), "c1", map[string]any{model.FieldName: "Ana"})
	f.seedLead("l1", "Bia")
	f.login(t)
	f.waitLeads(t, 1)

	rr := f.do(t, http.MethodGet, "/v1/state", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		TenantCNPJ string         `json:"tenant_cnpj"`
		Loading    bool           `json:"loading"`
		Clients    []model.Client `json:"clients"`
		Leads      []model.Lead   `json:"leads"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, testTenant, resp.TenantCNPJ)
	assert.False(t, resp.Loading)
	require.Len(t, resp.Clients, 1)
	assert.Equal(t, "Ana", resp.Clients[0].Name)
	require.Len(t, resp.Leads, 1)
	assert.Equal(t, "Bia", resp.Leads[0].Name)
}

func TestSelectClientLifecycle(t *testing.T) {
	f := newFixture(t)
	f.store.PutDocument(store.ClientsPath(testTenant), "c1", map[string]any{model.FieldName: "Ana"})
	f.login(t)

	rr := f.do(t, http.MethodPost, "/v1/clients/c1/select", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	active, ok := f.rec.ActiveClient()
	require.True(t, ok)
	assert.Equal(t, "c1", active.ID)

	rr = f.do(t, http.MethodPost, "/v1/clients/missing/select", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/clients/new/select", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	active, ok = f.rec.ActiveClient()
	require.True(t, ok)
	assert.Equal(t, model.NewClientID, active.ID)

	rr = f.do(t, http.MethodDelete, "/v1/clients/selection", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	_, ok = f.rec.ActiveClient()
	assert.False(t, ok)
}

func TestAcceptLeadEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.seedLead("l1", "Ana")
	f.login(t)
	f.waitLeads(t, 1)

	rr := f.do(t, http.MethodPost, "/v1/leads/l1/accept", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Status string                   `json:"status"`
		Result service.ConversionResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Result.ClientCreated)
	assert.True(t, resp.Result.LeadDeleted)
	require.NotEmpty(t, resp.Result.ClientID)

	// The converted client and the emptied lead list flow back through the
	// subscriptions.
	f.waitLeads(t, 0)
	deadline := time.Now().Add(2 * time.Second)
	for len(f.rec.Clients()) != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	clients := f.rec.Clients()
	require.Len(t, clients, 1)
	assert.Equal(t, "Ana", clients[0].Name)
	assert.Equal(t, service.DefaultSessionFee, clients[0].DefaultFee)
	assert.Equal(t, service.LeadOrigin, clients[0].Origin)
}

func TestAcceptUnknownLead(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	rr := f.do(t, http.MethodPost, "/v1/leads/nope/accept", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	var resp apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, apierrors.ErrorCodeLeadNotFound, resp.ErrorCode)
}

func TestDeleteLead(t *testing.T) {
	f := newFixture(t)
	f.seedLead("l1", "Ana")
	f.login(t)
	f.waitLeads(t, 1)

	rr := f.do(t, http.MethodDelete, "/v1/leads/l1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	f.waitLeads(t, 0)

	// Deleting an already removed lead stays a success.
	rr = f.do(t, http.MethodDelete, "/v1/leads/l1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDeleteLeadWithoutTenant(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodDelete, "/v1/leads/l1", nil)
	require.Equal(t, http.StatusConflict, rr.Code)

	var resp apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, apierrors.ErrorCodeNoActiveTenant, resp.ErrorCode)
}

func TestLogoutClearsTenant(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	rr := f.do(t, http.MethodPost, "/v1/session/logout", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	cnpj, _ := f.sess.ActiveTenant()
	assert.Empty(t, cnpj)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodDelete, "/v1/state", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rafteles16/CRMPSICO/internal/model"
	"github.com/rafteles16/CRMPSICO/internal/session"
	"github.com/rafteles16/CRMPSICO/internal/store"
)

const otherTenant = "44.555.666/0001-77"

func newManagerFixture(t *testing.T) (*Manager, *store.MemoryDocumentStore, *Reconciler, *session.Session) {
	t.Helper()
	logger := zap.NewNop()
	st := store.NewMemoryDocumentStore(logger)
	t.Cleanup(func() { st.Close() })

	sess := session.New(logger)
	rec := NewReconciler(logger, nil)
	mgr := NewManager(st, sess, rec, logger, nil)
	t.Cleanup(mgr.Close)
	return mgr, st, rec, sess
}

// waitFor polls until the condition holds or the deadline passes. Snapshot
// delivery is asynchronous, so assertions about reconciler state go through
// here.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func TestOpenIdleWithoutPrincipal(t *testing.T) {
	mgr, _, _, _ := newManagerFixture(t)

	set, err := mgr.Open(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Nil(t, set)
}

func TestOpenIdleWithoutTenant(t *testing.T) {
	mgr, _, _, sess := newManagerFixture(t)
	sess.SetPrincipal("token-abc")

	set, err := mgr.Open(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, set)
}

func TestOpenDeliversInitialSnapshots(t *testing.T) {
	mgr, st, rec, sess := newManagerFixture(t)
	sess.SetPrincipal("token-abc")

	st.PutDocument(store.ClientsPath(testTenant), "c1", map[string]any{model.FieldName: "Ana"})
	st.PutDocument(store.LeadsPath, "l1", map[string]any{
		model.FieldName:       "Bia",
		model.FieldTenantCNPJ: testTenant,
		model.FieldCreatedAt:  time.Now(),
	})

	set, err := mgr.Open(context.Background(), testTenant)
	require.NoError(t, err)
	require.NotNil(t, set)
	defer set.Close()

	waitFor(t, func() bool { return len(rec.Clients()) == 1 }, "initial clients snapshot")
	waitFor(t, func() bool { return len(rec.Leads()) == 1 }, "initial leads snapshot")
	assert.False(t, rec.Loading())
}

func TestLiveChangesReachReconciler(t *testing.T) {
	mgr, st, rec, sess := newManagerFixture(t)
	sess.SetPrincipal("token-abc")

	set, err := mgr.Open(context.Background(), testTenant)
	require.NoError(t, err)
	defer set.Close()

	waitFor(t, func() bool { return !rec.Loading() }, "initial clients snapshot")

	st.PutDocument(store.ClientsPath(testTenant), "c1", map[string]any{model.FieldName: "Ana"})
	waitFor(t, func() bool { return len(rec.Clients()) == 1 }, "client add propagated")

	require.NoError(t, st.DeleteDocument(context.Background(), store.ClientsPath(testTenant), "c1"))
	waitFor(t, func() bool { return len(rec.Clients()) == 0 }, "client delete propagated")
}

func TestSwitchIsolatesTenants(t *testing.T) {
	mgr, st, rec, sess := newManagerFixture(t)
	sess.SetPrincipal("token-abc")
	ctx := context.Background()

	st.PutDocument(store.ClientsPath(testTenant), "c1", map[string]any{model.FieldName: "Ana"})
	st.PutDocument(store.LeadsPath, "l1", map[string]any{
		model.FieldName:       "Lead A",
		model.FieldTenantCNPJ: testTenant,
		model.FieldCreatedAt:  time.Now(),
	})

	mgr.Switch(ctx, testTenant)
	waitFor(t, func() bool { return len(rec.Clients()) == 1 }, "first tenant loaded")

	mgr.Switch(ctx, otherTenant)
	waitFor(t, func() bool { return !rec.Loading() }, "second tenant loaded")

	// Writes against the previous tenant must never surface again.
	st.PutDocument(store.ClientsPath(testTenant), "c2", map[string]any{model.FieldName: "Bruno"})
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, otherTenant, rec.Tenant())
	assert.Empty(t, rec.Clients())
	assert.Empty(t, rec.Leads())
}

func TestSwitchToEmptyTenantResets(t *testing.T) {
	mgr, st, rec, sess := newManagerFixture(t)
	sess.SetPrincipal("token-abc")
	ctx := context.Background()

	st.PutDocument(store.ClientsPath(testTenant), "c1", map[string]any{model.FieldName: "Ana"})
	mgr.Switch(ctx, testTenant)
	waitFor(t, func() bool { return len(rec.Clients()) == 1 }, "tenant loaded")

	mgr.Switch(ctx, "")

	assert.Empty(t, rec.Tenant())
	assert.Empty(t, rec.Clients())
	assert.False(t, rec.Loading())
}

func TestLeadsSharedCollectionScopedPerTenant(t *testing.T) {
	mgr, st, rec, sess := newManagerFixture(t)
	sess.SetPrincipal("token-abc")
	ctx := context.Background()

	st.PutDocument(store.LeadsPath, "l1", map[string]any{
		model.FieldName:       "Lead A",
		model.FieldTenantCNPJ: testTenant,
		model.FieldCreatedAt:  time.Now(),
	})
	st.PutDocument(store.LeadsPath, "l2", map[string]any{
		model.FieldName:       "Lead B",
		model.FieldTenantCNPJ: otherTenant,
		model.FieldCreatedAt:  time.Now(),
	})

	mgr.Switch(ctx, testTenant)
	waitFor(t, func() bool { return len(rec.Leads()) == 1 }, "first tenant lead visible")
	assert.Equal(t, "l1", rec.Leads()[0].ID)

	mgr.Switch(ctx, otherTenant)
	waitFor(t, func() bool {
		leads := rec.Leads()
		return len(leads) == 1 && leads[0].ID == "l2"
	}, "second tenant lead visible")
}

func TestRunFollowsSessionChanges(t *testing.T) {
	mgr, st, rec, sess := newManagerFixture(t)
	sess.SetPrincipal("token-abc")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	st.PutDocument(store.ClientsPath(testTenant), "c1", map[string]any{model.FieldName: "Ana"})

	// Give Run a moment to register its session watcher.
	time.Sleep(20 * time.Millisecond)
	sess.Login(testTenant, "Clínica Bem Estar")
	waitFor(t, func() bool { return len(rec.Clients()) == 1 }, "login opened subscriptions")

	sess.Logout()
	waitFor(t, func() bool { return rec.Tenant() == "" }, "logout tore subscriptions down")
	assert.Empty(t, rec.Clients())
}

func TestSubscriptionSetCloseIdempotent(t *testing.T) {
	mgr, _, _, sess := newManagerFixture(t)
	sess.SetPrincipal("token-abc")

	set, err := mgr.Open(context.Background(), testTenant)
	require.NoError(t, err)
	require.NotNil(t, set)

	set.Close()
	assert.NotPanics(t, set.Close)
	assert.Equal(t, testTenant, set.Tenant())
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rafteles16/CRMPSICO/internal/model"
)

func receiveSnapshot(t *testing.T, sub Subscription) model.Snapshot {
	t.Helper()
	select {
	case snap := <-sub.Snapshots():
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestMemorySubscribeDeliversInitialSnapshot(t *testing.T) {
	st := NewMemoryDocumentStore(zap.NewNop())
	defer st.Close()

	st.PutDocument("leads", "l1", map[string]any{"nome": "Ana"})

	sub, err := st.Subscribe(context.Background(), "leads")
	require.NoError(t, err)
	defer sub.Close()

	snap := receiveSnapshot(t, sub)
	require.Len(t, snap, 1)
	assert.Equal(t, "l1", snap[0].ID)
	assert.Equal(t, "Ana", snap[0].StringField("nome"))
}

func TestMemoryWritesFanOutToSubscribers(t *testing.T) {
	st := NewMemoryDocumentStore(zap.NewNop())
	defer st.Close()

	sub, err := st.Subscribe(context.Background(), "leads")
	require.NoError(t, err)
	defer sub.Close()

	receiveSnapshot(t, sub) // initial, empty

	id, err := st.AddDocument(context.Background(), "leads", map[string]any{"nome": "Ana"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap := receiveSnapshot(t, sub)
	require.Len(t, snap, 1)
	assert.Equal(t, id, snap[0].ID)

	require.NoError(t, st.DeleteDocument(context.Background(), "leads", id))
	snap = receiveSnapshot(t, sub)
	assert.Empty(t, snap)
}

func TestMemoryDeleteMissingDocument(t *testing.T) {
	st := NewMemoryDocumentStore(zap.NewNop())
	defer st.Close()

	err := st.DeleteDocument(context.Background(), "leads", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	st.PutDocument("leads", "l1", map[string]any{"nome": "Ana"})
	err = st.DeleteDocument(context.Background(), "leads", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryServerTimestampResolvedAtWrite(t *testing.T) {
	st := NewMemoryDocumentStore(zap.NewNop())
	defer st.Close()

	before := time.Now().UTC()
	id, err := st.AddDocument(context.Background(), "leads", map[string]any{
		"nome":      "Ana",
		"createdAt": st.ServerTime(),
	})
	require.NoError(t, err)
	after := time.Now().UTC()

	sub, err := st.Subscribe(context.Background(), "leads")
	require.NoError(t, err)
	defer sub.Close()

	snap := receiveSnapshot(t, sub)
	require.Len(t, snap, 1)
	require.Equal(t, id, snap[0].ID)

	created := snap[0].TimeField("createdAt")
	assert.False(t, created.Before(before))
	assert.False(t, created.After(after))
}

func TestMemorySnapshotsAreIsolatedFromLaterWrites(t *testing.T) {
	st := NewMemoryDocumentStore(zap.NewNop())
	defer st.Close()

	st.PutDocument("leads", "l1", map[string]any{"nome": "Ana"})

	sub, err := st.Subscribe(context.Background(), "leads")
	require.NoError(t, err)
	defer sub.Close()

	snap := receiveSnapshot(t, sub)
	require.Len(t, snap, 1)

	st.PutDocument("leads", "l1", map[string]any{"nome": "Beatriz"})

	// The previously delivered snapshot must not mutate under the reader.
	assert.Equal(t, "Ana", snap[0].StringField("nome"))
}

func TestMemorySubscriptionCoalescesWhenLagging(t *testing.T) {
	st := NewMemoryDocumentStore(zap.NewNop())
	defer st.Close()

	sub, err := st.Subscribe(context.Background(), "leads")
	require.NoError(t, err)
	defer sub.Close()

	// Never read while flooding; the buffer must drop the oldest snapshots.
	for i := 0; i < 64; i++ {
		st.PutDocument("leads", "l1", map[string]any{"n": float64(i)})
	}

	var last model.Snapshot
	for {
		select {
		case snap := <-sub.Snapshots():
			last = snap
			continue
		default:
		}
		break
	}

	require.Len(t, last, 1)
	assert.Equal(t, 63.0, last[0].FloatField("n"))
}

func TestMemoryCloseIsIdempotent(t *testing.T) {
	st := NewMemoryDocumentStore(zap.NewNop())

	sub, err := st.Subscribe(context.Background(), "leads")
	require.NoError(t, err)

	sub.Close()
	assert.NotPanics(t, sub.Close)

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
	assert.Error(t, st.Ping(context.Background()))
}

func TestMemoryClosedSubscriptionReceivesNothing(t *testing.T) {
	st := NewMemoryDocumentStore(zap.NewNop())
	defer st.Close()

	sub, err := st.Subscribe(context.Background(), "leads")
	require.NoError(t, err)
	receiveSnapshot(t, sub)
	sub.Close()

	st.PutDocument("leads", "l1", map[string]any{"nome": "Ana"})

	select {
	case <-sub.Snapshots():
		t.Fatal("closed subscription must not receive snapshots")
	case <-time.After(50 * time.Millisecond):
	}
}

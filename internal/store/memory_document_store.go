package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rafteles16/CRMPSICO/internal/model"
)

// MemoryDocumentStore implements DocumentStore with in-process maps. It is
// the test and local-development backend; change fan-out is synchronous.
type MemoryDocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any // path -> id -> fields
	subs        map[string][]*memorySubscription
	logger      *zap.Logger
	closed      bool
}

// NewMemoryDocumentStore creates a new in-memory document store
func NewMemoryDocumentStore(logger *zap.Logger) *MemoryDocumentStore {
	return &MemoryDocumentStore{
		collections: make(map[string]map[string]map[string]any),
		subs:        make(map[string][]*memorySubscription),
		logger:      logger,
	}
}

type memorySubscription struct {
	store *MemoryDocumentStore
	path  string
	snaps chan model.Snapshot
	done  chan struct{}
	once  sync.Once
}

func (s *memorySubscription) Snapshots() <-chan model.Snapshot { return s.snaps }

func (s *memorySubscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.store.unsubscribe(s)
	})
}

// deliver pushes a snapshot, dropping the oldest pending one when the
// subscriber lags: the most recently delivered snapshot wins.
func (s *memorySubscription) deliver(snap model.Snapshot) {
	for {
		select {
		case <-s.done:
			return
		case s.snaps <- snap:
			return
		default:
		}
		select {
		case <-s.done:
			return
		case <-s.snaps:
		default:
		}
	}
}

// Subscribe opens a subscription and delivers the current snapshot.
func (s *MemoryDocumentStore) Subscribe(ctx context.Context, path string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &memorySubscription{
		store: s,
		path:  path,
		snaps: make(chan model.Snapshot, 16),
		done:  make(chan struct{}),
	}
	s.subs[path] = append(s.subs[path], sub)

	sub.deliver(s.snapshotLocked(path))
	return sub, nil
}

// AddDocument creates a document under a generated identifier.
func (s *MemoryDocumentStore) AddDocument(ctx context.Context, path string, fields map[string]any) (string, error) {
	id := uuid.New().String()
	s.PutDocument(path, id, fields)
	return id, nil
}

// PutDocument creates or replaces a document under a known identifier. Used
// by tests and fixtures to stand in for external writers such as the
// landing-page integration.
func (s *MemoryDocumentStore) PutDocument(path, id string, fields map[string]any) {
	s.mu.Lock()
	coll, ok := s.collections[path]
	if !ok {
		coll = make(map[string]map[string]any)
		s.collections[path] = coll
	}
	coll[id] = resolveTimestamps(fields, time.Now().UTC())
	snap := s.snapshotLocked(path)
	subs := append([]*memorySubscription(nil), s.subs[path]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(snap)
	}
}

// DeleteDocument removes a document, notifying subscribers.
func (s *MemoryDocumentStore) DeleteDocument(ctx context.Context, path, id string) error {
	s.mu.Lock()
	coll, ok := s.collections[path]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if _, ok := coll[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(coll, id)
	snap := s.snapshotLocked(path)
	subs := append([]*memorySubscription(nil), s.subs[path]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(snap)
	}
	return nil
}

// ServerTime returns the server-assigned timestamp marker.
func (s *MemoryDocumentStore) ServerTime() any { return ServerTimestamp }

// Ping reports whether the store is usable.
func (s *MemoryDocumentStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return context.Canceled
	}
	return nil
}

// Close stops all subscriptions.
func (s *MemoryDocumentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, subs := range s.subs {
		for _, sub := range subs {
			sub.once.Do(func() { close(sub.done) })
		}
	}
	s.subs = make(map[string][]*memorySubscription)
	return nil
}

func (s *MemoryDocumentStore) unsubscribe(sub *memorySubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[sub.path]
	for i, candidate := range subs {
		if candidate == sub {
			s.subs[sub.path] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// snapshotLocked builds the full document set for a path. Field maps are
// copied shallowly so subscribers never observe later writes.
func (s *MemoryDocumentStore) snapshotLocked(path string) model.Snapshot {
	coll := s.collections[path]
	snap := make(model.Snapshot, 0, len(coll))
	for id, fields := range coll {
		copied := make(map[string]any, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
		snap = append(snap, model.Document{ID: id, Fields: copied})
	}
	return snap
}

// resolveTimestamps replaces ServerTimestamp markers with the write time.
func resolveTimestamps(fields map[string]any, now time.Time) map[string]any {
	resolved := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			resolved[k] = now
			continue
		}
		resolved[k] = v
	}
	return resolved
}

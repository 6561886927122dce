package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rafteles16/CRMPSICO/internal/model"
)

const (
	redisDocPrefix    = "crm:docs:"
	redisChangePrefix = "crm:changes:"
)

// RedisDocumentStore implements DocumentStore on Redis. Each collection path
// maps to one hash (document id -> JSON fields); every write publishes on a
// per-path channel and subscribers re-read the full hash, which gives the
// whole-snapshot delivery model for free.
type RedisDocumentStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisDocumentStore creates a new Redis-backed document store
func NewRedisDocumentStore(host string, port int, password string, db int, logger *zap.Logger) (*RedisDocumentStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisDocumentStore{
		client: client,
		logger: logger,
	}, nil
}

// NewRedisDocumentStoreWithClient creates a store from an existing client.
func NewRedisDocumentStoreWithClient(client *redis.Client, logger *zap.Logger) *RedisDocumentStore {
	return &RedisDocumentStore{client: client, logger: logger}
}

type redisSubscription struct {
	snaps  chan model.Snapshot
	done   chan struct{}
	once   sync.Once
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func (s *redisSubscription) Snapshots() <-chan model.Snapshot { return s.snaps }

func (s *redisSubscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		_ = s.pubsub.Close()
	})
}

func (s *redisSubscription) deliver(snap model.Snapshot) {
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

// Subscribe opens a live subscription on a collection path. The current
// snapshot is delivered immediately; afterwards every published change
// triggers a full re-read. A failed re-read is logged and the last
// successfully delivered snapshot stays in place.
func (s *RedisDocumentStore) Subscribe(ctx context.Context, path string) (Subscription, error) {
	subCtx, cancel := context.WithCancel(context.Background())
	pubsub := s.client.Subscribe(subCtx, redisChangePrefix+path)

	// Force the SUBSCRIBE round trip so failures surface here, not in the pump.
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}

	sub := &redisSubscription{
		snaps:  make(chan model.Snapshot, 16),
		done:   make(chan struct{}),
		pubsub: pubsub,
		cancel: cancel,
	}

	snap, err := s.fetchSnapshot(ctx, path)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to read initial snapshot for %s: %w", path, err)
	}
	sub.deliver(snap)

	go s.pump(subCtx, path, sub)
	return sub, nil
}

// pump re-reads and delivers the collection on every change notification.
func (s *RedisDocumentStore) pump(ctx context.Context, path string, sub *redisSubscription) {
	for range sub.pubsub.Channel() {
		snap, err := s.fetchSnapshot(ctx, path)
		if err != nil {
			s.logger.Warn("Failed to refresh snapshot, keeping last delivered state",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		sub.deliver(snap)
	}
}

// AddDocument creates a document and publishes the change.
func (s *RedisDocumentStore) AddDocument(ctx context.Context, path string, fields map[string]any) (string, error) {
	id := uuid.New().String()
	data, err := json.Marshal(resolveTimestamps(fields, time.Now().UTC()))
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	if err := s.client.HSet(ctx, redisDocPrefix+path, id, data).Err(); err != nil {
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	s.publishChange(ctx, path, id)
	return id, nil
}

// DeleteDocument removes a document and publishes the change.
func (s *RedisDocumentStore) DeleteDocument(ctx context.Context, path, id string) error {
	removed, err := s.client.HDel(ctx, redisDocPrefix+path, id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	s.publishChange(ctx, path, id)
	return nil
}

// ServerTime returns the server-assigned timestamp marker.
func (s *RedisDocumentStore) ServerTime() any { return ServerTimestamp }

// Ping checks the Redis connection
func (s *RedisDocumentStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisDocumentStore) Close() error {
	return s.client.Close()
}

func (s *RedisDocumentStore) publishChange(ctx context.Context, path, id string) {
	if err := s.client.Publish(ctx, redisChangePrefix+path, id).Err(); err != nil {
		s.logger.Warn("Failed to publish change notification",
			zap.String("path", path),
			zap.String("doc_id", id),
			zap.Error(err))
	}
}

// fetchSnapshot reads and decodes the full document set for a path.
func (s *RedisDocumentStore) fetchSnapshot(ctx context.Context, path string) (model.Snapshot, error) {
	entries, err := s.client.HGetAll(ctx, redisDocPrefix+path).Result()
	if err != nil {
		return nil, err
	}

	snap := make(model.Snapshot, 0, len(entries))
	for id, raw := range entries {
		var fields map[string]any
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			s.logger.Warn("Skipping undecodable document",
				zap.String("path", path),
				zap.String("doc_id", id),
				zap.Error(err))
			continue
		}
		snap = append(snap, model.Document{ID: id, Fields: fields})
	}
	return snap, nil
}

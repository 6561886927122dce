package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rafteles16/CRMPSICO/internal/model"
)

// pgChangeChannel carries the collection path of every mutated document.
const pgChangeChannel = "crm_document_changes"

// PostgresDocumentStore implements DocumentStore on PostgreSQL. Documents
// are rows in a single path-keyed table with jsonb fields; LISTEN/NOTIFY on
// a dedicated connection drives snapshot redelivery.
type PostgresDocumentStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresDocumentStore creates a new PostgreSQL document store
func NewPostgresDocumentStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresDocumentStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresDocumentStore{
		pool:   pool,
		logger: logger,
	}

	if err := s.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return s, nil
}

func (s *PostgresDocumentStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			path       TEXT        NOT NULL,
			id         TEXT        NOT NULL,
			fields     JSONB       NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (path, id)
		)
	`)
	return err
}

type postgresSubscription struct {
	snaps  chan model.Snapshot
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
}

func (s *postgresSubscription) Snapshots() <-chan model.Snapshot { return s.snaps }

func (s *postgresSubscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})
}

func (s *postgresSubscription) deliver(snap model.Snapshot) {
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

// Subscribe opens a live subscription on a collection path. A dedicated
// connection LISTENs for change notifications; each notification for this
// path triggers a full re-read. A failed re-read keeps the last delivered
// snapshot in place.
func (s *PostgresDocumentStore) Subscribe(ctx context.Context, path string) (Subscription, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgChangeChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on %s: %w", pgChangeChannel, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &postgresSubscription{
		snaps:  make(chan model.Snapshot, 16),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	snap, err := s.fetchSnapshot(ctx, path)
	if err != nil {
		sub.Close()
		conn.Release()
		return nil, fmt.Errorf("failed to read initial snapshot for %s: %w", path, err)
	}
	sub.deliver(snap)

	go s.pump(subCtx, conn, path, sub)
	return sub, nil
}

func (s *PostgresDocumentStore) pump(ctx context.Context, conn *pgxpool.Conn, path string, sub *postgresSubscription) {
	defer conn.Release()

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			s.logger.Warn("Listen connection failed, subscription is stale",
				zap.String("path", path),
				zap.Error(err))
			return
		}
		if notification.Payload != path {
			continue
		}

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

// AddDocument creates a document and notifies listeners.
func (s *PostgresDocumentStore) AddDocument(ctx context.Context, path string, fields map[string]any) (string, error) {
	// Server-assigned write time for ServerTimestamp fields.
	var now time.Time
	if err := s.pool.QueryRow(ctx, "SELECT now()").Scan(&now); err != nil {
		return "", fmt.Errorf("failed to read server time: %w", err)
	}

	id := uuid.New().String()
	data, err := json.Marshal(resolveTimestamps(fields, now.UTC()))
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	query := `
		INSERT INTO documents (path, id, fields, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, query, path, id, data, now); err != nil {
		return "", fmt.Errorf("failed to write document: %w", err)
	}

	s.notify(ctx, path)
	return id, nil
}

// DeleteDocument removes a document and notifies listeners.
func (s *PostgresDocumentStore) DeleteDocument(ctx context.Context, path, id string) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE path = $1 AND id = $2", path, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.notify(ctx, path)
	return nil
}

// ServerTime returns the server-assigned timestamp marker.
func (s *PostgresDocumentStore) ServerTime() any { return ServerTimestamp }

// Ping checks the database connection
func (s *PostgresDocumentStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresDocumentStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresDocumentStore) notify(ctx context.Context, path string) {
	if _, err := s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", pgChangeChannel, path); err != nil {
		s.logger.Warn("Failed to publish change notification",
			zap.String("path", path),
			zap.Error(err))
	}
}

// fetchSnapshot reads and decodes the full document set for a path.
func (s *PostgresDocumentStore) fetchSnapshot(ctx context.Context, path string) (model.Snapshot, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, fields FROM documents WHERE path = $1 ORDER BY created_at", path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snap model.Snapshot
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			s.logger.Warn("Skipping undecodable document",
				zap.String("path", path),
				zap.String("doc_id", id),
				zap.Error(err))
			continue
		}
		snap = append(snap, model.Document{ID: id, Fields: fields})
	}
	return snap, rows.Err()
}

// Package store provides the document store the sync core runs against:
// path-addressed collections of flat documents with live snapshot
// subscriptions. Clients and consultations live under tenant-namespaced
// paths; leads live in a single shared collection.
package store

import (
	"context"
	"errors"

	"github.com/rafteles16/CRMPSICO/internal/model"
)

// ErrNotFound is returned when a document is not found
var ErrNotFound = errors.New("not found")

// serverTimestamp is the sentinel type behind ServerTimestamp.
type serverTimestamp struct{}

// ServerTimestamp marks a field value to be replaced with a server-assigned
// timestamp when the document is written.
var ServerTimestamp = serverTimestamp{}

// Subscription is a live feed of whole-collection snapshots. The full
// document set is delivered once on open and again after every change; there
// is no incremental patching. When the subscriber lags, older pending
// snapshots are dropped so the most recently delivered one wins.
type Subscription interface {
	// Snapshots returns the delivery channel. It is never closed; callers
	// select against their own cancellation.
	Snapshots() <-chan model.Snapshot
	// Close stops delivery. Safe to call more than once.
	Close()
}

// DocumentStore is the storage collaborator interface
type DocumentStore interface {
	// Subscribe opens a live subscription on a collection path.
	Subscribe(ctx context.Context, path string) (Subscription, error)

	// AddDocument creates a document with a generated identifier and
	// returns it. ServerTimestamp field values are resolved at write time.
	AddDocument(ctx context.Context, path string, fields map[string]any) (string, error)

	// DeleteDocument removes a document; ErrNotFound when it does not exist.
	DeleteDocument(ctx context.Context, path, id string) error

	// ServerTime returns the marker for a server-assigned timestamp field.
	ServerTime() any

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// ClientsPath returns the tenant-scoped clients collection path.
func ClientsPath(cnpj string) string {
	return "tenants/" + cnpj + "/clients"
}

// ConsultationsPath returns the tenant-scoped consultations collection path.
func ConsultationsPath(cnpj string) string {
	return "tenants/" + cnpj + "/consultations"
}

// LeadsPath is the shared lead collection. The storage layer does not scope
// it per tenant; leads are filtered on their cnpj field after fetch.
const LeadsPath = "leads"

// Package sqlite provides the public API for the SQLite Loom backend.
// It exposes the factory function for creating backends while keeping
// implementation details internal.
package sqlite

import (
	"go.uber.org/zap"

	"github.com/mesh-intelligence/loom/internal/sqlite"
	"github.com/mesh-intelligence/loom/pkg/types"
)

// Option configures a backend at construction time.
type Option = sqlite.Option

// WithLogger sets the structured logger the backend reports through.
func WithLogger(l *zap.Logger) Option { return sqlite.WithLogger(l) }

// WithAuditSink sets the sink mutation audit records are delivered to.
// The backend closes the sink on Detach.
func WithAuditSink(s types.AuditSink) Option { return sqlite.WithAuditSink(s) }

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	store := sqlite.NewBackend()
//	err := store.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".loom",
//	})
//	defer store.Detach()
func NewBackend(opts ...Option) types.Store {
	return sqlite.NewBackend(opts...)
}

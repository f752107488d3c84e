package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/loom/pkg/types"
)

// Backend implements the Store contract on SQLite. The database is the
// single source of truth; the backend keeps no schema or instance state
// between requests, so any number of backends may run against the same file.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	logger   *zap.Logger
	sink     types.AuditSink

	attributes  *attributeRegistry
	classes     *classRegistry
	assignments *assignmentEngine
	instances   *instanceStore
	values      *valueStore
}

var _ types.Store = (*Backend)(nil)

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithAuditSink sets the audit sink mutation records are delivered to.
// Defaults to a sink that drops records. The backend closes the sink on
// Detach.
func WithAuditSink(s types.AuditSink) Option {
	return func(b *Backend) { b.sink = s }
}

// NewBackend creates a new SQLite backend instance. The backend is not
// attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		logger: zap.NewNop(),
		sink:   nopSink{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.attributes = &attributeRegistry{backend: b}
	b.classes = &classRegistry{backend: b}
	b.assignments = &assignmentEngine{backend: b}
	b.instances = &instanceStore{backend: b}
	b.values = &valueStore{backend: b}
	return b
}

// Attach initializes the backend with the given configuration. Creates
// DataDir if it does not exist and applies the schema DDL (idempotent).
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	// _txlock=immediate makes every write transaction take its lock at
	// BEGIN, so check-then-insert units conflict at the start instead of
	// upgrading mid-transaction.
	dbPath := filepath.Join(dataDir, "loom.db")
	dsn := "file:" + dbPath +
		"?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	for _, stmt := range indexDDL {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("applying indexes: %w", err)
		}
	}

	b.db = db
	b.config = config
	b.attached = true
	b.logger.Info("backend attached", zap.String("data_dir", dataDir))
	return nil
}

// Detach releases all resources held by the backend, closing the database
// and the audit sink. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil // idempotent
	}
	if err := b.sink.Close(); err != nil {
		b.logger.Warn("closing audit sink", zap.Error(err))
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	b.logger.Info("backend detached")
	return nil
}

// Attributes returns the attribute registry.
func (b *Backend) Attributes() types.AttributeRegistry { return b.attributes }

// Classes returns the class registry.
func (b *Backend) Classes() types.ClassRegistry { return b.classes }

// Assignments returns the assignment engine.
func (b *Backend) Assignments() types.AssignmentEngine { return b.assignments }

// Instances returns the instance store.
func (b *Backend) Instances() types.InstanceStore { return b.instances }

// Values returns the value store.
func (b *Backend) Values() types.ValueStore { return b.values }

// handle returns the open database, or ErrStoreDetached.
func (b *Backend) handle() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	return b.db, nil
}

// generateUUID generates a new UUID v7 for record IDs. UUID v7 is
// time-ordered, so primary-key order follows creation order.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}

// Package integration exercises the loom engine end to end through the
// public backend surface: attributes, classes, assignments, instances, and
// values working together against a real SQLite database.
package integration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/loom/internal/audit"
	"github.com/mesh-intelligence/loom/pkg/sqlite"
	"github.com/mesh-intelligence/loom/pkg/types"
)

const testScope = types.Scope("acme")

// newStore attaches a SQLite backend in a temp directory and detaches it
// when the test finishes.
func newStore(t *testing.T, opts ...sqlite.Option) types.Store {
	t.Helper()
	store := sqlite.NewBackend(opts...)
	cfg := types.Config{
		Backend: types.BackendSQLite,
		DataDir: t.TempDir(),
	}
	require.NoError(t, store.Attach(cfg))
	t.Cleanup(func() { store.Detach() })
	return store
}

// newAuditedStore is newStore with an in-memory audit sink attached.
func newAuditedStore(t *testing.T) (types.Store, *audit.MemorySink) {
	t.Helper()
	sink := audit.NewMemorySink()
	return newStore(t, sqlite.WithAuditSink(sink)), sink
}

// floatPtr builds rule bounds inline.
func floatPtr(v float64) *float64 { return &v }

package sqlite

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/loom/pkg/types"
)

// setupBackend attaches a backend in a temp directory, detached on cleanup.
func setupBackend(t *testing.T) *Backend {
	t.Helper()
	b := NewBackend()
	config := types.Config{
		Backend: types.BackendSQLite,
		DataDir: t.TempDir(),
	}
	require.NoError(t, b.Attach(config))
	t.Cleanup(func() { b.Detach() })
	return b
}

func TestBackendLifecycle(t *testing.T) {
	t.Run("attach twice fails", func(t *testing.T) {
		b := setupBackend(t)
		err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()})
		require.ErrorIs(t, err, types.ErrAlreadyAttached)
	})

	t.Run("detach is idempotent", func(t *testing.T) {
		b := NewBackend()
		require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
		require.NoError(t, b.Detach())
		require.NoError(t, b.Detach())
	})

	t.Run("operations after detach fail", func(t *testing.T) {
		b := NewBackend()
		require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
		require.NoError(t, b.Detach())

		_, err := b.Attributes().List("acme")
		require.ErrorIs(t, err, types.ErrStoreDetached)
	})

	t.Run("operations before attach fail", func(t *testing.T) {
		b := NewBackend()
		_, err := b.Classes().ListEntityClasses("acme")
		require.ErrorIs(t, err, types.ErrStoreDetached)
	})

	t.Run("invalid config rejected", func(t *testing.T) {
		b := NewBackend()
		err := b.Attach(types.Config{Backend: "etcd", DataDir: t.TempDir()})
		require.ErrorIs(t, err, types.ErrBackendUnknown)
	})

	t.Run("reattach after detach works", func(t *testing.T) {
		dir := t.TempDir()
		b := NewBackend()
		cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}
		require.NoError(t, b.Attach(cfg))

		_, err := b.Attributes().Define("acme", "title", types.DataTypeText, types.RuleSet{})
		require.NoError(t, err)
		require.NoError(t, b.Detach())

		// Data written before the detach is still there.
		require.NoError(t, b.Attach(cfg))
		t.Cleanup(func() { b.Detach() })
		attrs, err := b.Attributes().List("acme")
		require.NoError(t, err)
		require.Len(t, attrs, 1)
	})
}

func TestScopeRequired(t *testing.T) {
	b := setupBackend(t)

	_, err := b.Attributes().Define("", "title", types.DataTypeText, types.RuleSet{})
	require.ErrorIs(t, err, types.ErrScopeEmpty)

	_, err = b.Attributes().List("")
	require.ErrorIs(t, err, types.ErrScopeEmpty)
}

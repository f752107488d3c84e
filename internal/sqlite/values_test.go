package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/loom/pkg/types"
)

// valueFixture is an entity class with one assigned attribute and one
// instance, ready for value writes.
type valueFixture struct {
	backend *Backend
	attr    *types.Attribute
	class   *types.EntityClass
	entity  *types.Entity
}

func newValueFixture(t *testing.T, dataType string, rules types.RuleSet) valueFixture {
	t.Helper()
	b := setupBackend(t)

	attr, err := b.Attributes().Define(testScope, "subject", dataType, rules)
	require.NoError(t, err)
	class, err := b.Classes().DefineEntityClass(testScope, "Task", "")
	require.NoError(t, err)
	_, err = b.Assignments().Assign(testScope, attr.AttributeID, class.ClassID, types.ClassKindEntity, false)
	require.NoError(t, err)
	entity, err := b.Instances().CreateEntity(testScope, class.ClassID)
	require.NoError(t, err)

	return valueFixture{backend: b, attr: attr, class: class, entity: entity}
}

func TestValuePayloadRoundTrip(t *testing.T) {
	t.Run("timestamp keeps identity", func(t *testing.T) {
		fix := newValueFixture(t, types.DataTypeTimestamp, types.RuleSet{})
		ts := time.Date(2026, 8, 26, 12, 30, 0, 0, time.UTC)

		_, err := fix.backend.Values().Upsert(testScope, fix.entity.EntityID, types.InstanceKindEntity, fix.attr.AttributeID, ts)
		require.NoError(t, err)

		got, err := fix.backend.Values().Read(testScope, fix.entity.EntityID, fix.attr.AttributeID)
		require.NoError(t, err)
		assert.Equal(t, ts, got.Payload)
	})

	t.Run("integer comes back as int64", func(t *testing.T) {
		fix := newValueFixture(t, types.DataTypeInteger, types.RuleSet{})

		_, err := fix.backend.Values().Upsert(testScope, fix.entity.EntityID, types.InstanceKindEntity, fix.attr.AttributeID, 42)
		require.NoError(t, err)

		got, err := fix.backend.Values().Read(testScope, fix.entity.EntityID, fix.attr.AttributeID)
		require.NoError(t, err)
		assert.Equal(t, int64(42), got.Payload)
	})

	t.Run("json structure survives", func(t *testing.T) {
		fix := newValueFixture(t, types.DataTypeJSON, types.RuleSet{})
		payload := map[string]any{"tags": []any{"a", "b"}, "weight": float64(3)}

		_, err := fix.backend.Values().Upsert(testScope, fix.entity.EntityID, types.InstanceKindEntity, fix.attr.AttributeID, payload)
		require.NoError(t, err)

		got, err := fix.backend.Values().Read(testScope, fix.entity.EntityID, fix.attr.AttributeID)
		require.NoError(t, err)
		assert.Equal(t, payload, got.Payload)
	})
}

func TestValueUpsertGuards(t *testing.T) {
	fix := newValueFixture(t, types.DataTypeText, types.RuleSet{})

	t.Run("unassigned attribute is a schema violation", func(t *testing.T) {
		other, err := fix.backend.Attributes().Define(testScope, "orphan", types.DataTypeText, types.RuleSet{})
		require.NoError(t, err)

		_, err = fix.backend.Values().Upsert(testScope, fix.entity.EntityID, types.InstanceKindEntity, other.AttributeID, "x")
		require.ErrorIs(t, err, types.ErrSchemaViolation)
	})

	t.Run("missing instance", func(t *testing.T) {
		_, err := fix.backend.Values().Upsert(testScope, "no-such-instance", types.InstanceKindEntity, fix.attr.AttributeID, "x")
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("read of never-written pair", func(t *testing.T) {
		_, err := fix.backend.Values().Read(testScope, fix.entity.EntityID, fix.attr.AttributeID)
		require.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestBulkReadReturnsLatestPerAttribute(t *testing.T) {
	b := setupBackend(t)

	class, err := b.Classes().DefineEntityClass(testScope, "Task", "")
	require.NoError(t, err)
	title, err := b.Attributes().Define(testScope, "title", types.DataTypeText, types.RuleSet{})
	require.NoError(t, err)
	count, err := b.Attributes().Define(testScope, "count", types.DataTypeInteger, types.RuleSet{})
	require.NoError(t, err)
	_, err = b.Assignments().Assign(testScope, title.AttributeID, class.ClassID, types.ClassKindEntity, false)
	require.NoError(t, err)
	_, err = b.Assignments().Assign(testScope, count.AttributeID, class.ClassID, types.ClassKindEntity, false)
	require.NoError(t, err)

	e, err := b.Instances().CreateEntity(testScope, class.ClassID)
	require.NoError(t, err)

	_, err = b.Values().Upsert(testScope, e.EntityID, types.InstanceKindEntity, title.AttributeID, "first")
	require.NoError(t, err)
	_, err = b.Values().Upsert(testScope, e.EntityID, types.InstanceKindEntity, title.AttributeID, "second")
	require.NoError(t, err)
	_, err = b.Values().Upsert(testScope, e.EntityID, types.InstanceKindEntity, count.AttributeID, 3)
	require.NoError(t, err)

	values, err := b.Values().BulkRead(testScope, e.EntityID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		title.AttributeID: "second",
		count.AttributeID: int64(3),
	}, values)
}

func TestUnassignFlagsValues(t *testing.T) {
	fix := newValueFixture(t, types.DataTypeText, types.RuleSet{})

	_, err := fix.backend.Values().Upsert(testScope, fix.entity.EntityID, types.InstanceKindEntity, fix.attr.AttributeID, "kept")
	require.NoError(t, err)

	assignments, err := fix.backend.Assignments().ListForClass(testScope, fix.class.ClassID, types.ClassKindEntity)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.NoError(t, fix.backend.Assignments().Unassign(testScope, assignments[0].AssignmentID))

	history, err := fix.backend.Values().History(testScope, fix.entity.EntityID, fix.attr.AttributeID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Unassigned)
	assert.Equal(t, "kept", history[0].Payload)
}

func TestValuesOnRelationships(t *testing.T) {
	b := setupBackend(t)

	person, err := b.Classes().DefineEntityClass(testScope, "Person", "")
	require.NoError(t, err)
	knows, err := b.Classes().DefineRelationshipClass(testScope, types.RelationshipClassSpec{Name: "knows"})
	require.NoError(t, err)
	since, err := b.Attributes().Define(testScope, "since", types.DataTypeTimestamp, types.RuleSet{})
	require.NoError(t, err)
	_, err = b.Assignments().Assign(testScope, since.AttributeID, knows.ClassID, types.ClassKindRelationship, false)
	require.NoError(t, err)

	a, err := b.Instances().CreateEntity(testScope, person.ClassID)
	require.NoError(t, err)
	c, err := b.Instances().CreateEntity(testScope, person.ClassID)
	require.NoError(t, err)
	rel, err := b.Instances().CreateRelationship(testScope, knows.ClassID, a.EntityID, c.EntityID)
	require.NoError(t, err)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = b.Values().Upsert(testScope, rel.RelationshipID, types.InstanceKindRelationship, since.AttributeID, ts)
	require.NoError(t, err)

	got, err := b.Values().Read(testScope, rel.RelationshipID, since.AttributeID)
	require.NoError(t, err)
	assert.Equal(t, ts, got.Payload)
	assert.Equal(t, types.InstanceKindRelationship, got.InstanceKind)

	// Deleting the relationship soft-deletes its values.
	require.NoError(t, b.Instances().DeleteRelationship(testScope, rel.RelationshipID))
	_, err = b.Values().Read(testScope, rel.RelationshipID, since.AttributeID)
	require.ErrorIs(t, err, types.ErrNotFound)

	history, err := b.Values().History(testScope, rel.RelationshipID, since.AttributeID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.NotNil(t, history[0].DeletedAt)
}

// End-to-end schema evolution: defining an attribute, assigning it to a
// class, writing values under the live schema, and watching validation
// behavior change as the schema changes.
package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/loom/pkg/types"
)

func TestSchemaEvolutionLifecycle(t *testing.T) {
	store := newStore(t)

	// Define a bounded integer attribute and a Task class.
	priority, err := store.Attributes().Define(testScope, "priority", types.DataTypeInteger, types.RuleSet{
		Min: floatPtr(1),
		Max: floatPtr(5),
	})
	require.NoError(t, err)

	task, err := store.Classes().DefineEntityClass(testScope, "Task", "a unit of work")
	require.NoError(t, err)

	asn, err := store.Assignments().Assign(testScope, priority.AttributeID, task.ClassID, types.ClassKindEntity, false)
	require.NoError(t, err)

	instance, err := store.Instances().CreateEntity(testScope, task.ClassID)
	require.NoError(t, err)

	// A conforming write succeeds.
	val, err := store.Values().Upsert(testScope, instance.EntityID, types.InstanceKindEntity, priority.AttributeID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val.Version)

	// A write outside the rules fails and leaves the stored value intact.
	_, err = store.Values().Upsert(testScope, instance.EntityID, types.InstanceKindEntity, priority.AttributeID, 9)
	require.ErrorIs(t, err, types.ErrValidation)

	got, err := store.Values().Read(testScope, instance.EntityID, priority.AttributeID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Payload)

	// Unassigning removes the attribute from the effective schema. The
	// stored value is retained and still readable.
	require.NoError(t, store.Assignments().Unassign(testScope, asn.AssignmentID))

	got, err = store.Values().Read(testScope, instance.EntityID, priority.AttributeID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Payload)

	// New writes for the attribute are schema violations now.
	_, err = store.Values().Upsert(testScope, instance.EntityID, types.InstanceKindEntity, priority.AttributeID, 2)
	require.ErrorIs(t, err, types.ErrSchemaViolation)

	schema, err := store.Assignments().Resolve(testScope, task.ClassID, types.ClassKindEntity)
	require.NoError(t, err)
	assert.Empty(t, schema.Entries)
}

func TestValueVersioningAcrossWrites(t *testing.T) {
	store := newStore(t)

	name, err := store.Attributes().Define(testScope, "name", types.DataTypeText, types.RuleSet{})
	require.NoError(t, err)
	task, err := store.Classes().DefineEntityClass(testScope, "Task", "")
	require.NoError(t, err)
	_, err = store.Assignments().Assign(testScope, name.AttributeID, task.ClassID, types.ClassKindEntity, false)
	require.NoError(t, err)

	instance, err := store.Instances().CreateEntity(testScope, task.ClassID)
	require.NoError(t, err)

	for i, payload := range []string{"draft", "review", "final"} {
		val, err := store.Values().Upsert(testScope, instance.EntityID, types.InstanceKindEntity, name.AttributeID, payload)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), val.Version)
	}

	history, err := store.Values().History(testScope, instance.EntityID, name.AttributeID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "draft", history[0].Payload)
	assert.Equal(t, "final", history[2].Payload)

	latest, err := store.Values().Read(testScope, instance.EntityID, name.AttributeID)
	require.NoError(t, err)
	assert.Equal(t, "final", latest.Payload)
}

func TestFinalizeRequiredAttributes(t *testing.T) {
	store := newStore(t)

	title, err := store.Attributes().Define(testScope, "title", types.DataTypeText, types.RuleSet{})
	require.NoError(t, err)
	notes, err := store.Attributes().Define(testScope, "notes", types.DataTypeText, types.RuleSet{})
	require.NoError(t, err)
	task, err := store.Classes().DefineEntityClass(testScope, "Task", "")
	require.NoError(t, err)

	_, err = store.Assignments().Assign(testScope, title.AttributeID, task.ClassID, types.ClassKindEntity, true)
	require.NoError(t, err)
	_, err = store.Assignments().Assign(testScope, notes.AttributeID, task.ClassID, types.ClassKindEntity, false)
	require.NoError(t, err)

	instance, err := store.Instances().CreateEntity(testScope, task.ClassID)
	require.NoError(t, err)

	// Missing required title.
	err = store.Values().Finalize(testScope, instance.EntityID, types.InstanceKindEntity)
	require.ErrorIs(t, err, types.ErrSchemaViolation)

	// Empty text does not satisfy a required attribute.
	_, err = store.Values().Upsert(testScope, instance.EntityID, types.InstanceKindEntity, title.AttributeID, "")
	require.NoError(t, err)
	err = store.Values().Finalize(testScope, instance.EntityID, types.InstanceKindEntity)
	require.ErrorIs(t, err, types.ErrSchemaViolation)

	_, err = store.Values().Upsert(testScope, instance.EntityID, types.InstanceKindEntity, title.AttributeID, "ship it")
	require.NoError(t, err)
	require.NoError(t, store.Values().Finalize(testScope, instance.EntityID, types.InstanceKindEntity))
}

func TestTenantIsolation(t *testing.T) {
	store := newStore(t)
	other := types.Scope("globex")

	attr, err := store.Attributes().Define(testScope, "priority", types.DataTypeInteger, types.RuleSet{})
	require.NoError(t, err)

	// The same name is free in another tenant.
	_, err = store.Attributes().Define(other, "priority", types.DataTypeInteger, types.RuleSet{})
	require.NoError(t, err)

	// Records are invisible across tenants.
	_, err = store.Attributes().Get(other, attr.AttributeID)
	require.ErrorIs(t, err, types.ErrNotFound)

	attrs, err := store.Attributes().List(other)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.NotEqual(t, attr.AttributeID, attrs[0].AttributeID)
}

// End-to-end deletion semantics: entity deletion cascading to values and
// relationships, and resumable class retirement.
package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/loom/pkg/types"
)

// graphFixture wires a Person class, a Task class, and a directed
// assigned-to relationship class between them.
type graphFixture struct {
	person   *types.EntityClass
	task     *types.EntityClass
	assigned *types.RelationshipClass
}

func newGraphFixture(t *testing.T, store types.Store) graphFixture {
	t.Helper()

	person, err := store.Classes().DefineEntityClass(testScope, "Person", "")
	require.NoError(t, err)
	task, err := store.Classes().DefineEntityClass(testScope, "Task", "")
	require.NoError(t, err)

	assigned, err := store.Classes().DefineRelationshipClass(testScope, types.RelationshipClassSpec{
		Name:           "assigned-to",
		SourceClassIDs: []string{task.ClassID},
		TargetClassIDs: []string{person.ClassID},
	})
	require.NoError(t, err)

	return graphFixture{person: person, task: task, assigned: assigned}
}

func TestEntityDeletionCascades(t *testing.T) {
	store := newStore(t)
	fix := newGraphFixture(t, store)

	alice, err := store.Instances().CreateEntity(testScope, fix.person.ClassID)
	require.NoError(t, err)
	task1, err := store.Instances().CreateEntity(testScope, fix.task.ClassID)
	require.NoError(t, err)
	task2, err := store.Instances().CreateEntity(testScope, fix.task.ClassID)
	require.NoError(t, err)

	rel1, err := store.Instances().CreateRelationship(testScope, fix.assigned.ClassID, task1.EntityID, alice.EntityID)
	require.NoError(t, err)
	rel2, err := store.Instances().CreateRelationship(testScope, fix.assigned.ClassID, task2.EntityID, alice.EntityID)
	require.NoError(t, err)

	// Deleting the shared target takes both relationships with it.
	require.NoError(t, store.Instances().DeleteEntity(testScope, alice.EntityID))

	_, err = store.Instances().GetEntity(testScope, alice.EntityID)
	require.ErrorIs(t, err, types.ErrNotFound)
	_, err = store.Instances().GetRelationship(testScope, rel1.RelationshipID)
	require.ErrorIs(t, err, types.ErrNotFound)
	_, err = store.Instances().GetRelationship(testScope, rel2.RelationshipID)
	require.ErrorIs(t, err, types.ErrNotFound)

	// Traversal from the surviving endpoints sees nothing live.
	iter, err := store.Instances().ListRelationships(testScope, types.TraversalQuery{EntityID: task1.EntityID})
	require.NoError(t, err)
	defer iter.Close()
	assert.False(t, iter.Next())
	require.NoError(t, iter.Err())
}

func TestEntityDeletionIsIdempotent(t *testing.T) {
	store := newStore(t)
	fix := newGraphFixture(t, store)

	e, err := store.Instances().CreateEntity(testScope, fix.person.ClassID)
	require.NoError(t, err)

	require.NoError(t, store.Instances().DeleteEntity(testScope, e.EntityID))
	require.NoError(t, store.Instances().DeleteEntity(testScope, e.EntityID))
}

func TestClassRetirementRequiresCascade(t *testing.T) {
	store := newStore(t)
	fix := newGraphFixture(t, store)

	_, err := store.Instances().CreateEntity(testScope, fix.task.ClassID)
	require.NoError(t, err)

	_, err = store.Classes().RetireEntityClass(testScope, fix.task.ClassID, false)
	require.ErrorIs(t, err, types.ErrInUse)
}

func TestClassRetirementCascade(t *testing.T) {
	store := newStore(t)
	fix := newGraphFixture(t, store)

	attr, err := store.Attributes().Define(testScope, "title", types.DataTypeText, types.RuleSet{})
	require.NoError(t, err)
	_, err = store.Assignments().Assign(testScope, attr.AttributeID, fix.task.ClassID, types.ClassKindEntity, false)
	require.NoError(t, err)

	const instances = 10
	var last *types.Entity
	for i := 0; i < instances; i++ {
		last, err = store.Instances().CreateEntity(testScope, fix.task.ClassID)
		require.NoError(t, err)
	}

	progress, err := store.Classes().RetireEntityClass(testScope, fix.task.ClassID, true)
	require.NoError(t, err)
	assert.True(t, progress.Complete)
	assert.Equal(t, 1, progress.AssignmentsRetired)
	assert.Equal(t, instances, progress.InstancesRetired)

	_, err = store.Classes().GetEntityClass(testScope, fix.task.ClassID)
	require.ErrorIs(t, err, types.ErrNotFound)
	_, err = store.Instances().GetEntity(testScope, last.EntityID)
	require.ErrorIs(t, err, types.ErrNotFound)

	// Re-applying the retirement is a no-op, not an error.
	progress, err = store.Classes().RetireEntityClass(testScope, fix.task.ClassID, true)
	require.NoError(t, err)
	assert.True(t, progress.Complete)
	assert.Zero(t, progress.InstancesRetired)
}

func TestAttributeRetirement(t *testing.T) {
	store := newStore(t)
	fix := newGraphFixture(t, store)

	attr, err := store.Attributes().Define(testScope, "title", types.DataTypeText, types.RuleSet{})
	require.NoError(t, err)
	_, err = store.Assignments().Assign(testScope, attr.AttributeID, fix.task.ClassID, types.ClassKindEntity, false)
	require.NoError(t, err)

	// Referenced by a live assignment: blocked without cascade.
	err = store.Attributes().Retire(testScope, attr.AttributeID, false)
	require.ErrorIs(t, err, types.ErrInUse)

	require.NoError(t, store.Attributes().Retire(testScope, attr.AttributeID, true))

	_, err = store.Attributes().Get(testScope, attr.AttributeID)
	require.ErrorIs(t, err, types.ErrNotFound)

	schema, err := store.Assignments().Resolve(testScope, fix.task.ClassID, types.ClassKindEntity)
	require.NoError(t, err)
	assert.Empty(t, schema.Entries)

	// The retired name is free for reuse.
	_, err = store.Attributes().Define(testScope, "title", types.DataTypeText, types.RuleSet{})
	require.NoError(t, err)
}

func TestAuditRecordsEmitted(t *testing.T) {
	store, sink := newAuditedStore(t)

	attr, err := store.Attributes().Define(testScope, "title", types.DataTypeText, types.RuleSet{})
	require.NoError(t, err)
	require.NoError(t, store.Attributes().Retire(testScope, attr.AttributeID, false))

	records := sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, types.AuditOpCreate, records[0].Operation)
	assert.Equal(t, attr.AttributeID, records[0].RecordID)
	assert.Equal(t, types.AuditOpRetire, records[1].Operation)
	assert.Equal(t, testScope, records[1].Tenant)
}

func TestUnassignAuditsFlaggedValues(t *testing.T) {
	store, sink := newAuditedStore(t)

	attr, err := store.Attributes().Define(testScope, "title", types.DataTypeText, types.RuleSet{})
	require.NoError(t, err)
	task, err := store.Classes().DefineEntityClass(testScope, "Task", "")
	require.NoError(t, err)
	asn, err := store.Assignments().Assign(testScope, attr.AttributeID, task.ClassID, types.ClassKindEntity, false)
	require.NoError(t, err)

	instance, err := store.Instances().CreateEntity(testScope, task.ClassID)
	require.NoError(t, err)
	val, err := store.Values().Upsert(testScope, instance.EntityID, types.InstanceKindEntity, attr.AttributeID, "ship it")
	require.NoError(t, err)

	before := len(sink.Records())
	require.NoError(t, store.Assignments().Unassign(testScope, asn.AssignmentID))

	// One record for the assignment, one per flagged value row.
	records := sink.Records()[before:]
	require.Len(t, records, 2)
	assert.Equal(t, types.AuditOpUnassign, records[0].Operation)
	assert.Equal(t, asn.AssignmentID, records[0].RecordID)
	assert.Equal(t, types.AuditOpUnassign, records[1].Operation)
	assert.Equal(t, "attribute_values", records[1].Table)
	assert.Equal(t, val.ValueID, records[1].RecordID)
}

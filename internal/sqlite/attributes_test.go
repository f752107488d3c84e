package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/loom/pkg/types"
)

const testScope = types.Scope("acme")

func floatPtr(v float64) *float64 { return &v }

func TestAttributeDefine(t *testing.T) {
	b := setupBackend(t)

	attr, err := b.Attributes().Define(testScope, "priority", types.DataTypeInteger, types.RuleSet{
		Min: floatPtr(1),
		Max: floatPtr(5),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, attr.AttributeID)
	assert.Equal(t, int64(1), attr.Version)
	assert.Equal(t, testScope, attr.Tenant)

	t.Run("duplicate live name conflicts", func(t *testing.T) {
		_, err := b.Attributes().Define(testScope, "priority", types.DataTypeText, types.RuleSet{})
		require.ErrorIs(t, err, types.ErrConflict)
	})

	t.Run("unknown data type rejected", func(t *testing.T) {
		_, err := b.Attributes().Define(testScope, "weird", "decimal", types.RuleSet{})
		require.ErrorIs(t, err, types.ErrValidation)
	})

	t.Run("inapplicable rules rejected", func(t *testing.T) {
		_, err := b.Attributes().Define(testScope, "flag", types.DataTypeBoolean, types.RuleSet{Min: floatPtr(0)})
		require.ErrorIs(t, err, types.ErrValidation)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := b.Attributes().Define(testScope, "", types.DataTypeText, types.RuleSet{})
		require.ErrorIs(t, err, types.ErrValidation)
	})
}

func TestAttributeUpdateRename(t *testing.T) {
	b := setupBackend(t)

	attr, err := b.Attributes().Define(testScope, "priority", types.DataTypeInteger, types.RuleSet{})
	require.NoError(t, err)
	_, err = b.Attributes().Define(testScope, "severity", types.DataTypeInteger, types.RuleSet{})
	require.NoError(t, err)

	newName := "urgency"
	updated, err := b.Attributes().Update(testScope, attr.AttributeID, types.AttributePatch{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "urgency", updated.Name)
	assert.Equal(t, int64(2), updated.Version)

	// Renaming onto a live name conflicts.
	taken := "severity"
	_, err = b.Attributes().Update(testScope, attr.AttributeID, types.AttributePatch{Name: &taken})
	require.ErrorIs(t, err, types.ErrConflict)
}

func TestAttributeRuleTightening(t *testing.T) {
	// Fixture: a bounded integer attribute assigned to a class, with one
	// instance carrying the value 7.
	setup := func(t *testing.T) (*Backend, *types.Attribute, *types.Entity) {
		b := setupBackend(t)
		attr, err := b.Attributes().Define(testScope, "priority", types.DataTypeInteger, types.RuleSet{
			Max: floatPtr(10),
		})
		require.NoError(t, err)
		class, err := b.Classes().DefineEntityClass(testScope, "Task", "")
		require.NoError(t, err)
		_, err = b.Assignments().Assign(testScope, attr.AttributeID, class.ClassID, types.ClassKindEntity, false)
		require.NoError(t, err)
		e, err := b.Instances().CreateEntity(testScope, class.ClassID)
		require.NoError(t, err)
		_, err = b.Values().Upsert(testScope, e.EntityID, types.InstanceKindEntity, attr.AttributeID, 7)
		require.NoError(t, err)
		return b, attr, e
	}

	t.Run("tightening past live values fails without force", func(t *testing.T) {
		b, attr, _ := setup(t)
		_, err := b.Attributes().Update(testScope, attr.AttributeID, types.AttributePatch{
			Rules: &types.RuleSet{Max: floatPtr(5)},
		})
		require.ErrorIs(t, err, types.ErrConstraintViolation)

		// The rules are unchanged.
		got, err := b.Attributes().Get(testScope, attr.AttributeID)
		require.NoError(t, err)
		assert.Equal(t, float64(10), *got.Rules.Max)
	})

	t.Run("force flags offenders nonconforming", func(t *testing.T) {
		b, attr, e := setup(t)
		_, err := b.Attributes().Update(testScope, attr.AttributeID, types.AttributePatch{
			Rules: &types.RuleSet{Max: floatPtr(5)},
			Force: true,
		})
		require.NoError(t, err)

		val, err := b.Values().Read(testScope, e.EntityID, attr.AttributeID)
		require.NoError(t, err)
		assert.True(t, val.Nonconforming)
		assert.Equal(t, int64(7), val.Payload)
	})

	t.Run("loosening never touches values", func(t *testing.T) {
		b, attr, e := setup(t)
		_, err := b.Attributes().Update(testScope, attr.AttributeID, types.AttributePatch{
			Rules: &types.RuleSet{Max: floatPtr(100)},
		})
		require.NoError(t, err)

		val, err := b.Values().Read(testScope, e.EntityID, attr.AttributeID)
		require.NoError(t, err)
		assert.False(t, val.Nonconforming)
	})
}

func TestClassNameUniquePerKind(t *testing.T) {
	b := setupBackend(t)

	_, err := b.Classes().DefineEntityClass(testScope, "Task", "")
	require.NoError(t, err)

	_, err = b.Classes().DefineEntityClass(testScope, "Task", "")
	require.ErrorIs(t, err, types.ErrConflict)

	// The same name is free for the other kind.
	_, err = b.Classes().DefineRelationshipClass(testScope, types.RelationshipClassSpec{Name: "Task"})
	require.NoError(t, err)
}

func TestRelationshipClassDefaults(t *testing.T) {
	b := setupBackend(t)

	rc, err := b.Classes().DefineRelationshipClass(testScope, types.RelationshipClassSpec{Name: "links-to"})
	require.NoError(t, err)
	assert.Equal(t, types.DirectionalityDirected, rc.Directionality)
	assert.Equal(t, types.CardinalityMany, rc.SourceCardinality)
	assert.Equal(t, types.CardinalityMany, rc.TargetCardinality)
}

func TestRelationshipClassEndpointRestrictionsMustExist(t *testing.T) {
	b := setupBackend(t)

	_, err := b.Classes().DefineRelationshipClass(testScope, types.RelationshipClassSpec{
		Name:           "assigned-to",
		SourceClassIDs: []string{"no-such-class"},
	})
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestAssignmentDuplicatePair(t *testing.T) {
	b := setupBackend(t)

	attr, err := b.Attributes().Define(testScope, "title", types.DataTypeText, types.RuleSet{})
	require.NoError(t, err)
	class, err := b.Classes().DefineEntityClass(testScope, "Task", "")
	require.NoError(t, err)

	first, err := b.Assignments().Assign(testScope, attr.AttributeID, class.ClassID, types.ClassKindEntity, false)
	require.NoError(t, err)

	_, err = b.Assignments().Assign(testScope, attr.AttributeID, class.ClassID, types.ClassKindEntity, true)
	require.ErrorIs(t, err, types.ErrConflict)

	// Unassigning frees the pair for a fresh assignment.
	require.NoError(t, b.Assignments().Unassign(testScope, first.AssignmentID))
	_, err = b.Assignments().Assign(testScope, attr.AttributeID, class.ClassID, types.ClassKindEntity, true)
	require.NoError(t, err)
}

func TestResolveOrdersByAssignmentAge(t *testing.T) {
	b := setupBackend(t)

	class, err := b.Classes().DefineEntityClass(testScope, "Task", "")
	require.NoError(t, err)

	names := []string{"gamma", "alpha", "beta"}
	for _, name := range names {
		attr, err := b.Attributes().Define(testScope, name, types.DataTypeText, types.RuleSet{})
		require.NoError(t, err)
		_, err = b.Assignments().Assign(testScope, attr.AttributeID, class.ClassID, types.ClassKindEntity, false)
		require.NoError(t, err)
	}

	schema, err := b.Assignments().Resolve(testScope, class.ClassID, types.ClassKindEntity)
	require.NoError(t, err)
	require.Len(t, schema.Entries, 3)
	for i, name := range names {
		assert.Equal(t, name, schema.Entries[i].Attribute.Name)
	}
}

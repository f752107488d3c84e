package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelationshipClassValidate(t *testing.T) {
	base := RelationshipClass{
		Directionality:    DirectionalityDirected,
		SourceCardinality: CardinalityMany,
		TargetCardinality: CardinalityOne,
	}

	t.Run("valid metadata", func(t *testing.T) {
		rc := base
		require.NoError(t, rc.Validate())
	})

	t.Run("unknown directionality", func(t *testing.T) {
		rc := base
		rc.Directionality = "sideways"
		require.ErrorIs(t, rc.Validate(), ErrValidation)
	})

	t.Run("unknown source cardinality", func(t *testing.T) {
		rc := base
		rc.SourceCardinality = "some"
		require.ErrorIs(t, rc.Validate(), ErrValidation)
	})

	t.Run("empty target cardinality", func(t *testing.T) {
		rc := base
		rc.TargetCardinality = ""
		require.ErrorIs(t, rc.Validate(), ErrValidation)
	})
}

func TestRelationshipClassEndpointPermissions(t *testing.T) {
	t.Run("empty restriction permits anything", func(t *testing.T) {
		rc := RelationshipClass{}
		assert.True(t, rc.PermitsSource("any-class"))
		assert.True(t, rc.PermitsTarget("any-class"))
	})

	t.Run("restricted endpoints", func(t *testing.T) {
		rc := RelationshipClass{
			SourceClassIDs: []string{"task", "epic"},
			TargetClassIDs: []string{"person"},
		}
		assert.True(t, rc.PermitsSource("task"))
		assert.True(t, rc.PermitsSource("epic"))
		assert.False(t, rc.PermitsSource("person"))
		assert.True(t, rc.PermitsTarget("person"))
		assert.False(t, rc.PermitsTarget("task"))
	})
}

func TestAssignmentCheckExclusive(t *testing.T) {
	tests := []struct {
		name    string
		asn     Assignment
		wantErr bool
	}{
		{
			name:    "entity class only",
			asn:     Assignment{ClassKind: ClassKindEntity, EntityClassID: "ec-1"},
			wantErr: false,
		},
		{
			name:    "relationship class only",
			asn:     Assignment{ClassKind: ClassKindRelationship, RelationshipClassID: "rc-1"},
			wantErr: false,
		},
		{
			name:    "both set",
			asn:     Assignment{ClassKind: ClassKindEntity, EntityClassID: "ec-1", RelationshipClassID: "rc-1"},
			wantErr: true,
		},
		{
			name:    "neither set",
			asn:     Assignment{ClassKind: ClassKindEntity},
			wantErr: true,
		},
		{
			name:    "kind disagrees with reference",
			asn:     Assignment{ClassKind: ClassKindRelationship, EntityClassID: "ec-1"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.asn.CheckExclusive()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValueCheckExclusive(t *testing.T) {
	tests := []struct {
		name    string
		val     Value
		wantErr bool
	}{
		{"entity value", Value{InstanceKind: InstanceKindEntity, EntityID: "e-1"}, false},
		{"relationship value", Value{InstanceKind: InstanceKindRelationship, RelationshipID: "r-1"}, false},
		{"both set", Value{InstanceKind: InstanceKindEntity, EntityID: "e-1", RelationshipID: "r-1"}, true},
		{"neither set", Value{InstanceKind: InstanceKindEntity}, true},
		{"kind disagrees", Value{InstanceKind: InstanceKindEntity, RelationshipID: "r-1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.val.CheckExclusive()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestEffectiveSchemaLookup(t *testing.T) {
	title := &Attribute{AttributeID: "a-title", Name: "title"}
	notes := &Attribute{AttributeID: "a-notes", Name: "notes"}
	schema := &EffectiveSchema{Entries: []SchemaEntry{
		{Attribute: title, Required: true},
		{Attribute: notes},
	}}

	entry, ok := schema.Lookup("a-title")
	require.True(t, ok)
	assert.True(t, entry.Required)

	_, ok = schema.Lookup("a-missing")
	assert.False(t, ok)

	required := schema.Required()
	require.Len(t, required, 1)
	assert.Equal(t, "a-title", required[0].AttributeID)
}

func TestConfigValidate(t *testing.T) {
	t.Run("sqlite backend with data dir", func(t *testing.T) {
		cfg := Config{Backend: BackendSQLite, DataDir: "/tmp/loom"}
		require.NoError(t, cfg.Validate())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := Config{Backend: "etcd", DataDir: "/tmp/loom"}
		require.ErrorIs(t, cfg.Validate(), ErrBackendUnknown)
	})

	t.Run("missing data dir", func(t *testing.T) {
		cfg := Config{Backend: BackendSQLite}
		require.ErrorIs(t, cfg.Validate(), ErrDataDirEmpty)
	})

	t.Run("negative batch size", func(t *testing.T) {
		cfg := Config{Backend: BackendSQLite, DataDir: "/tmp/loom", CascadeBatchSize: -1}
		require.ErrorIs(t, cfg.Validate(), ErrBatchSizeNegative)
	})

	t.Run("batch size defaults when unset", func(t *testing.T) {
		cfg := Config{Backend: BackendSQLite, DataDir: "/tmp/loom"}
		assert.Equal(t, DefaultCascadeBatchSize, cfg.GetCascadeBatchSize())
		cfg.CascadeBatchSize = 32
		assert.Equal(t, 32, cfg.GetCascadeBatchSize())
	})
}

func TestScopeValidate(t *testing.T) {
	require.NoError(t, Scope("acme").Validate())
	require.ErrorIs(t, Scope("").Validate(), ErrScopeEmpty)
}

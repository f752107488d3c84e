// Package sqlite implements the SQLite backend for the Loom modeling engine.
package sqlite

// Schema DDL. Every table carries the tenant partition key, a version
// counter, and a soft-delete marker. The exclusive-reference invariants on
// assignments and attribute_values are declared as CHECK constraints so the
// store enforces them even if application logic slips.
const (
	createAttributes = `CREATE TABLE IF NOT EXISTS attributes (
    attribute_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    data_type TEXT NOT NULL,
    rules TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);`

	createEntityClasses = `CREATE TABLE IF NOT EXISTS entity_classes (
    class_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);`

	createRelationshipClasses = `CREATE TABLE IF NOT EXISTS relationship_classes (
    class_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    directionality TEXT NOT NULL CHECK (directionality IN ('directed', 'bidirectional')),
    source_cardinality TEXT NOT NULL CHECK (source_cardinality IN ('one', 'many')),
    target_cardinality TEXT NOT NULL CHECK (target_cardinality IN ('one', 'many')),
    source_class_ids TEXT NOT NULL,
    target_class_ids TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);`

	createAssignments = `CREATE TABLE IF NOT EXISTS assignments (
    assignment_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    attribute_id TEXT NOT NULL,
    class_kind TEXT NOT NULL CHECK (class_kind IN ('entity', 'relationship')),
    entity_class_id TEXT,
    relationship_class_id TEXT,
    required INTEGER NOT NULL,
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT,
    FOREIGN KEY (attribute_id) REFERENCES attributes(attribute_id),
    FOREIGN KEY (entity_class_id) REFERENCES entity_classes(class_id),
    FOREIGN KEY (relationship_class_id) REFERENCES relationship_classes(class_id),
    CHECK ((entity_class_id IS NULL) <> (relationship_class_id IS NULL)),
    CHECK ((class_kind = 'entity') = (entity_class_id IS NOT NULL))
);`

	createEntities = `CREATE TABLE IF NOT EXISTS entities (
    entity_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    class_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT,
    FOREIGN KEY (class_id) REFERENCES entity_classes(class_id)
);`

	createRelationships = `CREATE TABLE IF NOT EXISTS relationships (
    relationship_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    class_id TEXT NOT NULL,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT,
    FOREIGN KEY (class_id) REFERENCES relationship_classes(class_id),
    FOREIGN KEY (source_id) REFERENCES entities(entity_id),
    FOREIGN KEY (target_id) REFERENCES entities(entity_id)
);`

	createAttributeValues = `CREATE TABLE IF NOT EXISTS attribute_values (
    value_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    instance_kind TEXT NOT NULL CHECK (instance_kind IN ('entity', 'relationship')),
    entity_id TEXT,
    relationship_id TEXT,
    attribute_id TEXT NOT NULL,
    data_type TEXT NOT NULL,
    payload TEXT NOT NULL,
    version INTEGER NOT NULL,
    unassigned INTEGER NOT NULL DEFAULT 0,
    nonconforming INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    deleted_at TEXT,
    FOREIGN KEY (entity_id) REFERENCES entities(entity_id),
    FOREIGN KEY (relationship_id) REFERENCES relationships(relationship_id),
    FOREIGN KEY (attribute_id) REFERENCES attributes(attribute_id),
    CHECK ((entity_id IS NULL) <> (relationship_id IS NULL)),
    CHECK ((instance_kind = 'entity') = (entity_id IS NOT NULL))
);`
)

// Index DDL. Uniqueness among live rows only, so retired names can be
// reused; the partial WHERE clause scopes each unique index to live rows.
const (
	idxAttributesLiveName = `CREATE UNIQUE INDEX IF NOT EXISTS idx_attributes_live_name
    ON attributes(tenant_id, name) WHERE deleted_at IS NULL;`
	idxEntityClassesLiveName = `CREATE UNIQUE INDEX IF NOT EXISTS idx_entity_classes_live_name
    ON entity_classes(tenant_id, name) WHERE deleted_at IS NULL;`
	idxRelationshipClassesLiveName = `CREATE UNIQUE INDEX IF NOT EXISTS idx_relationship_classes_live_name
    ON relationship_classes(tenant_id, name) WHERE deleted_at IS NULL;`
	idxAssignmentsLivePair = `CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_live_pair
    ON assignments(tenant_id, attribute_id, coalesce(entity_class_id, relationship_class_id))
    WHERE deleted_at IS NULL;`
	idxAssignmentsEntityClass = `CREATE INDEX IF NOT EXISTS idx_assignments_entity_class
    ON assignments(tenant_id, entity_class_id);`
	idxAssignmentsRelationshipClass = `CREATE INDEX IF NOT EXISTS idx_assignments_relationship_class
    ON assignments(tenant_id, relationship_class_id);`
	idxAssignmentsAttribute = `CREATE INDEX IF NOT EXISTS idx_assignments_attribute
    ON assignments(tenant_id, attribute_id);`
	idxEntitiesClass = `CREATE INDEX IF NOT EXISTS idx_entities_class
    ON entities(tenant_id, class_id);`
	idxRelationshipsSource = `CREATE INDEX IF NOT EXISTS idx_relationships_source
    ON relationships(tenant_id, class_id, source_id);`
	idxRelationshipsTarget = `CREATE INDEX IF NOT EXISTS idx_relationships_target
    ON relationships(tenant_id, class_id, target_id);`
	idxValuesLiveVersion = `CREATE UNIQUE INDEX IF NOT EXISTS idx_values_live_version
    ON attribute_values(tenant_id, coalesce(entity_id, relationship_id), attribute_id, version);`
	idxValuesEntity = `CREATE INDEX IF NOT EXISTS idx_values_entity
    ON attribute_values(tenant_id, entity_id);`
	idxValuesRelationship = `CREATE INDEX IF NOT EXISTS idx_values_relationship
    ON attribute_values(tenant_id, relationship_id);`
	idxValuesAttribute = `CREATE INDEX IF NOT EXISTS idx_values_attribute
    ON attribute_values(tenant_id, attribute_id);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createAttributes,
	createEntityClasses,
	createRelationshipClasses,
	createAssignments,
	createEntities,
	createRelationships,
	createAttributeValues,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxAttributesLiveName,
	idxEntityClassesLiveName,
	idxRelationshipClassesLiveName,
	idxAssignmentsLivePair,
	idxAssignmentsEntityClass,
	idxAssignmentsRelationshipClass,
	idxAssignmentsAttribute,
	idxEntitiesClass,
	idxRelationshipsSource,
	idxRelationshipsTarget,
	idxValuesLiveVersion,
	idxValuesEntity,
	idxValuesRelationship,
	idxValuesAttribute,
}

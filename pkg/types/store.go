package types

// Store is the backend-agnostic contract for the modeling engine. Callers
// attach to a backend, reach the component registries and stores through the
// accessors, and detach when done. The engine is stateless across requests;
// any number of Store instances may run concurrently against the same
// backing data.
type Store interface {
	// Attach connects the store to the backend described by config.
	// Returns ErrAlreadyAttached if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls
	// succeed. After Detach, component operations return ErrStoreDetached.
	Detach() error

	Attributes() AttributeRegistry
	Classes() ClassRegistry
	Assignments() AssignmentEngine
	Instances() InstanceStore
	Values() ValueStore
}

// AttributePatch carries the mutable fields of an attribute update. Nil
// fields are left unchanged. Force permits a rule tightening that leaves
// live values outside the new rules; the offending values are flagged
// nonconforming instead of failing the update.
type AttributePatch struct {
	Name  *string
	Rules *RuleSet
	Force bool
}

// AttributeRegistry defines reusable property definitions.
type AttributeRegistry interface {
	// Define creates an attribute. Fails with ErrConflict if the name is
	// taken in scope, ErrValidation if the data type is unrecognized or the
	// rules are self-contradictory.
	Define(scope Scope, name, dataType string, rules RuleSet) (*Attribute, error)

	// Get returns the live attribute with the given ID.
	Get(scope Scope, id string) (*Attribute, error)

	// List returns all live attributes in scope, oldest first.
	List(scope Scope) ([]*Attribute, error)

	// Update applies the patch. A rule change is re-validated against every
	// live value of the attribute; if a tightened rule would leave a value
	// non-conforming the update fails with ErrConstraintViolation unless
	// patch.Force is set, in which case those values are flagged, not
	// deleted.
	Update(scope Scope, id string, patch AttributePatch) (*Attribute, error)

	// Retire soft-deletes the attribute. Fails with ErrInUse while live
	// assignments reference it unless cascade is set, which retires those
	// assignments too.
	Retire(scope Scope, id string, cascade bool) error
}

// CascadeProgress reports how far a cascading class retirement got. A
// retirement interrupted mid-cascade is resumable: re-invoking it retires
// the remaining live dependents and is idempotent over the already-retired.
type CascadeProgress struct {
	AssignmentsRetired   int
	InstancesRetired     int
	RelationshipsRetired int
	Complete             bool
}

// ClassRegistry defines templates for entity and relationship kinds. Both
// kinds share the define/update/retire contract; relationship classes
// additionally carry directionality and cardinality metadata.
type ClassRegistry interface {
	// DefineEntityClass creates an entity class, name unique per tenant+kind.
	DefineEntityClass(scope Scope, name, description string) (*EntityClass, error)

	// DefineRelationshipClass creates a relationship class. Directionality
	// and cardinalities are validated against their fixed value sets.
	DefineRelationshipClass(scope Scope, spec RelationshipClassSpec) (*RelationshipClass, error)

	GetEntityClass(scope Scope, id string) (*EntityClass, error)
	GetRelationshipClass(scope Scope, id string) (*RelationshipClass, error)

	ListEntityClasses(scope Scope) ([]*EntityClass, error)
	ListRelationshipClasses(scope Scope) ([]*RelationshipClass, error)

	// UpdateEntityClass and UpdateRelationshipClass apply the patch.
	// Directionality and cardinality are immutable and not patchable.
	UpdateEntityClass(scope Scope, id string, patch ClassPatch) (*EntityClass, error)
	UpdateRelationshipClass(scope Scope, id string, patch ClassPatch) (*RelationshipClass, error)

	// RetireEntityClass soft-deletes the class and cascades to its
	// assignments. Fails with ErrInUse while live instances exist unless
	// cascade is set, which soft-deletes the instances (and their values
	// and relationships) in bounded, resumable batches.
	RetireEntityClass(scope Scope, id string, cascade bool) (*CascadeProgress, error)

	// RetireRelationshipClass behaves like RetireEntityClass for
	// relationship classes and their relationship instances.
	RetireRelationshipClass(scope Scope, id string, cascade bool) (*CascadeProgress, error)
}

// AssignmentEngine binds attributes to classes and computes effective
// schemas. Every instance write passes through Resolve first; changing
// assignments changes validation behavior for all subsequent writes without
// structural migration.
type AssignmentEngine interface {
	// Assign binds the attribute to the class. Fails with ErrConflict if
	// the attribute is already assigned to that class, ErrNotFound if
	// either side is absent or retired.
	Assign(scope Scope, attributeID, classID string, kind ClassKind, required bool) (*Assignment, error)

	// Unassign soft-removes the assignment. Existing values of the
	// attribute on instances of the class are flagged unassigned and
	// retained for audit, never deleted.
	Unassign(scope Scope, assignmentID string) error

	// Get returns the live assignment with the given ID.
	Get(scope Scope, id string) (*Assignment, error)

	// ListForClass returns the live assignments of a class, oldest first.
	ListForClass(scope Scope, classID string, kind ClassKind) ([]*Assignment, error)

	// Resolve computes the effective schema of a class from its live
	// assignments. Read-only; never observes a partially written
	// assignment.
	Resolve(scope Scope, classID string, kind ClassKind) (*EffectiveSchema, error)
}

// InstanceStore holds entity and relationship instances.
type InstanceStore interface {
	// CreateEntity creates an instance of a live entity class.
	CreateEntity(scope Scope, classID string) (*Entity, error)

	GetEntity(scope Scope, id string) (*Entity, error)

	// DeleteEntity soft-deletes the entity and cascades, in one
	// transaction, to its values and to every live relationship where it
	// is source or target (and their values).
	DeleteEntity(scope Scope, id string) error

	// CreateRelationship creates an instance of a live relationship class.
	// Validates endpoint existence and non-deletion (ErrNotFound),
	// endpoint-class permission (ErrClassMismatch), and cardinality by
	// counting live relationships inside the same transaction as the
	// insert (ErrCardinalityViolation).
	CreateRelationship(scope Scope, classID, sourceID, targetID string) (*Relationship, error)

	GetRelationship(scope Scope, id string) (*Relationship, error)

	// DeleteRelationship soft-deletes the relationship and its values.
	DeleteRelationship(scope Scope, id string) error

	// ListRelationships traverses the live relationships touching an
	// entity. The sequence is lazy, cursor-restartable, excludes
	// soft-deleted rows, and emits each row once regardless of direction.
	ListRelationships(scope Scope, q TraversalQuery) (RelationshipIterator, error)
}

// ValueStore holds the data for (instance, attribute) pairs, polymorphic
// over instance kind.
type ValueStore interface {
	// Upsert resolves the instance's effective schema first: fails with
	// ErrSchemaViolation if the attribute is not assigned to the
	// instance's class, ErrValidation if the payload fails the
	// attribute's type or rules. On success it appends a new value
	// version; prior versions are retained.
	Upsert(scope Scope, instanceID string, kind InstanceKind, attributeID string, payload any) (*Value, error)

	// Read returns the latest live version for the pair.
	Read(scope Scope, instanceID, attributeID string) (*Value, error)

	// BulkRead returns the current payloads of an instance keyed by
	// attribute ID.
	BulkRead(scope Scope, instanceID string) (map[string]any, error)

	// History returns every retained version for the pair, oldest first.
	History(scope Scope, instanceID, attributeID string) ([]*Value, error)

	// Finalize verifies the instance carries a live, non-empty value for
	// every required attribute of its effective schema; fails with
	// ErrSchemaViolation naming the first missing attribute.
	Finalize(scope Scope, instanceID string, kind InstanceKind) error
}

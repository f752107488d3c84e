package types

import "time"

// InstanceKind discriminates the two instance kinds sharing the value store.
type InstanceKind string

const (
	InstanceKindEntity       InstanceKind = "entity"
	InstanceKindRelationship InstanceKind = "relationship"
)

// IsValidInstanceKind reports whether the kind is recognized.
func IsValidInstanceKind(k InstanceKind) bool {
	return k == InstanceKindEntity || k == InstanceKindRelationship
}

// Entity is a live instance of an entity class.
type Entity struct {
	EntityID  string     // UUID v7, generated on creation.
	Tenant    Scope      // Owning tenant.
	ClassID   string     // The entity class this instance conforms to.
	Version   int64      // Incremented on every mutation.
	CreatedAt time.Time  // Timestamp of creation.
	UpdatedAt time.Time  // Timestamp of last mutation.
	DeletedAt *time.Time // Soft-delete marker; nil while live.
}

// Relationship is a live instance of a relationship class connecting two
// entities. Source and target are stored in canonical orientation even for
// bidirectional classes; traversal is direction-blind for those.
type Relationship struct {
	RelationshipID string     // UUID v7, generated on creation.
	Tenant         Scope      // Owning tenant.
	ClassID        string     // The relationship class this instance conforms to.
	SourceID       string     // Source entity.
	TargetID       string     // Target entity.
	Version        int64      // Incremented on every mutation.
	CreatedAt      time.Time  // Timestamp of creation.
	UpdatedAt      time.Time  // Timestamp of last mutation.
	DeletedAt      *time.Time // Soft-delete marker; nil while live.
}

// Direction selects which endpoint of a relationship an entity occupies
// during traversal.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing" // entity is the source
	DirectionIncoming Direction = "incoming" // entity is the target
	DirectionAny      Direction = "any"      // either endpoint
)

// IsValidDirection reports whether the direction is recognized.
func IsValidDirection(d Direction) bool {
	return d == DirectionOutgoing || d == DirectionIncoming || d == DirectionAny
}

// TraversalQuery describes one list-relationships traversal. Cursor makes
// the sequence restartable: passing the iterator's last cursor resumes after
// the last emitted relationship.
type TraversalQuery struct {
	EntityID  string    // Entity whose relationships are listed.
	Direction Direction // Endpoint filter; DirectionAny when empty.
	ClassID   string    // Optional relationship-class filter.
	Cursor    string    // Resume after this relationship ID; empty starts over.
	PageSize  int       // Rows fetched per page; backend default when zero.
}

// RelationshipIterator is a lazy, restartable sequence of live relationship
// records, in the style of sql.Rows. Each live relationship is emitted once
// regardless of the direction queried, including for bidirectional classes.
type RelationshipIterator interface {
	// Next advances to the next relationship. It returns false when the
	// sequence is exhausted or an error occurred; check Err afterwards.
	Next() bool

	// Relationship returns the current record. Valid only after a true Next.
	Relationship() *Relationship

	// Cursor returns a token that restarts the traversal after the last
	// emitted relationship via TraversalQuery.Cursor.
	Cursor() string

	// Err returns the first error encountered during iteration.
	Err() error

	// Close releases the iterator's resources. Idempotent.
	Close() error
}

package types

import (
	"fmt"
	"time"
)

// ClassKind discriminates the two class kinds sharing the registry contract.
type ClassKind string

const (
	ClassKindEntity       ClassKind = "entity"
	ClassKindRelationship ClassKind = "relationship"
)

// IsValidClassKind reports whether the kind is recognized.
func IsValidClassKind(k ClassKind) bool {
	return k == ClassKindEntity || k == ClassKindRelationship
}

// Relationship cardinality per endpoint side.
const (
	CardinalityOne  = "one"
	CardinalityMany = "many"
)

// Relationship directionality. Immutable after creation: flipping it would
// silently change the meaning of every existing relationship of the class.
const (
	DirectionalityDirected      = "directed"
	DirectionalityBidirectional = "bidirectional"
)

// IsValidCardinality reports whether the cardinality value is recognized.
func IsValidCardinality(c string) bool {
	return c == CardinalityOne || c == CardinalityMany
}

// IsValidDirectionality reports whether the directionality value is recognized.
func IsValidDirectionality(d string) bool {
	return d == DirectionalityDirected || d == DirectionalityBidirectional
}

// EntityClass is a template for a business-object kind. Instances of it are
// Entities; its effective schema is computed from live assignments.
type EntityClass struct {
	ClassID     string     // UUID v7, generated on creation.
	Tenant      Scope      // Owning tenant.
	Name        string     // Unique per tenant among live entity classes.
	Description string     // Optional explanation of the class's purpose.
	Version     int64      // Incremented on every mutation.
	CreatedAt   time.Time  // Timestamp of creation.
	UpdatedAt   time.Time  // Timestamp of last mutation.
	DeletedAt   *time.Time // Soft-delete marker; nil while live.
}

// RelationshipClass is a template for a connection kind between entities.
type RelationshipClass struct {
	ClassID           string     // UUID v7, generated on creation.
	Tenant            Scope      // Owning tenant.
	Name              string     // Unique per tenant among live relationship classes.
	Description       string     // Optional explanation of the class's purpose.
	Directionality    string     // directed or bidirectional; immutable.
	SourceCardinality string     // one or many relationships per source entity.
	TargetCardinality string     // one or many relationships per target entity.
	SourceClassIDs    []string   // Permitted source entity classes; empty means unrestricted.
	TargetClassIDs    []string   // Permitted target entity classes; empty means unrestricted.
	Version           int64      // Incremented on every mutation.
	CreatedAt         time.Time  // Timestamp of creation.
	UpdatedAt         time.Time  // Timestamp of last mutation.
	DeletedAt         *time.Time // Soft-delete marker; nil while live.
}

// Validate checks the kind-specific metadata of a relationship class.
func (rc *RelationshipClass) Validate() error {
	if !IsValidDirectionality(rc.Directionality) {
		return NewViolation(ErrValidation, "directionality", rc.ClassID, "",
			fmt.Sprintf("directionality must be %q or %q, got %q",
				DirectionalityDirected, DirectionalityBidirectional, rc.Directionality))
	}
	if !IsValidCardinality(rc.SourceCardinality) {
		return NewViolation(ErrValidation, "cardinality", rc.ClassID, "",
			fmt.Sprintf("source cardinality must be %q or %q, got %q",
				CardinalityOne, CardinalityMany, rc.SourceCardinality))
	}
	if !IsValidCardinality(rc.TargetCardinality) {
		return NewViolation(ErrValidation, "cardinality", rc.ClassID, "",
			fmt.Sprintf("target cardinality must be %q or %q, got %q",
				CardinalityOne, CardinalityMany, rc.TargetCardinality))
	}
	return nil
}

// PermitsSource reports whether an entity of the given class may appear as
// the source of relationships of this class.
func (rc *RelationshipClass) PermitsSource(entityClassID string) bool {
	return permits(rc.SourceClassIDs, entityClassID)
}

// PermitsTarget reports whether an entity of the given class may appear as
// the target of relationships of this class.
func (rc *RelationshipClass) PermitsTarget(entityClassID string) bool {
	return permits(rc.TargetClassIDs, entityClassID)
}

func permits(allowed []string, classID string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, id := range allowed {
		if id == classID {
			return true
		}
	}
	return false
}

// RelationshipClassSpec carries the creation parameters for a relationship
// class. Directionality defaults to directed and cardinalities to many when
// left empty.
type RelationshipClassSpec struct {
	Name              string
	Description       string
	Directionality    string
	SourceCardinality string
	TargetCardinality string
	SourceClassIDs    []string
	TargetClassIDs    []string
}

// ClassPatch carries the mutable fields of a class update. Nil fields are
// left unchanged. Directionality and cardinality are deliberately absent.
type ClassPatch struct {
	Name        *string
	Description *string
}

package types

import "time"

// Value is one stored datum for an (instance, attribute) pair. Values are
// append-only: every write creates a new version and prior versions are
// retained for audit, never overwritten. Exactly one of EntityID and
// RelationshipID is set, matching InstanceKind (exclusive-entity invariant).
type Value struct {
	ValueID        string       // UUID v7, generated per version.
	Tenant         Scope        // Owning tenant.
	InstanceKind   InstanceKind // Discriminator for the owning instance kind.
	EntityID       string       // Set iff InstanceKind is entity.
	RelationshipID string       // Set iff InstanceKind is relationship.
	AttributeID    string       // The attribute this value instantiates.
	Payload        any          // Typed payload, canonical Go representation.
	Version        int64        // 1 for the first write, then +1 per write.
	Unassigned     bool         // Set when the backing assignment was removed; retained for audit.
	Nonconforming  bool         // Set when a forced rule tightening left this value outside the rules.
	CreatedAt      time.Time    // Timestamp of this version's write.
	DeletedAt      *time.Time   // Soft-delete marker; nil while live.
}

// InstanceID returns the owning instance reference, whichever kind it is.
func (v *Value) InstanceID() string {
	if v.InstanceKind == InstanceKindRelationship {
		return v.RelationshipID
	}
	return v.EntityID
}

// CheckExclusive verifies the exclusive-entity invariant: exactly one owning
// instance reference set, agreeing with the discriminator.
func (v *Value) CheckExclusive() error {
	entSet := v.EntityID != ""
	relSet := v.RelationshipID != ""
	switch {
	case entSet == relSet:
		return NewViolation(ErrValidation, "exclusive-entity", v.ValueID, v.AttributeID,
			"exactly one of entity and relationship must be set")
	case entSet && v.InstanceKind != InstanceKindEntity:
		return NewViolation(ErrValidation, "exclusive-entity", v.ValueID, v.AttributeID,
			"entity reference set but instance kind is not entity")
	case relSet && v.InstanceKind != InstanceKindRelationship:
		return NewViolation(ErrValidation, "exclusive-entity", v.ValueID, v.AttributeID,
			"relationship reference set but instance kind is not relationship")
	}
	return nil
}

package types

import "time"

// Assignment binds one attribute to exactly one class of either kind.
// Exactly one of EntityClassID and RelationshipClassID is set, matching
// ClassKind; the exclusive-class invariant is enforced here at construction
// time and again by a CHECK constraint at the persistence layer.
type Assignment struct {
	AssignmentID        string     // UUID v7, generated on creation.
	Tenant              Scope      // Owning tenant.
	AttributeID         string     // The bound attribute.
	ClassKind           ClassKind  // Discriminator for the owning class kind.
	EntityClassID       string     // Set iff ClassKind is entity.
	RelationshipClassID string     // Set iff ClassKind is relationship.
	Required            bool       // Whether instances must carry a value to finalize.
	Version             int64      // Incremented on every mutation.
	CreatedAt           time.Time  // Timestamp of creation.
	UpdatedAt           time.Time  // Timestamp of last mutation.
	DeletedAt           *time.Time // Soft-delete marker; nil while live.
}

// ClassID returns the owning class reference, whichever kind it is.
func (a *Assignment) ClassID() string {
	if a.ClassKind == ClassKindRelationship {
		return a.RelationshipClassID
	}
	return a.EntityClassID
}

// CheckExclusive verifies the exclusive-class invariant: exactly one owning
// class reference set, and the set reference agreeing with the discriminator.
func (a *Assignment) CheckExclusive() error {
	entSet := a.EntityClassID != ""
	relSet := a.RelationshipClassID != ""
	switch {
	case entSet == relSet:
		return NewViolation(ErrValidation, "exclusive-class", a.AssignmentID, a.AttributeID,
			"exactly one of entity-class and relationship-class must be set")
	case entSet && a.ClassKind != ClassKindEntity:
		return NewViolation(ErrValidation, "exclusive-class", a.AssignmentID, a.AttributeID,
			"entity-class reference set but class kind is not entity")
	case relSet && a.ClassKind != ClassKindRelationship:
		return NewViolation(ErrValidation, "exclusive-class", a.AssignmentID, a.AttributeID,
			"relationship-class reference set but class kind is not relationship")
	}
	return nil
}

// SchemaEntry is one attribute of an effective schema.
type SchemaEntry struct {
	Attribute *Attribute
	Required  bool
}

// EffectiveSchema is the resolved set of attributes a class's instances may
// carry, ordered by assignment creation time. It is a computed view over
// live assignments, recomputed per request; changing assignments changes
// validation behavior for all subsequent writes.
type EffectiveSchema struct {
	ClassID string
	Kind    ClassKind
	Entries []SchemaEntry
}

// Lookup returns the schema entry for the given attribute, if assigned.
func (s *EffectiveSchema) Lookup(attributeID string) (SchemaEntry, bool) {
	for _, e := range s.Entries {
		if e.Attribute.AttributeID == attributeID {
			return e, true
		}
	}
	return SchemaEntry{}, false
}

// Required returns the attributes a finalized instance must carry.
func (s *EffectiveSchema) Required() []*Attribute {
	var req []*Attribute
	for _, e := range s.Entries {
		if e.Required {
			req = append(req, e.Attribute)
		}
	}
	return req
}

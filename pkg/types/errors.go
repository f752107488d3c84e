package types

import (
	"errors"
	"fmt"
)

// Taxonomy errors. Every operation failure unwraps to exactly one of these,
// so callers dispatch with errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrConflict             = errors.New("conflict")
	ErrNotFound             = errors.New("not found")
	ErrInUse                = errors.New("in use")
	ErrSchemaViolation      = errors.New("schema violation")
	ErrCardinalityViolation = errors.New("cardinality violation")
	ErrClassMismatch        = errors.New("class mismatch")
	ErrConstraintViolation  = errors.New("constraint violation")
)

// Store lifecycle and input errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrInvalidID       = errors.New("invalid record ID")
	ErrInvalidData     = errors.New("invalid record data")
	ErrScopeEmpty      = errors.New("tenant scope must not be empty")
)

// Violation is a taxonomy error enriched with the identifiers the caller
// needs to correct the request: the record and attribute involved and the
// name of the violated invariant. It unwraps to its taxonomy sentinel.
type Violation struct {
	Kind        error  // one of the taxonomy errors above
	Invariant   string // e.g. "exclusive-class", "target-cardinality-one"
	RecordID    string // offending record, when known
	AttributeID string // offending attribute, when applicable
	Detail      string // human-readable specifics
}

// NewViolation builds a Violation for the given taxonomy sentinel.
func NewViolation(kind error, invariant, recordID, attributeID, detail string) *Violation {
	return &Violation{
		Kind:        kind,
		Invariant:   invariant,
		RecordID:    recordID,
		AttributeID: attributeID,
		Detail:      detail,
	}
}

func (v *Violation) Error() string {
	msg := fmt.Sprintf("%s: invariant %s", v.Kind, v.Invariant)
	if v.RecordID != "" {
		msg += fmt.Sprintf(" (record %s", v.RecordID)
		if v.AttributeID != "" {
			msg += fmt.Sprintf(", attribute %s", v.AttributeID)
		}
		msg += ")"
	} else if v.AttributeID != "" {
		msg += fmt.Sprintf(" (attribute %s)", v.AttributeID)
	}
	if v.Detail != "" {
		msg += ": " + v.Detail
	}
	return msg
}

// Unwrap returns the taxonomy sentinel so errors.Is matches.
func (v *Violation) Unwrap() error { return v.Kind }

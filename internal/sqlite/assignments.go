// This file implements the assignment engine: the single point that binds
// attributes to classes and computes what attributes an instance may legally
// carry. Every instance write resolves the effective schema here first, so
// changing assignments changes validation behavior for all subsequent writes
// without any structural migration.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mesh-intelligence/loom/pkg/types"
)

var _ types.AssignmentEngine = (*assignmentEngine)(nil)

type assignmentEngine struct {
	backend *Backend
}

const assignmentColumns = "assignment_id, tenant_id, attribute_id, class_kind, " +
	"entity_class_id, relationship_class_id, required, version, created_at, updated_at, deleted_at"

// Assign binds the attribute to exactly one class of the given kind. The
// exclusive-class invariant holds by construction here and by CHECK
// constraint in the store; a duplicate live binding fails ErrConflict.
func (e *assignmentEngine) Assign(scope types.Scope, attributeID, classID string, kind types.ClassKind, required bool) (*types.Assignment, error) {
	if attributeID == "" || classID == "" {
		return nil, types.ErrInvalidID
	}
	if !types.IsValidClassKind(kind) {
		return nil, types.NewViolation(types.ErrValidation, "class-kind", classID, attributeID,
			fmt.Sprintf("unrecognized class kind %q", kind))
	}

	version, now := stampNew()
	asn := &types.Assignment{
		AssignmentID: generateUUID(),
		Tenant:       scope,
		AttributeID:  attributeID,
		ClassKind:    kind,
		Required:     required,
		Version:      version,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if kind == types.ClassKindEntity {
		asn.EntityClassID = classID
	} else {
		asn.RelationshipClassID = classID
	}
	if err := asn.CheckExclusive(); err != nil {
		return nil, err
	}

	err := e.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		if _, err := getAttributeTx(tx, scope, attributeID); err != nil {
			return err
		}
		if kind == types.ClassKindEntity {
			if _, err := getEntityClassTx(tx, scope, classID); err != nil {
				return err
			}
		} else {
			if _, err := getRelationshipClassTx(tx, scope, classID); err != nil {
				return err
			}
		}

		var dupID string
		err := tx.QueryRow(
			`SELECT assignment_id FROM assignments
             WHERE tenant_id = ? AND attribute_id = ?
               AND coalesce(entity_class_id, relationship_class_id) = ?
               AND deleted_at IS NULL`,
			scope, attributeID, classID,
		).Scan(&dupID)
		if err == nil {
			return types.NewViolation(types.ErrConflict, "duplicate-assignment", dupID, attributeID,
				fmt.Sprintf("attribute already assigned to class %s", classID))
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking assignment uniqueness: %w", err)
		}

		_, err = tx.Exec(
			"INSERT INTO assignments ("+assignmentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)",
			asn.AssignmentID, scope, attributeID, string(kind),
			nullable(asn.EntityClassID), nullable(asn.RelationshipClassID),
			boolToInt(required), asn.Version, formatTime(asn.CreatedAt), formatTime(asn.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("persisting assignment: %w", err)
		}
		aud.record("assignments", asn.AssignmentID, types.AuditOpCreate, asn.Version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return asn, nil
}

// Unassign soft-removes the assignment. Existing values of the attribute on
// instances of the class are flagged unassigned and retained for audit; they
// are never deleted retroactively.
func (e *assignmentEngine) Unassign(scope types.Scope, assignmentID string) error {
	if assignmentID == "" {
		return types.ErrInvalidID
	}
	return e.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		asn, err := getAssignmentTx(tx, scope, assignmentID)
		if err != nil {
			return err
		}
		return unassignTx(tx, aud, scope, asn)
	})
}

// Get retrieves a live assignment by ID.
func (e *assignmentEngine) Get(scope types.Scope, id string) (*types.Assignment, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, types.ErrInvalidID
	}
	db, err := e.backend.handle()
	if err != nil {
		return nil, err
	}
	return getAssignment(db, scope, id)
}

// ListForClass returns the live assignments of a class, oldest first.
func (e *assignmentEngine) ListForClass(scope types.Scope, classID string, kind types.ClassKind) ([]*types.Assignment, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if classID == "" {
		return nil, types.ErrInvalidID
	}
	db, err := e.backend.handle()
	if err != nil {
		return nil, err
	}
	return listAssignmentsForClass(db, scope, classID, kind)
}

// Resolve computes the effective schema of a class: the ordered set of
// (attribute, required) for its live assignments. Read-only, recomputed per
// request; a single read sees one committed snapshot, never a partially
// written assignment.
func (e *assignmentEngine) Resolve(scope types.Scope, classID string, kind types.ClassKind) (*types.EffectiveSchema, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if classID == "" {
		return nil, types.ErrInvalidID
	}
	if !types.IsValidClassKind(kind) {
		return nil, types.NewViolation(types.ErrValidation, "class-kind", classID, "",
			fmt.Sprintf("unrecognized class kind %q", kind))
	}
	db, err := e.backend.handle()
	if err != nil {
		return nil, err
	}
	return resolveSchema(db, scope, classID, kind)
}

// resolveSchema joins live assignments with their attributes in one query so
// the schema read is a single committed snapshot.
func resolveSchema(q queryer, scope types.Scope, classID string, kind types.ClassKind) (*types.EffectiveSchema, error) {
	classCol := "entity_class_id"
	if kind == types.ClassKindRelationship {
		classCol = "relationship_class_id"
	}
	rows, err := q.Query(
		`SELECT a.attribute_id, a.tenant_id, a.name, a.data_type, a.rules,
                a.version, a.created_at, a.updated_at, a.deleted_at, s.required
         FROM assignments s
         JOIN attributes a ON a.attribute_id = s.attribute_id AND a.tenant_id = s.tenant_id
         WHERE s.tenant_id = ? AND s.`+classCol+` = ?
           AND s.deleted_at IS NULL AND a.deleted_at IS NULL
         ORDER BY s.created_at ASC, s.attribute_id ASC`,
		scope, classID,
	)
	if err != nil {
		return nil, fmt.Errorf("resolving effective schema: %w", err)
	}
	defer rows.Close()

	schema := &types.EffectiveSchema{ClassID: classID, Kind: kind}
	for rows.Next() {
		var a types.Attribute
		var rulesJSON, createdAt, updatedAt string
		var deletedAt sql.NullString
		var required int
		if err := rows.Scan(&a.AttributeID, &a.Tenant, &a.Name, &a.DataType, &rulesJSON,
			&a.Version, &createdAt, &updatedAt, &deletedAt, &required); err != nil {
			return nil, fmt.Errorf("hydrating schema entry: %w", err)
		}
		if err := decodeAttributeStrings(&a, rulesJSON, createdAt, updatedAt, deletedAt); err != nil {
			return nil, err
		}
		schema.Entries = append(schema.Entries, types.SchemaEntry{
			Attribute: &a,
			Required:  required != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema entries: %w", err)
	}
	return schema, nil
}

// queryer abstracts *sql.DB and *sql.Tx for multi-row reads.
type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// unassignTx soft-deletes one assignment and flags the latest live values of
// its attribute on instances of its class as unassigned. Shared by Unassign,
// attribute retirement, and class retirement.
func unassignTx(tx *sql.Tx, aud *auditTrail, scope types.Scope, asn *types.Assignment) error {
	now := time.Now().UTC()
	res, err := tx.Exec(
		"UPDATE assignments SET "+softDeleteClause+" WHERE assignment_id = ? AND tenant_id = ? AND deleted_at IS NULL",
		formatTime(now), formatTime(now), asn.AssignmentID, scope,
	)
	if err != nil {
		return fmt.Errorf("unassigning %s: %w", asn.AssignmentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Already retired; idempotent for cascade re-application.
		return nil
	}
	aud.record("assignments", asn.AssignmentID, types.AuditOpUnassign, asn.Version+1)

	ownerCol, instanceTable, instanceIDCol := "entity_id", "entities", "entity_id"
	if asn.ClassKind == types.ClassKindRelationship {
		ownerCol, instanceTable, instanceIDCol = "relationship_id", "relationships", "relationship_id"
	}
	rows, err := tx.Query(
		`SELECT value_id FROM attribute_values
         WHERE tenant_id = ? AND attribute_id = ? AND unassigned = 0
           AND `+ownerCol+` IN (
               SELECT `+instanceIDCol+` FROM `+instanceTable+` WHERE tenant_id = ? AND class_id = ?
           )`,
		scope, asn.AttributeID, scope, asn.ClassID(),
	)
	if err != nil {
		return fmt.Errorf("querying orphaned values: %w", err)
	}
	var valueIDs []string
	for rows.Next() {
		var valueID string
		if err := rows.Scan(&valueID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning value id: %w", err)
		}
		valueIDs = append(valueIDs, valueID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating orphaned values: %w", err)
	}

	for _, valueID := range valueIDs {
		if _, err := tx.Exec(
			"UPDATE attribute_values SET unassigned = 1 WHERE value_id = ? AND tenant_id = ?",
			valueID, scope,
		); err != nil {
			return fmt.Errorf("flagging value %s unassigned: %w", valueID, err)
		}
		aud.record("attribute_values", valueID, types.AuditOpUnassign, 0)
	}
	return nil
}

func getAssignment(q querier, scope types.Scope, id string) (*types.Assignment, error) {
	row := q.QueryRow(
		"SELECT "+assignmentColumns+" FROM assignments WHERE assignment_id = ? AND tenant_id = ? AND deleted_at IS NULL",
		id, scope,
	)
	asn, err := hydrateAssignment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: assignment %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting assignment %s: %w", id, err)
	}
	return asn, nil
}

func getAssignmentTx(tx *sql.Tx, scope types.Scope, id string) (*types.Assignment, error) {
	return getAssignment(tx, scope, id)
}

func listAssignmentsForClass(q queryer, scope types.Scope, classID string, kind types.ClassKind) ([]*types.Assignment, error) {
	classCol := "entity_class_id"
	if kind == types.ClassKindRelationship {
		classCol = "relationship_class_id"
	}
	return listAssignments(q,
		"SELECT "+assignmentColumns+" FROM assignments WHERE tenant_id = ? AND "+classCol+" = ? AND deleted_at IS NULL ORDER BY created_at ASC, assignment_id ASC",
		scope, classID)
}

func listAssignmentsForClassTx(tx *sql.Tx, scope types.Scope, classID string, kind types.ClassKind) ([]*types.Assignment, error) {
	return listAssignmentsForClass(tx, scope, classID, kind)
}

func listAssignmentsForAttributeTx(tx *sql.Tx, scope types.Scope, attributeID string) ([]*types.Assignment, error) {
	return listAssignments(tx,
		"SELECT "+assignmentColumns+" FROM assignments WHERE tenant_id = ? AND attribute_id = ? AND deleted_at IS NULL ORDER BY created_at ASC, assignment_id ASC",
		scope, attributeID)
}

func listAssignments(q queryer, query string, args ...any) ([]*types.Assignment, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching assignments: %w", err)
	}
	defer rows.Close()

	assignments := []*types.Assignment{}
	for rows.Next() {
		asn, err := hydrateAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating assignment: %w", err)
		}
		assignments = append(assignments, asn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignments: %w", err)
	}
	return assignments, nil
}

// hydrateAssignment converts a SQLite row into a *types.Assignment.
func hydrateAssignment(s scanner) (*types.Assignment, error) {
	var a types.Assignment
	var kind string
	var entityClassID, relationshipClassID sql.NullString
	var required int
	var createdAt, updatedAt string
	var deletedAt sql.NullString
	if err := s.Scan(&a.AssignmentID, &a.Tenant, &a.AttributeID, &kind,
		&entityClassID, &relationshipClassID, &required, &a.Version,
		&createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	a.ClassKind = types.ClassKind(kind)
	a.EntityClassID = entityClassID.String
	a.RelationshipClassID = relationshipClassID.String
	a.Required = required != 0
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if a.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, fmt.Errorf("parsing deleted_at: %w", err)
	}
	return &a, nil
}

// decodeAttributeStrings fills the string-encoded columns of an attribute.
func decodeAttributeStrings(a *types.Attribute, rulesJSON, createdAt, updatedAt string, deletedAt sql.NullString) error {
	if err := json.Unmarshal([]byte(rulesJSON), &a.Rules); err != nil {
		return fmt.Errorf("decoding rules: %w", err)
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return fmt.Errorf("parsing updated_at: %w", err)
	}
	if a.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return fmt.Errorf("parsing deleted_at: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// This file implements the attribute registry: reusable property
// definitions, independent of the classes they are assigned to.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mesh-intelligence/loom/pkg/types"
)

var _ types.AttributeRegistry = (*attributeRegistry)(nil)

type attributeRegistry struct {
	backend *Backend
}

const attributeColumns = "attribute_id, tenant_id, name, data_type, rules, version, created_at, updated_at, deleted_at"

// Define creates an attribute with a live-unique name in scope.
func (r *attributeRegistry) Define(scope types.Scope, name, dataType string, rules types.RuleSet) (*types.Attribute, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: attribute name must not be empty", types.ErrValidation)
	}
	if !types.IsValidDataType(dataType) {
		return nil, types.NewViolation(types.ErrValidation, "data-type", "", "",
			fmt.Sprintf("unrecognized data type %q", dataType))
	}
	if err := rules.Validate(dataType); err != nil {
		return nil, err
	}

	version, now := stampNew()
	attr := &types.Attribute{
		AttributeID: generateUUID(),
		Tenant:      scope,
		Name:        name,
		DataType:    dataType,
		Rules:       rules,
		Version:     version,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		var dupID string
		err := tx.QueryRow(
			"SELECT attribute_id FROM attributes WHERE tenant_id = ? AND name = ? AND deleted_at IS NULL",
			scope, name,
		).Scan(&dupID)
		if err == nil {
			return types.NewViolation(types.ErrConflict, "unique-name", dupID, "",
				fmt.Sprintf("attribute name %q already exists", name))
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking attribute name uniqueness: %w", err)
		}

		rulesJSON, err := json.Marshal(attr.Rules)
		if err != nil {
			return fmt.Errorf("encoding rules: %w", err)
		}
		_, err = tx.Exec(
			"INSERT INTO attributes ("+attributeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)",
			attr.AttributeID, scope, attr.Name, attr.DataType, string(rulesJSON),
			attr.Version, formatTime(attr.CreatedAt), formatTime(attr.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("persisting attribute: %w", err)
		}
		aud.record("attributes", attr.AttributeID, types.AuditOpCreate, attr.Version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attr, nil
}

// Get retrieves a live attribute by ID.
func (r *attributeRegistry) Get(scope types.Scope, id string) (*types.Attribute, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, types.ErrInvalidID
	}
	db, err := r.backend.handle()
	if err != nil {
		return nil, err
	}
	return getAttribute(db, scope, id)
}

// List returns all live attributes in scope, oldest first.
func (r *attributeRegistry) List(scope types.Scope) ([]*types.Attribute, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	db, err := r.backend.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(
		"SELECT "+attributeColumns+" FROM attributes WHERE tenant_id = ? AND deleted_at IS NULL ORDER BY created_at ASC, attribute_id ASC",
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching attributes: %w", err)
	}
	defer rows.Close()

	attrs := []*types.Attribute{}
	for rows.Next() {
		attr, err := hydrateAttribute(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating attribute: %w", err)
		}
		attrs = append(attrs, attr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attributes: %w", err)
	}
	return attrs, nil
}

// Update applies the patch. A rule change is re-validated against every
// live value of the attribute: a tightened rule that would leave a value
// non-conforming fails with ErrConstraintViolation unless forced, in which
// case the offending values are flagged nonconforming and retained.
func (r *attributeRegistry) Update(scope types.Scope, id string, patch types.AttributePatch) (*types.Attribute, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}

	var updated *types.Attribute
	err := r.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		attr, err := getAttributeTx(tx, scope, id)
		if err != nil {
			return err
		}

		if patch.Name != nil && *patch.Name != attr.Name {
			if *patch.Name == "" {
				return fmt.Errorf("%w: attribute name must not be empty", types.ErrValidation)
			}
			var dupID string
			err := tx.QueryRow(
				"SELECT attribute_id FROM attributes WHERE tenant_id = ? AND name = ? AND attribute_id != ? AND deleted_at IS NULL",
				scope, *patch.Name, id,
			).Scan(&dupID)
			if err == nil {
				return types.NewViolation(types.ErrConflict, "unique-name", dupID, id,
					fmt.Sprintf("attribute name %q already exists", *patch.Name))
			}
			if err != sql.ErrNoRows {
				return fmt.Errorf("checking attribute name uniqueness: %w", err)
			}
			attr.Name = *patch.Name
		}

		if patch.Rules != nil {
			if err := patch.Rules.Validate(attr.DataType); err != nil {
				return err
			}
			attr.Rules = *patch.Rules
			if err := r.revalidateValues(tx, aud, scope, attr, patch.Force); err != nil {
				return err
			}
		}

		rulesJSON, err := json.Marshal(attr.Rules)
		if err != nil {
			return fmt.Errorf("encoding rules: %w", err)
		}
		now := time.Now().UTC()
		_, err = tx.Exec(
			"UPDATE attributes SET name = ?, rules = ?, "+touchClause+" WHERE attribute_id = ? AND tenant_id = ?",
			attr.Name, string(rulesJSON), formatTime(now), id, scope,
		)
		if err != nil {
			return fmt.Errorf("persisting attribute update: %w", err)
		}
		attr.Version++
		attr.UpdatedAt = now
		aud.record("attributes", id, types.AuditOpUpdate, attr.Version)
		updated = attr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// revalidateValues checks the latest live value of every instance carrying
// this attribute against the new rules. Without force the first offender
// fails the update; with force offenders are flagged, never deleted.
func (r *attributeRegistry) revalidateValues(tx *sql.Tx, aud *auditTrail, scope types.Scope, attr *types.Attribute, force bool) error {
	rows, err := tx.Query(
		`SELECT value_id, payload FROM attribute_values v
         WHERE v.tenant_id = ? AND v.attribute_id = ? AND v.deleted_at IS NULL
           AND v.version = (
               SELECT max(version) FROM attribute_values
               WHERE tenant_id = v.tenant_id
                 AND coalesce(entity_id, relationship_id) = coalesce(v.entity_id, v.relationship_id)
                 AND attribute_id = v.attribute_id AND deleted_at IS NULL
           )`,
		scope, attr.AttributeID,
	)
	if err != nil {
		return fmt.Errorf("querying values for revalidation: %w", err)
	}
	var offenders []string
	for rows.Next() {
		var valueID, payloadJSON string
		if err := rows.Scan(&valueID, &payloadJSON); err != nil {
			rows.Close()
			return fmt.Errorf("scanning value for revalidation: %w", err)
		}
		payload, err := decodePayload(attr.DataType, payloadJSON)
		if err != nil {
			rows.Close()
			return fmt.Errorf("decoding value %s: %w", valueID, err)
		}
		if _, err := attr.CheckPayload(payload); err != nil {
			offenders = append(offenders, valueID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating values for revalidation: %w", err)
	}

	if len(offenders) == 0 {
		return nil
	}
	if !force {
		return types.NewViolation(types.ErrConstraintViolation, "rule-tightening",
			offenders[0], attr.AttributeID,
			fmt.Sprintf("%d live value(s) would become non-conforming; retry with force to flag them", len(offenders)))
	}
	for _, valueID := range offenders {
		if _, err := tx.Exec(
			"UPDATE attribute_values SET nonconforming = 1 WHERE value_id = ? AND tenant_id = ?",
			valueID, scope,
		); err != nil {
			return fmt.Errorf("flagging value %s nonconforming: %w", valueID, err)
		}
		aud.record("attribute_values", valueID, types.AuditOpUpdate, 0)
	}
	return nil
}

// Retire soft-deletes the attribute. Blocked by live assignments unless
// cascade is set, which retires those assignments too (their values are
// flagged unassigned and retained).
func (r *attributeRegistry) Retire(scope types.Scope, id string, cascade bool) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return r.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		if _, err := getAttributeTx(tx, scope, id); err != nil {
			return err
		}

		assignments, err := listAssignmentsForAttributeTx(tx, scope, id)
		if err != nil {
			return err
		}
		if len(assignments) > 0 && !cascade {
			return types.NewViolation(types.ErrInUse, "live-assignments", id, id,
				fmt.Sprintf("%d live assignment(s) reference this attribute; retry with cascade", len(assignments)))
		}
		for _, asn := range assignments {
			if err := unassignTx(tx, aud, scope, asn); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		res, err := tx.Exec(
			"UPDATE attributes SET "+softDeleteClause+" WHERE attribute_id = ? AND tenant_id = ? AND deleted_at IS NULL",
			formatTime(now), formatTime(now), id, scope,
		)
		if err != nil {
			return fmt.Errorf("retiring attribute: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: attribute %s", types.ErrNotFound, id)
		}
		aud.record("attributes", id, types.AuditOpRetire, 0)
		return nil
	})
}

// querier abstracts *sql.DB and *sql.Tx for single-row reads.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

// scanner abstracts *sql.Row and *sql.Rows for hydration.
type scanner interface {
	Scan(dest ...any) error
}

func getAttribute(q querier, scope types.Scope, id string) (*types.Attribute, error) {
	row := q.QueryRow(
		"SELECT "+attributeColumns+" FROM attributes WHERE attribute_id = ? AND tenant_id = ? AND deleted_at IS NULL",
		id, scope,
	)
	attr, err := hydrateAttribute(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: attribute %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting attribute %s: %w", id, err)
	}
	return attr, nil
}

func getAttributeTx(tx *sql.Tx, scope types.Scope, id string) (*types.Attribute, error) {
	return getAttribute(tx, scope, id)
}

// hydrateAttribute converts a SQLite row into a *types.Attribute.
func hydrateAttribute(s scanner) (*types.Attribute, error) {
	var a types.Attribute
	var rulesJSON, createdAt, updatedAt string
	var deletedAt sql.NullString
	if err := s.Scan(&a.AttributeID, &a.Tenant, &a.Name, &a.DataType, &rulesJSON,
		&a.Version, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rulesJSON), &a.Rules); err != nil {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}
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

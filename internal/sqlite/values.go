// This file implements the value store: the typed payloads of
// (instance, attribute) pairs, polymorphic over instance kind and
// append-only per pair. Every write resolves the owning class's effective
// schema first, so assignment changes govern all subsequent writes.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mesh-intelligence/loom/pkg/types"
)

var _ types.ValueStore = (*valueStore)(nil)

type valueStore struct {
	backend *Backend
}

const valueColumns = "value_id, tenant_id, instance_kind, entity_id, relationship_id, " +
	"attribute_id, data_type, payload, version, unassigned, nonconforming, created_at, deleted_at"

// Upsert appends a new version of the value for the pair. The attribute
// must be assigned to the instance's class and the payload must pass the
// attribute's type and rule checks.
func (vs *valueStore) Upsert(scope types.Scope, instanceID string, kind types.InstanceKind, attributeID string, payload any) (*types.Value, error) {
	if instanceID == "" || attributeID == "" {
		return nil, types.ErrInvalidID
	}
	if !types.IsValidInstanceKind(kind) {
		return nil, types.NewViolation(types.ErrValidation, "instance-kind", instanceID, attributeID,
			fmt.Sprintf("unrecognized instance kind %q", kind))
	}

	val := &types.Value{
		ValueID:      generateUUID(),
		Tenant:       scope,
		InstanceKind: kind,
		AttributeID:  attributeID,
		CreatedAt:    time.Now().UTC(),
	}
	if kind == types.InstanceKindEntity {
		val.EntityID = instanceID
	} else {
		val.RelationshipID = instanceID
	}
	if err := val.CheckExclusive(); err != nil {
		return nil, err
	}

	err := vs.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		classID, classKind, err := instanceClass(tx, scope, instanceID, kind)
		if err != nil {
			return err
		}

		schema, err := resolveSchema(tx, scope, classID, classKind)
		if err != nil {
			return err
		}
		entry, ok := schema.Lookup(attributeID)
		if !ok {
			return types.NewViolation(types.ErrSchemaViolation, "attribute-not-assigned", instanceID, attributeID,
				fmt.Sprintf("attribute is not assigned to class %s", classID))
		}

		normalized, err := entry.Attribute.CheckPayload(payload)
		if err != nil {
			return err
		}
		val.Payload = normalized
		val.ValueID = generateUUID() // regenerate per attempt so retries stay unique

		payloadJSON, err := encodePayload(entry.Attribute.DataType, normalized)
		if err != nil {
			return err
		}

		// Version over all retained rows of the pair, including soft-deleted
		// ones, so the append-only history never reuses a version number.
		var maxVersion int64
		if err := tx.QueryRow(
			`SELECT coalesce(max(version), 0) FROM attribute_values
             WHERE tenant_id = ? AND coalesce(entity_id, relationship_id) = ? AND attribute_id = ?`,
			scope, instanceID, attributeID,
		).Scan(&maxVersion); err != nil {
			return fmt.Errorf("reading value version: %w", err)
		}
		val.Version = maxVersion + 1

		_, err = tx.Exec(
			"INSERT INTO attribute_values ("+valueColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, NULL)",
			val.ValueID, scope, string(kind), nullable(val.EntityID), nullable(val.RelationshipID),
			attributeID, entry.Attribute.DataType, payloadJSON, val.Version, formatTime(val.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("persisting value: %w", err)
		}
		aud.record("attribute_values", val.ValueID, types.AuditOpCreate, val.Version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Read returns the latest live version for the pair.
func (vs *valueStore) Read(scope types.Scope, instanceID, attributeID string) (*types.Value, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if instanceID == "" || attributeID == "" {
		return nil, types.ErrInvalidID
	}
	db, err := vs.backend.handle()
	if err != nil {
		return nil, err
	}
	row := db.QueryRow(
		`SELECT `+valueColumns+` FROM attribute_values
         WHERE tenant_id = ? AND coalesce(entity_id, relationship_id) = ? AND attribute_id = ?
           AND deleted_at IS NULL
         ORDER BY version DESC LIMIT 1`,
		scope, instanceID, attributeID,
	)
	val, err := hydrateValue(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: no value for instance %s attribute %s", types.ErrNotFound, instanceID, attributeID)
		}
		return nil, fmt.Errorf("reading value: %w", err)
	}
	return val, nil
}

// BulkRead returns the current payloads of an instance keyed by attribute ID.
func (vs *valueStore) BulkRead(scope types.Scope, instanceID string) (map[string]any, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if instanceID == "" {
		return nil, types.ErrInvalidID
	}
	db, err := vs.backend.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(
		`SELECT `+valueColumns+` FROM attribute_values v
         WHERE v.tenant_id = ? AND coalesce(v.entity_id, v.relationship_id) = ?
           AND v.deleted_at IS NULL
           AND v.version = (
               SELECT max(version) FROM attribute_values
               WHERE tenant_id = v.tenant_id
                 AND coalesce(entity_id, relationship_id) = coalesce(v.entity_id, v.relationship_id)
                 AND attribute_id = v.attribute_id AND deleted_at IS NULL
           )`,
		scope, instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("bulk reading values: %w", err)
	}
	defer rows.Close()

	result := map[string]any{}
	for rows.Next() {
		val, err := hydrateValue(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating value: %w", err)
		}
		result[val.AttributeID] = val.Payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating values: %w", err)
	}
	return result, nil
}

// History returns every retained version for the pair, oldest first,
// including soft-deleted and unassigned versions — the audit trail.
func (vs *valueStore) History(scope types.Scope, instanceID, attributeID string) ([]*types.Value, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if instanceID == "" || attributeID == "" {
		return nil, types.ErrInvalidID
	}
	db, err := vs.backend.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(
		`SELECT `+valueColumns+` FROM attribute_values
         WHERE tenant_id = ? AND coalesce(entity_id, relationship_id) = ? AND attribute_id = ?
         ORDER BY version ASC`,
		scope, instanceID, attributeID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading value history: %w", err)
	}
	defer rows.Close()

	history := []*types.Value{}
	for rows.Next() {
		val, err := hydrateValue(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating value: %w", err)
		}
		history = append(history, val)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating value history: %w", err)
	}
	return history, nil
}

// Finalize verifies the instance carries a live, non-empty value for every
// required attribute of its effective schema.
func (vs *valueStore) Finalize(scope types.Scope, instanceID string, kind types.InstanceKind) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if instanceID == "" {
		return types.ErrInvalidID
	}
	if !types.IsValidInstanceKind(kind) {
		return types.NewViolation(types.ErrValidation, "instance-kind", instanceID, "",
			fmt.Sprintf("unrecognized instance kind %q", kind))
	}
	db, err := vs.backend.handle()
	if err != nil {
		return err
	}

	classID, classKind, err := instanceClass(db, scope, instanceID, kind)
	if err != nil {
		return err
	}
	schema, err := resolveSchema(db, scope, classID, classKind)
	if err != nil {
		return err
	}
	current, err := vs.BulkRead(scope, instanceID)
	if err != nil {
		return err
	}

	for _, attr := range schema.Required() {
		payload, ok := current[attr.AttributeID]
		if !ok || isEmptyPayload(attr.DataType, payload) {
			return types.NewViolation(types.ErrSchemaViolation, "required-missing", instanceID, attr.AttributeID,
				fmt.Sprintf("required attribute %q has no value", attr.Name))
		}
	}
	return nil
}

// instanceClass resolves an instance's owning class and the matching class
// kind, failing ErrNotFound for absent or soft-deleted instances.
func instanceClass(q querier, scope types.Scope, instanceID string, kind types.InstanceKind) (string, types.ClassKind, error) {
	if kind == types.InstanceKindEntity {
		ent, err := getEntity(q, scope, instanceID)
		if err != nil {
			return "", "", err
		}
		return ent.ClassID, types.ClassKindEntity, nil
	}
	rel, err := getRelationship(q, scope, instanceID)
	if err != nil {
		return "", "", err
	}
	return rel.ClassID, types.ClassKindRelationship, nil
}

// isEmptyPayload reports whether a payload counts as missing for required
// enforcement. Only text has a meaningful empty form; any present value of
// the other types satisfies required-ness.
func isEmptyPayload(dataType string, payload any) bool {
	if payload == nil {
		return true
	}
	if dataType == types.DataTypeText {
		s, ok := payload.(string)
		return ok && s == ""
	}
	return false
}

// encodePayload serializes a canonical payload for storage. Timestamps are
// stored as RFC3339Nano strings; everything else as its JSON encoding.
func encodePayload(dataType string, payload any) (string, error) {
	if dataType == types.DataTypeTimestamp {
		if t, ok := payload.(time.Time); ok {
			payload = t.UTC().Format(time.RFC3339Nano)
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return string(data), nil
}

// decodePayload restores the canonical Go representation for the data type:
// int64, float64, bool, string, time.Time, or a generic JSON value.
func decodePayload(dataType, payloadJSON string) (any, error) {
	switch dataType {
	case types.DataTypeText:
		var s string
		if err := json.Unmarshal([]byte(payloadJSON), &s); err != nil {
			return nil, fmt.Errorf("decoding text payload: %w", err)
		}
		return s, nil
	case types.DataTypeInteger:
		var n int64
		if err := json.Unmarshal([]byte(payloadJSON), &n); err != nil {
			return nil, fmt.Errorf("decoding integer payload: %w", err)
		}
		return n, nil
	case types.DataTypeFloat:
		var f float64
		if err := json.Unmarshal([]byte(payloadJSON), &f); err != nil {
			return nil, fmt.Errorf("decoding float payload: %w", err)
		}
		return f, nil
	case types.DataTypeBoolean:
		var b bool
		if err := json.Unmarshal([]byte(payloadJSON), &b); err != nil {
			return nil, fmt.Errorf("decoding boolean payload: %w", err)
		}
		return b, nil
	case types.DataTypeTimestamp:
		var s string
		if err := json.Unmarshal([]byte(payloadJSON), &s); err != nil {
			return nil, fmt.Errorf("decoding timestamp payload: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp payload: %w", err)
		}
		return t.UTC(), nil
	default:
		var v any
		if err := json.Unmarshal([]byte(payloadJSON), &v); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}
		return v, nil
	}
}

// hydrateValue converts a SQLite row into a *types.Value.
func hydrateValue(s scanner) (*types.Value, error) {
	var v types.Value
	var kind, dataType, payloadJSON, createdAt string
	var entityID, relationshipID, deletedAt sql.NullString
	var unassigned, nonconforming int
	if err := s.Scan(&v.ValueID, &v.Tenant, &kind, &entityID, &relationshipID,
		&v.AttributeID, &dataType, &payloadJSON, &v.Version,
		&unassigned, &nonconforming, &createdAt, &deletedAt); err != nil {
		return nil, err
	}
	v.InstanceKind = types.InstanceKind(kind)
	v.EntityID = entityID.String
	v.RelationshipID = relationshipID.String
	v.Unassigned = unassigned != 0
	v.Nonconforming = nonconforming != 0

	payload, err := decodePayload(dataType, payloadJSON)
	if err != nil {
		return nil, err
	}
	v.Payload = payload
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if v.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, fmt.Errorf("parsing deleted_at: %w", err)
	}
	return &v, nil
}

// This file implements the entity half of the instance store, including the
// deletion cascade: an entity's values and every relationship touching it
// (and those relationships' values) are soft-deleted in the same transaction.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mesh-intelligence/loom/pkg/types"
)

var _ types.InstanceStore = (*instanceStore)(nil)

type instanceStore struct {
	backend *Backend
}

const entityColumns = "entity_id, tenant_id, class_id, version, created_at, updated_at, deleted_at"

// CreateEntity creates an instance of a live entity class.
func (s *instanceStore) CreateEntity(scope types.Scope, classID string) (*types.Entity, error) {
	if classID == "" {
		return nil, types.ErrInvalidID
	}
	version, now := stampNew()
	ent := &types.Entity{
		EntityID:  generateUUID(),
		Tenant:    scope,
		ClassID:   classID,
		Version:   version,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		if _, err := getEntityClassTx(tx, scope, classID); err != nil {
			return err
		}
		_, err := tx.Exec(
			"INSERT INTO entities ("+entityColumns+") VALUES (?, ?, ?, ?, ?, ?, NULL)",
			ent.EntityID, scope, classID, ent.Version,
			formatTime(ent.CreatedAt), formatTime(ent.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("persisting entity: %w", err)
		}
		aud.record("entities", ent.EntityID, types.AuditOpCreate, ent.Version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ent, nil
}

// GetEntity retrieves a live entity by ID.
func (s *instanceStore) GetEntity(scope types.Scope, id string) (*types.Entity, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, types.ErrInvalidID
	}
	db, err := s.backend.handle()
	if err != nil {
		return nil, err
	}
	return getEntity(db, scope, id)
}

// DeleteEntity soft-deletes the entity and cascades to its values and to
// all live relationships where it is source or target, in one transaction.
func (s *instanceStore) DeleteEntity(scope types.Scope, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return s.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		if _, err := getEntityTx(tx, scope, id); err != nil {
			return err
		}
		_, err := deleteEntityTx(tx, aud, scope, id)
		return err
	})
}

// deleteEntityTx performs the entity deletion cascade inside the caller's
// transaction and returns how many relationships it soft-deleted. Skips
// silently when the entity is already deleted, so cascade batches can
// re-apply safely.
func deleteEntityTx(tx *sql.Tx, aud *auditTrail, scope types.Scope, id string) (int, error) {
	now := time.Now().UTC()
	nowStr := formatTime(now)

	res, err := tx.Exec(
		"UPDATE entities SET "+softDeleteClause+" WHERE entity_id = ? AND tenant_id = ? AND deleted_at IS NULL",
		nowStr, nowStr, id, scope,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting entity %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil // already deleted
	}
	aud.record("entities", id, types.AuditOpDelete, 0)

	// Relationships where this entity is an endpoint, then their values.
	rows, err := tx.Query(
		"SELECT relationship_id FROM relationships WHERE tenant_id = ? AND (source_id = ? OR target_id = ?) AND deleted_at IS NULL",
		scope, id, id,
	)
	if err != nil {
		return 0, fmt.Errorf("querying relationships of entity %s: %w", id, err)
	}
	var relIDs []string
	for rows.Next() {
		var relID string
		if err := rows.Scan(&relID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning relationship id: %w", err)
		}
		relIDs = append(relIDs, relID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating relationships: %w", err)
	}
	for _, relID := range relIDs {
		if err := deleteRelationshipTx(tx, aud, scope, relID); err != nil {
			return 0, err
		}
	}

	// The entity's own values.
	if err := softDeleteValuesTx(tx, aud, scope, "entity_id", id, nowStr); err != nil {
		return 0, err
	}
	return len(relIDs), nil
}

// softDeleteValuesTx soft-deletes all live values owned through the given
// reference column.
func softDeleteValuesTx(tx *sql.Tx, aud *auditTrail, scope types.Scope, ownerCol, ownerID, nowStr string) error {
	rows, err := tx.Query(
		"SELECT value_id FROM attribute_values WHERE tenant_id = ? AND "+ownerCol+" = ? AND deleted_at IS NULL",
		scope, ownerID,
	)
	if err != nil {
		return fmt.Errorf("querying values of %s: %w", ownerID, err)
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
		return fmt.Errorf("iterating values: %w", err)
	}

	for _, valueID := range valueIDs {
		if _, err := tx.Exec(
			"UPDATE attribute_values SET deleted_at = ? WHERE value_id = ? AND tenant_id = ?",
			nowStr, valueID, scope,
		); err != nil {
			return fmt.Errorf("deleting value %s: %w", valueID, err)
		}
		aud.record("attribute_values", valueID, types.AuditOpDelete, 0)
	}
	return nil
}

func getEntity(q querier, scope types.Scope, id string) (*types.Entity, error) {
	row := q.QueryRow(
		"SELECT "+entityColumns+" FROM entities WHERE entity_id = ? AND tenant_id = ? AND deleted_at IS NULL",
		id, scope,
	)
	ent, err := hydrateEntity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: entity %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting entity %s: %w", id, err)
	}
	return ent, nil
}

func getEntityTx(tx *sql.Tx, scope types.Scope, id string) (*types.Entity, error) {
	return getEntity(tx, scope, id)
}

// hydrateEntity converts a SQLite row into a *types.Entity.
func hydrateEntity(s scanner) (*types.Entity, error) {
	var e types.Entity
	var createdAt, updatedAt string
	var deletedAt sql.NullString
	if err := s.Scan(&e.EntityID, &e.Tenant, &e.ClassID, &e.Version,
		&createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	var err error
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if e.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, fmt.Errorf("parsing deleted_at: %w", err)
	}
	return &e, nil
}

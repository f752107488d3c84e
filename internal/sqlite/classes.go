// This file implements the class registry. Entity classes and relationship
// classes share the define/update/retire contract; relationship classes add
// directionality and cardinality metadata. Cascading retirement soft-deletes
// instances in bounded batches, one transaction per batch, so a long cascade
// never holds locks across the whole run and an interrupted one resumes by
// re-invoking the retirement.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/loom/pkg/types"
)

var _ types.ClassRegistry = (*classRegistry)(nil)

type classRegistry struct {
	backend *Backend
}

const entityClassColumns = "class_id, tenant_id, name, description, version, created_at, updated_at, deleted_at"

const relationshipClassColumns = "class_id, tenant_id, name, description, directionality, " +
	"source_cardinality, target_cardinality, source_class_ids, target_class_ids, " +
	"version, created_at, updated_at, deleted_at"

// DefineEntityClass creates an entity class, name unique among live entity
// classes in scope.
func (r *classRegistry) DefineEntityClass(scope types.Scope, name, description string) (*types.EntityClass, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: class name must not be empty", types.ErrValidation)
	}
	version, now := stampNew()
	cls := &types.EntityClass{
		ClassID:     generateUUID(),
		Tenant:      scope,
		Name:        name,
		Description: description,
		Version:     version,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := r.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		if err := checkClassNameFree(tx, "entity_classes", scope, name, ""); err != nil {
			return err
		}
		var descPtr *string
		if description != "" {
			descPtr = &description
		}
		_, err := tx.Exec(
			"INSERT INTO entity_classes ("+entityClassColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, NULL)",
			cls.ClassID, scope, cls.Name, descPtr, cls.Version,
			formatTime(cls.CreatedAt), formatTime(cls.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("persisting entity class: %w", err)
		}
		aud.record("entity_classes", cls.ClassID, types.AuditOpCreate, cls.Version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cls, nil
}

// DefineRelationshipClass creates a relationship class. Directionality and
// cardinalities must come from their fixed value sets; directionality is
// immutable after this point.
func (r *classRegistry) DefineRelationshipClass(scope types.Scope, spec types.RelationshipClassSpec) (*types.RelationshipClass, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: class name must not be empty", types.ErrValidation)
	}
	version, now := stampNew()
	cls := &types.RelationshipClass{
		ClassID:           generateUUID(),
		Tenant:            scope,
		Name:              spec.Name,
		Description:       spec.Description,
		Directionality:    spec.Directionality,
		SourceCardinality: spec.SourceCardinality,
		TargetCardinality: spec.TargetCardinality,
		SourceClassIDs:    spec.SourceClassIDs,
		TargetClassIDs:    spec.TargetClassIDs,
		Version:           version,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if cls.Directionality == "" {
		cls.Directionality = types.DirectionalityDirected
	}
	if cls.SourceCardinality == "" {
		cls.SourceCardinality = types.CardinalityMany
	}
	if cls.TargetCardinality == "" {
		cls.TargetCardinality = types.CardinalityMany
	}
	if err := cls.Validate(); err != nil {
		return nil, err
	}

	err := r.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		if err := checkClassNameFree(tx, "relationship_classes", scope, cls.Name, ""); err != nil {
			return err
		}
		// Endpoint restrictions must name live entity classes.
		for _, ecID := range append(append([]string{}, cls.SourceClassIDs...), cls.TargetClassIDs...) {
			if _, err := getEntityClassTx(tx, scope, ecID); err != nil {
				return err
			}
		}
		srcJSON, err := json.Marshal(jsonStringList(cls.SourceClassIDs))
		if err != nil {
			return fmt.Errorf("encoding source class ids: %w", err)
		}
		tgtJSON, err := json.Marshal(jsonStringList(cls.TargetClassIDs))
		if err != nil {
			return fmt.Errorf("encoding target class ids: %w", err)
		}
		var descPtr *string
		if cls.Description != "" {
			descPtr = &cls.Description
		}
		_, err = tx.Exec(
			"INSERT INTO relationship_classes ("+relationshipClassColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)",
			cls.ClassID, scope, cls.Name, descPtr, cls.Directionality,
			cls.SourceCardinality, cls.TargetCardinality, string(srcJSON), string(tgtJSON),
			cls.Version, formatTime(cls.CreatedAt), formatTime(cls.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("persisting relationship class: %w", err)
		}
		aud.record("relationship_classes", cls.ClassID, types.AuditOpCreate, cls.Version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cls, nil
}

// GetEntityClass retrieves a live entity class by ID.
func (r *classRegistry) GetEntityClass(scope types.Scope, id string) (*types.EntityClass, error) {
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
	return getEntityClass(db, scope, id)
}

// GetRelationshipClass retrieves a live relationship class by ID.
func (r *classRegistry) GetRelationshipClass(scope types.Scope, id string) (*types.RelationshipClass, error) {
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
	return getRelationshipClass(db, scope, id)
}

// ListEntityClasses returns all live entity classes in scope, oldest first.
func (r *classRegistry) ListEntityClasses(scope types.Scope) ([]*types.EntityClass, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	db, err := r.backend.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(
		"SELECT "+entityClassColumns+" FROM entity_classes WHERE tenant_id = ? AND deleted_at IS NULL ORDER BY created_at ASC, class_id ASC",
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching entity classes: %w", err)
	}
	defer rows.Close()

	classes := []*types.EntityClass{}
	for rows.Next() {
		cls, err := hydrateEntityClass(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating entity class: %w", err)
		}
		classes = append(classes, cls)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entity classes: %w", err)
	}
	return classes, nil
}

// ListRelationshipClasses returns all live relationship classes in scope,
// oldest first.
func (r *classRegistry) ListRelationshipClasses(scope types.Scope) ([]*types.RelationshipClass, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	db, err := r.backend.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(
		"SELECT "+relationshipClassColumns+" FROM relationship_classes WHERE tenant_id = ? AND deleted_at IS NULL ORDER BY created_at ASC, class_id ASC",
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching relationship classes: %w", err)
	}
	defer rows.Close()

	classes := []*types.RelationshipClass{}
	for rows.Next() {
		cls, err := hydrateRelationshipClass(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating relationship class: %w", err)
		}
		classes = append(classes, cls)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relationship classes: %w", err)
	}
	return classes, nil
}

// UpdateEntityClass applies the patch to a live entity class.
func (r *classRegistry) UpdateEntityClass(scope types.Scope, id string, patch types.ClassPatch) (*types.EntityClass, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	var updated *types.EntityClass
	err := r.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		cls, err := getEntityClassTx(tx, scope, id)
		if err != nil {
			return err
		}
		if err := applyClassPatch(tx, "entity_classes", scope, id, patch, &cls.Name, &cls.Description); err != nil {
			return err
		}
		now := time.Now().UTC()
		if _, err := tx.Exec(
			"UPDATE entity_classes SET name = ?, description = ?, "+touchClause+" WHERE class_id = ? AND tenant_id = ?",
			cls.Name, nullable(cls.Description), formatTime(now), id, scope,
		); err != nil {
			return fmt.Errorf("persisting entity class update: %w", err)
		}
		cls.Version++
		cls.UpdatedAt = now
		aud.record("entity_classes", id, types.AuditOpUpdate, cls.Version)
		updated = cls
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateRelationshipClass applies the patch to a live relationship class.
// Directionality and cardinality are immutable: flipping them would silently
// invalidate the semantics of existing relationships.
func (r *classRegistry) UpdateRelationshipClass(scope types.Scope, id string, patch types.ClassPatch) (*types.RelationshipClass, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	var updated *types.RelationshipClass
	err := r.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		cls, err := getRelationshipClassTx(tx, scope, id)
		if err != nil {
			return err
		}
		if err := applyClassPatch(tx, "relationship_classes", scope, id, patch, &cls.Name, &cls.Description); err != nil {
			return err
		}
		now := time.Now().UTC()
		if _, err := tx.Exec(
			"UPDATE relationship_classes SET name = ?, description = ?, "+touchClause+" WHERE class_id = ? AND tenant_id = ?",
			cls.Name, nullable(cls.Description), formatTime(now), id, scope,
		); err != nil {
			return fmt.Errorf("persisting relationship class update: %w", err)
		}
		cls.Version++
		cls.UpdatedAt = now
		aud.record("relationship_classes", id, types.AuditOpUpdate, cls.Version)
		updated = cls
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RetireEntityClass soft-deletes the class and cascades to its assignments.
// With live instances it fails ErrInUse unless cascade is set; the cascade
// soft-deletes instances (plus their values and relationships) in bounded
// batches and is idempotent, so a partially completed retirement is resumed
// by calling it again.
func (r *classRegistry) RetireEntityClass(scope types.Scope, id string, cascade bool) (*types.CascadeProgress, error) {
	return r.retireClass(scope, id, cascade, types.ClassKindEntity)
}

// RetireRelationshipClass behaves like RetireEntityClass for relationship
// classes and their relationship instances.
func (r *classRegistry) RetireRelationshipClass(scope types.Scope, id string, cascade bool) (*types.CascadeProgress, error) {
	return r.retireClass(scope, id, cascade, types.ClassKindRelationship)
}

func (r *classRegistry) retireClass(scope types.Scope, id string, cascade bool, kind types.ClassKind) (*types.CascadeProgress, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	table := "entity_classes"
	instanceTable := "entities"
	if kind == types.ClassKindRelationship {
		table = "relationship_classes"
		instanceTable = "relationships"
	}

	progress := &types.CascadeProgress{}

	// Phase one: retire the class row itself and its assignments, blocking
	// new instance creation before any instance is touched. Re-applying a
	// partially completed retirement re-enters with the class already
	// retired and skips straight to the remaining instances.
	err := r.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		var deletedAt sql.NullString
		err := tx.QueryRow(
			"SELECT deleted_at FROM "+table+" WHERE class_id = ? AND tenant_id = ?",
			id, scope,
		).Scan(&deletedAt)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: class %s", types.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("checking class: %w", err)
		}

		var liveInstances int
		if err := tx.QueryRow(
			"SELECT count(*) FROM "+instanceTable+" WHERE tenant_id = ? AND class_id = ? AND deleted_at IS NULL",
			scope, id,
		).Scan(&liveInstances); err != nil {
			return fmt.Errorf("counting live instances: %w", err)
		}
		if liveInstances > 0 && !cascade {
			return types.NewViolation(types.ErrInUse, "live-instances", id, "",
				fmt.Sprintf("%d live instance(s) of this class exist; retry with cascade", liveInstances))
		}
		if deletedAt.Valid && !cascade {
			return fmt.Errorf("%w: class %s", types.ErrNotFound, id)
		}

		assignments, err := listAssignmentsForClassTx(tx, scope, id, kind)
		if err != nil {
			return err
		}
		for _, asn := range assignments {
			if err := unassignTx(tx, aud, scope, asn); err != nil {
				return err
			}
			progress.AssignmentsRetired++
		}

		if !deletedAt.Valid {
			now := time.Now().UTC()
			if _, err := tx.Exec(
				"UPDATE "+table+" SET "+softDeleteClause+" WHERE class_id = ? AND tenant_id = ?",
				formatTime(now), formatTime(now), id, scope,
			); err != nil {
				return fmt.Errorf("retiring class: %w", err)
			}
			aud.record(table, id, types.AuditOpRetire, 0)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !cascade {
		progress.Complete = true
		return progress, nil
	}

	// Phase two: soft-delete remaining live instances, one bounded batch
	// per transaction.
	batchSize := r.backend.config.GetCascadeBatchSize()
	for {
		var batch int
		err := r.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
			batch = 0
			rows, err := tx.Query(
				"SELECT "+idColumn(instanceTable)+" FROM "+instanceTable+
					" WHERE tenant_id = ? AND class_id = ? AND deleted_at IS NULL LIMIT ?",
				scope, id, batchSize,
			)
			if err != nil {
				return fmt.Errorf("selecting cascade batch: %w", err)
			}
			var ids []string
			for rows.Next() {
				var instanceID string
				if err := rows.Scan(&instanceID); err != nil {
					rows.Close()
					return fmt.Errorf("scanning cascade batch: %w", err)
				}
				ids = append(ids, instanceID)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return fmt.Errorf("iterating cascade batch: %w", err)
			}

			for _, instanceID := range ids {
				if kind == types.ClassKindEntity {
					rels, err := deleteEntityTx(tx, aud, scope, instanceID)
					if err != nil {
						return err
					}
					progress.RelationshipsRetired += rels
				} else {
					if err := deleteRelationshipTx(tx, aud, scope, instanceID); err != nil {
						return err
					}
				}
				batch++
			}
			return nil
		})
		if err != nil {
			return progress, err
		}
		progress.InstancesRetired += batch
		if batch > 0 {
			r.backend.logger.Info("cascade batch retired",
				zap.String("class_id", id),
				zap.Int("batch", batch),
				zap.Int("total", progress.InstancesRetired))
		}
		if batch < batchSize {
			break
		}
	}

	progress.Complete = true
	return progress, nil
}

func idColumn(instanceTable string) string {
	if instanceTable == "relationships" {
		return "relationship_id"
	}
	return "entity_id"
}

// applyClassPatch merges the patch into the in-memory class fields after
// checking name uniqueness within the class kind.
func applyClassPatch(tx *sql.Tx, table string, scope types.Scope, id string, patch types.ClassPatch, name, description *string) error {
	if patch.Name != nil && *patch.Name != *name {
		if *patch.Name == "" {
			return fmt.Errorf("%w: class name must not be empty", types.ErrValidation)
		}
		if err := checkClassNameFree(tx, table, scope, *patch.Name, id); err != nil {
			return err
		}
		*name = *patch.Name
	}
	if patch.Description != nil {
		*description = *patch.Description
	}
	return nil
}

// checkClassNameFree enforces live-name uniqueness per tenant and class kind.
func checkClassNameFree(tx *sql.Tx, table string, scope types.Scope, name, excludeID string) error {
	var dupID string
	err := tx.QueryRow(
		"SELECT class_id FROM "+table+" WHERE tenant_id = ? AND name = ? AND class_id != ? AND deleted_at IS NULL",
		scope, name, excludeID,
	).Scan(&dupID)
	if err == nil {
		return types.NewViolation(types.ErrConflict, "unique-name", dupID, "",
			fmt.Sprintf("class name %q already exists", name))
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("checking class name uniqueness: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// jsonStringList never encodes as JSON null.
func jsonStringList(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}

func getEntityClass(q querier, scope types.Scope, id string) (*types.EntityClass, error) {
	row := q.QueryRow(
		"SELECT "+entityClassColumns+" FROM entity_classes WHERE class_id = ? AND tenant_id = ? AND deleted_at IS NULL",
		id, scope,
	)
	cls, err := hydrateEntityClass(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: entity class %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting entity class %s: %w", id, err)
	}
	return cls, nil
}

func getEntityClassTx(tx *sql.Tx, scope types.Scope, id string) (*types.EntityClass, error) {
	return getEntityClass(tx, scope, id)
}

func getRelationshipClass(q querier, scope types.Scope, id string) (*types.RelationshipClass, error) {
	row := q.QueryRow(
		"SELECT "+relationshipClassColumns+" FROM relationship_classes WHERE class_id = ? AND tenant_id = ? AND deleted_at IS NULL",
		id, scope,
	)
	cls, err := hydrateRelationshipClass(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: relationship class %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting relationship class %s: %w", id, err)
	}
	return cls, nil
}

func getRelationshipClassTx(tx *sql.Tx, scope types.Scope, id string) (*types.RelationshipClass, error) {
	return getRelationshipClass(tx, scope, id)
}

// hydrateEntityClass converts a SQLite row into a *types.EntityClass.
func hydrateEntityClass(s scanner) (*types.EntityClass, error) {
	var c types.EntityClass
	var desc sql.NullString
	var createdAt, updatedAt string
	var deletedAt sql.NullString
	if err := s.Scan(&c.ClassID, &c.Tenant, &c.Name, &desc, &c.Version,
		&createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	c.Description = desc.String
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if c.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, fmt.Errorf("parsing deleted_at: %w", err)
	}
	return &c, nil
}

// hydrateRelationshipClass converts a SQLite row into a *types.RelationshipClass.
func hydrateRelationshipClass(s scanner) (*types.RelationshipClass, error) {
	var c types.RelationshipClass
	var desc sql.NullString
	var srcJSON, tgtJSON, createdAt, updatedAt string
	var deletedAt sql.NullString
	if err := s.Scan(&c.ClassID, &c.Tenant, &c.Name, &desc, &c.Directionality,
		&c.SourceCardinality, &c.TargetCardinality, &srcJSON, &tgtJSON,
		&c.Version, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	c.Description = desc.String
	if err := json.Unmarshal([]byte(srcJSON), &c.SourceClassIDs); err != nil {
		return nil, fmt.Errorf("decoding source class ids: %w", err)
	}
	if err := json.Unmarshal([]byte(tgtJSON), &c.TargetClassIDs); err != nil {
		return nil, fmt.Errorf("decoding target class ids: %w", err)
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if c.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, fmt.Errorf("parsing deleted_at: %w", err)
	}
	return &c, nil
}

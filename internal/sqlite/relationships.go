// This file implements the relationship half of the instance store. The
// cardinality check and the insert run inside one immediate transaction so
// two concurrent writers cannot both pass the check; the loser retries the
// whole unit through runWrite or surfaces a typed error.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mesh-intelligence/loom/pkg/types"
)

const relationshipColumns = "relationship_id, tenant_id, class_id, source_id, target_id, version, created_at, updated_at, deleted_at"

// defaultTraversalPageSize bounds how many rows one iterator page fetches.
const defaultTraversalPageSize = 64

// CreateRelationship creates an instance of a live relationship class after
// validating endpoint existence, endpoint-class permission, and cardinality.
func (s *instanceStore) CreateRelationship(scope types.Scope, classID, sourceID, targetID string) (*types.Relationship, error) {
	if classID == "" || sourceID == "" || targetID == "" {
		return nil, types.ErrInvalidID
	}
	version, now := stampNew()
	rel := &types.Relationship{
		RelationshipID: generateUUID(),
		Tenant:         scope,
		ClassID:        classID,
		SourceID:       sourceID,
		TargetID:       targetID,
		Version:        version,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		cls, err := getRelationshipClassTx(tx, scope, classID)
		if err != nil {
			return err
		}
		source, err := getEntityTx(tx, scope, sourceID)
		if err != nil {
			return err
		}
		target, err := getEntityTx(tx, scope, targetID)
		if err != nil {
			return err
		}

		if !cls.PermitsSource(source.ClassID) {
			return types.NewViolation(types.ErrClassMismatch, "source-class-permitted", sourceID, "",
				fmt.Sprintf("entity class %s is not a permitted source for relationship class %s", source.ClassID, classID))
		}
		if !cls.PermitsTarget(target.ClassID) {
			return types.NewViolation(types.ErrClassMismatch, "target-class-permitted", targetID, "",
				fmt.Sprintf("entity class %s is not a permitted target for relationship class %s", target.ClassID, classID))
		}

		// Cardinality check-then-insert, atomic within this transaction.
		if cls.SourceCardinality == types.CardinalityOne {
			if err := checkCardinality(tx, scope, classID, "source_id", sourceID, "source-cardinality-one"); err != nil {
				return err
			}
		}
		if cls.TargetCardinality == types.CardinalityOne {
			if err := checkCardinality(tx, scope, classID, "target_id", targetID, "target-cardinality-one"); err != nil {
				return err
			}
		}

		_, err = tx.Exec(
			"INSERT INTO relationships ("+relationshipColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)",
			rel.RelationshipID, scope, classID, sourceID, targetID,
			rel.Version, formatTime(rel.CreatedAt), formatTime(rel.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("persisting relationship: %w", err)
		}
		aud.record("relationships", rel.RelationshipID, types.AuditOpCreate, rel.Version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// checkCardinality counts live relationships of the class touching the
// given endpoint through the given column.
func checkCardinality(tx *sql.Tx, scope types.Scope, classID, col, endpointID, invariant string) error {
	var count int
	err := tx.QueryRow(
		"SELECT count(*) FROM relationships WHERE tenant_id = ? AND class_id = ? AND "+col+" = ? AND deleted_at IS NULL",
		scope, classID, endpointID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("counting relationships for cardinality: %w", err)
	}
	if count > 0 {
		return types.NewViolation(types.ErrCardinalityViolation, invariant, endpointID, "",
			fmt.Sprintf("entity already has a live relationship of class %s on that side", classID))
	}
	return nil
}

// GetRelationship retrieves a live relationship by ID.
func (s *instanceStore) GetRelationship(scope types.Scope, id string) (*types.Relationship, error) {
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
	return getRelationship(db, scope, id)
}

// DeleteRelationship soft-deletes the relationship and its values.
func (s *instanceStore) DeleteRelationship(scope types.Scope, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return s.backend.runWrite(scope, func(tx *sql.Tx, aud *auditTrail) error {
		if _, err := getRelationshipTx(tx, scope, id); err != nil {
			return err
		}
		return deleteRelationshipTx(tx, aud, scope, id)
	})
}

// deleteRelationshipTx soft-deletes one relationship and its values inside
// the caller's transaction. Skips silently when already deleted.
func deleteRelationshipTx(tx *sql.Tx, aud *auditTrail, scope types.Scope, id string) error {
	now := formatTime(time.Now().UTC())
	res, err := tx.Exec(
		"UPDATE relationships SET "+softDeleteClause+" WHERE relationship_id = ? AND tenant_id = ? AND deleted_at IS NULL",
		now, now, id, scope,
	)
	if err != nil {
		return fmt.Errorf("deleting relationship %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil // already deleted
	}
	aud.record("relationships", id, types.AuditOpDelete, 0)
	return softDeleteValuesTx(tx, aud, scope, "relationship_id", id, now)
}

// ListRelationships traverses the live relationships touching an entity.
// The returned iterator pages through the store lazily, keyed by
// relationship ID, and is restartable from its Cursor. For a bidirectional
// class the direction filter is ignored for matching (either endpoint
// qualifies) and each row is emitted exactly once.
func (s *instanceStore) ListRelationships(scope types.Scope, q types.TraversalQuery) (types.RelationshipIterator, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if q.EntityID == "" {
		return nil, types.ErrInvalidID
	}
	if q.Direction == "" {
		q.Direction = types.DirectionAny
	}
	if !types.IsValidDirection(q.Direction) {
		return nil, types.NewViolation(types.ErrValidation, "traversal-direction", q.EntityID, "",
			fmt.Sprintf("unrecognized direction %q", q.Direction))
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultTraversalPageSize
	}
	db, err := s.backend.handle()
	if err != nil {
		return nil, err
	}
	return &relationshipIterator{
		db:     db,
		scope:  scope,
		query:  q,
		cursor: q.Cursor,
		seen:   make(map[string]struct{}),
	}, nil
}

// relationshipIterator pages through live relationships in relationship-ID
// order (UUID v7, so creation order). The seen set suppresses duplicate
// emission across restarts and page boundaries.
type relationshipIterator struct {
	db      *sql.DB
	scope   types.Scope
	query   types.TraversalQuery
	cursor  string
	seen    map[string]struct{}
	page    []*types.Relationship
	idx     int
	current *types.Relationship
	err     error
	done    bool
	closed  bool
}

var _ types.RelationshipIterator = (*relationshipIterator)(nil)

func (it *relationshipIterator) Next() bool {
	if it.err != nil || it.closed {
		return false
	}
	for {
		if it.idx < len(it.page) {
			rel := it.page[it.idx]
			it.idx++
			if _, dup := it.seen[rel.RelationshipID]; dup {
				continue
			}
			it.seen[rel.RelationshipID] = struct{}{}
			it.current = rel
			it.cursor = rel.RelationshipID
			return true
		}
		if it.done {
			return false
		}
		if err := it.fetchPage(); err != nil {
			it.err = err
			return false
		}
	}
}

func (it *relationshipIterator) fetchPage() error {
	direction := ""
	switch it.query.Direction {
	case types.DirectionOutgoing:
		direction = "(r.source_id = :e OR (c.directionality = 'bidirectional' AND r.target_id = :e))"
	case types.DirectionIncoming:
		direction = "(r.target_id = :e OR (c.directionality = 'bidirectional' AND r.source_id = :e))"
	default:
		direction = "(r.source_id = :e OR r.target_id = :e)"
	}

	query := `SELECT r.relationship_id, r.tenant_id, r.class_id, r.source_id, r.target_id,
                     r.version, r.created_at, r.updated_at, r.deleted_at
              FROM relationships r
              JOIN relationship_classes c ON c.class_id = r.class_id AND c.tenant_id = r.tenant_id
              WHERE r.tenant_id = :tenant AND r.deleted_at IS NULL
                AND r.relationship_id > :cursor AND ` + direction
	args := []any{
		sql.Named("tenant", it.scope),
		sql.Named("cursor", it.cursor),
		sql.Named("e", it.query.EntityID),
	}
	if it.query.ClassID != "" {
		query += " AND r.class_id = :class"
		args = append(args, sql.Named("class", it.query.ClassID))
	}
	query += " ORDER BY r.relationship_id ASC LIMIT :limit"
	args = append(args, sql.Named("limit", it.query.PageSize))

	rows, err := it.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("fetching traversal page: %w", err)
	}
	defer rows.Close()

	it.page = it.page[:0]
	it.idx = 0
	for rows.Next() {
		rel, err := hydrateRelationship(rows)
		if err != nil {
			return fmt.Errorf("hydrating relationship: %w", err)
		}
		it.page = append(it.page, rel)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating traversal page: %w", err)
	}
	if len(it.page) > 0 {
		// Advance the fetch cursor even past rows the seen set will skip.
		it.cursor = it.page[len(it.page)-1].RelationshipID
	}
	if len(it.page) < it.query.PageSize {
		it.done = true
	}
	return nil
}

func (it *relationshipIterator) Relationship() *types.Relationship { return it.current }

func (it *relationshipIterator) Cursor() string {
	if it.current != nil {
		return it.current.RelationshipID
	}
	return it.query.Cursor
}

func (it *relationshipIterator) Err() error { return it.err }

func (it *relationshipIterator) Close() error {
	it.closed = true
	it.page = nil
	return nil
}

func getRelationship(q querier, scope types.Scope, id string) (*types.Relationship, error) {
	row := q.QueryRow(
		"SELECT "+relationshipColumns+" FROM relationships WHERE relationship_id = ? AND tenant_id = ? AND deleted_at IS NULL",
		id, scope,
	)
	rel, err := hydrateRelationship(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: relationship %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting relationship %s: %w", id, err)
	}
	return rel, nil
}

func getRelationshipTx(tx *sql.Tx, scope types.Scope, id string) (*types.Relationship, error) {
	return getRelationship(tx, scope, id)
}

// hydrateRelationship converts a SQLite row into a *types.Relationship.
func hydrateRelationship(s scanner) (*types.Relationship, error) {
	var r types.Relationship
	var createdAt, updatedAt string
	var deletedAt sql.NullString
	if err := s.Scan(&r.RelationshipID, &r.Tenant, &r.ClassID, &r.SourceID, &r.TargetID,
		&r.Version, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	var err error
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if r.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, fmt.Errorf("parsing deleted_at: %w", err)
	}
	return &r, nil
}

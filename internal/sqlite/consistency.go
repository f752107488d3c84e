// Shared consistency layer: every mutation in the backend runs through
// runWrite, which provides the single immediate transaction, bounded retry
// on store-level contention, and audit emission after commit. Version
// stamping goes through the stamp helpers so no table writer duplicates it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/loom/pkg/types"
)

const (
	// writeAttempts bounds retries of a whole check-then-insert unit when
	// two writers collide; the loser retries from the check, never just
	// the insert half.
	writeAttempts  = 5
	retryBaseDelay = 10 * time.Millisecond

	// auditAttempts bounds delivery retries to the audit sink. Delivery
	// failure never rolls back the primary mutation.
	auditAttempts   = 3
	auditRetryDelay = 50 * time.Millisecond
)

// auditTrail collects the audit records of one mutation unit, emitted only
// after the owning transaction commits.
type auditTrail struct {
	scope   types.Scope
	records []types.AuditRecord
}

// record registers one mutated row for post-commit emission.
func (a *auditTrail) record(table, recordID, operation string, version int64) {
	a.records = append(a.records, types.AuditRecord{
		AuditID:    generateUUID(),
		Tenant:     a.scope,
		Table:      table,
		RecordID:   recordID,
		Operation:  operation,
		Version:    version,
		OccurredAt: time.Now().UTC(),
	})
}

// runWrite executes fn inside a single immediate transaction. On
// store-level contention the whole unit is retried with backoff up to
// writeAttempts times before surfacing ErrConflict. After a successful
// commit the collected audit records are delivered to the sink.
func (b *Backend) runWrite(scope types.Scope, fn func(tx *sql.Tx, aud *auditTrail) error) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	db, err := b.handle()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBaseDelay << (attempt - 1))
		}

		aud := &auditTrail{scope: scope}
		err := func() error {
			tx, err := db.Begin()
			if err != nil {
				return err
			}
			defer tx.Rollback()
			if err := fn(tx, aud); err != nil {
				return err
			}
			return tx.Commit()
		}()
		if err == nil {
			b.emitAudit(aud.records)
			return nil
		}
		if !isContention(err) {
			return err
		}
		lastErr = err
		b.logger.Debug("write contention, retrying",
			zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return fmt.Errorf("%w: store contention persisted after %d attempts: %v",
		types.ErrConflict, writeAttempts, lastErr)
}

// isContention reports whether the error is a transient SQLite lock or
// busy condition worth retrying.
func isContention(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// emitAudit delivers the records to the sink with bounded retry. Failures
// are logged, never propagated: the primary mutation already committed.
func (b *Backend) emitAudit(records []types.AuditRecord) {
	ctx := context.Background()
	for _, rec := range records {
		var err error
		for attempt := 0; attempt < auditAttempts; attempt++ {
			if attempt > 0 {
				time.Sleep(auditRetryDelay)
			}
			if err = b.sink.Emit(ctx, rec); err == nil {
				break
			}
		}
		if err != nil {
			b.logger.Warn("audit delivery failed",
				zap.String("table", rec.Table),
				zap.String("record_id", rec.RecordID),
				zap.String("operation", rec.Operation),
				zap.Error(err))
		}
	}
}

// nopSink drops audit records. Default when no sink is configured.
type nopSink struct{}

func (nopSink) Emit(context.Context, types.AuditRecord) error { return nil }
func (nopSink) Close() error                                  { return nil }

// Timestamp storage format. RFC3339Nano keeps sub-second ordering while
// staying parseable as RFC3339.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullTime hydrates a nullable timestamp column (deleted_at).
func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// stampNew fills the bookkeeping fields of a freshly created record.
func stampNew() (version int64, createdAt time.Time) {
	return 1, time.Now().UTC()
}

// touchClause is the shared UPDATE fragment that bumps the version counter
// and refreshes updated_at; every mutation of an existing row includes it.
const touchClause = "version = version + 1, updated_at = ?"

// softDeleteClause marks a row deleted with the same stamping rules.
const softDeleteClause = "deleted_at = ?, version = version + 1, updated_at = ?"

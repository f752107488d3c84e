package types

import (
	"context"
	"time"
)

// Audit operations recorded by the consistency layer.
const (
	AuditOpCreate   = "create"
	AuditOpUpdate   = "update"
	AuditOpRetire   = "retire"
	AuditOpDelete   = "delete"
	AuditOpUnassign = "unassign"
)

// AuditRecord describes one committed mutation. The consistency layer emits
// one record per mutated row, after the owning transaction commits.
type AuditRecord struct {
	AuditID    string    `json:"audit_id"`
	Tenant     Scope     `json:"tenant"`
	Table      string    `json:"table"`
	RecordID   string    `json:"record_id"`
	Operation  string    `json:"operation"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AuditSink durably receives audit records. Delivery is
// fire-and-forget-with-retry: the backend retries failed emissions a bounded
// number of times outside the transactional write path, and a delivery
// failure never rolls back the primary mutation.
type AuditSink interface {
	Emit(ctx context.Context, rec AuditRecord) error
	Close() error
}

// Package audit provides AuditSink implementations: a Kafka-backed sink for
// production delivery and an in-memory sink for tests and single-binary use.
// The backend treats delivery as fire-and-forget-with-retry; sinks only need
// to report per-emission success or failure.
package audit

import (
	"context"
	"sync"

	"github.com/mesh-intelligence/loom/pkg/types"
)

// MemorySink retains emitted records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []types.AuditRecord
	closed  bool
}

var _ types.AuditSink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit stores the record. Returns an error after Close.
func (s *MemorySink) Emit(_ context.Context, rec types.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrStoreDetached
	}
	s.records = append(s.records, rec)
	return nil
}

// Close marks the sink closed. Idempotent.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Records returns a copy of everything emitted so far.
func (s *MemorySink) Records() []types.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AuditRecord, len(s.records))
	copy(out, s.records)
	return out
}

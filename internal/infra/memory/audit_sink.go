package memory

import (
	"context"
	"sync"

	"quiz-event-service/internal/audit"
)

// AuditLog is a synchronous in-memory audit sink for tests and demo mode.
type AuditLog struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) Record(_ context.Context, e audit.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a snapshot of everything recorded so far.
func (l *AuditLog) Entries() []audit.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]audit.Entry(nil), l.entries...)
}

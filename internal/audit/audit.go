// Package audit provides the fire-and-forget audit trail. Recording never
// blocks or fails the triggering operation; a full buffer or a failed write
// drops the entry with a log line.
package audit

import (
	"context"
	"log"
	"time"
)

// Entry is one audit record.
type Entry struct {
	CreatedAt    time.Time
	ActorID      int64
	Action       string
	ResourceType string
	ResourceID   int64
	Details      string
}

// Sink accepts audit entries. Implementations must not block the caller.
type Sink interface {
	Record(ctx context.Context, e Entry)
}

// Writer persists audit entries; the postgres store implements it.
type Writer interface {
	WriteAudit(ctx context.Context, e Entry) error
}

// Recorder is an asynchronous Sink: entries go through a buffered channel to
// a single writer goroutine. Entries are dropped rather than queued
// unboundedly when the writer falls behind.
type Recorder struct {
	entries chan Entry
	done    chan struct{}
	clock   func() time.Time
}

func NewRecorder(w Writer, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		entries: make(chan Entry, buffer),
		done:    make(chan struct{}),
		clock:   time.Now,
	}
	go r.run(w)
	return r
}

// Record enqueues the entry without blocking.
func (r *Recorder) Record(_ context.Context, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clock()
	}
	select {
	case r.entries <- e:
	default:
		log.Printf("audit: buffer full, dropping %q for actor %d", e.Action, e.ActorID)
	}
}

// Close drains pending entries and stops the writer goroutine.
func (r *Recorder) Close() {
	close(r.entries)
	<-r.done
}

func (r *Recorder) run(w Writer) {
	defer close(r.done)
	for e := range r.entries {
		// detached context: audit outlives the request that produced it
		if err := w.WriteAudit(context.Background(), e); err != nil {
			log.Printf("audit: write %q failed: %v", e.Action, err)
		}
	}
}

// Noop discards all entries.
type Noop struct{}

func (Noop) Record(context.Context, Entry) {}

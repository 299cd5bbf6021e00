package durable

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// AuditEntry is one recorded admin filter-list change, given an id so
// entries can be referenced individually downstream.
type AuditEntry struct {
	ID     string
	Action string
	Phrase string
	Reason string
	At     time.Time
}

// LogAuditSink implements aggregator.AuditSink by writing every
// add_filter/remove_filter change to the structured logger and retaining
// a bounded in-memory trail readable through Entries. It is
// the default single-process audit sink; a durable-store-backed sink
// follows the same interface for multi-process deployments.
type LogAuditSink struct {
	log *log.Logger

	mu      sync.Mutex
	entries []AuditEntry
	max     int
}

// NewLogAuditSink constructs a sink that logs via logger (log.Default()
// if nil) and retains at most maxEntries recent entries (0 uses 1000).
func NewLogAuditSink(logger *log.Logger, maxEntries int) *LogAuditSink {
	if logger == nil {
		logger = log.Default()
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &LogAuditSink{log: logger, max: maxEntries}
}

// RecordFilterChange implements aggregator.AuditSink.
func (s *LogAuditSink) RecordFilterChange(action, phrase, reason string, at time.Time) {
	entry := AuditEntry{ID: uuid.NewString(), Action: action, Phrase: phrase, Reason: reason, At: at}
	s.log.Infof("filter audit: %s phrase=%q reason=%q id=%s", action, phrase, reason, entry.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
}

// Entries returns a copy of the retained audit trail, most recent last.
func (s *LogAuditSink) Entries() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

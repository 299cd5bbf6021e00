package aggregator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evgenyvinnik/typeahead-core/internal/utils"
	"github.com/evgenyvinnik/typeahead-core/pkg/breaker"
	"github.com/evgenyvinnik/typeahead-core/pkg/durable"
)

// qwertyRow is the set of letters on the home and adjacent rows of a
// QWERTY keyboard, used by the keyboard-smash heuristic below.
const qwertyRow = "qwertyuiopasdfghjklzxcvbnm"

// IsLowQuality rejects junk queries before they reach the buffer: length
// bounds, all-numeric, keyboard-smash runs, and repeated-character runs.
func IsLowQuality(phrase string) bool {
	n := len([]rune(phrase))
	if n < 2 || n > 100 {
		return true
	}
	if utils.IsOnlyNumbers(phrase) {
		return true
	}
	if hasKeyboardSmashRun(phrase, 10) {
		return true
	}
	if hasRepeatedRun(phrase, 5) {
		return true
	}
	return false
}

func hasKeyboardSmashRun(s string, runLen int) bool {
	run := 0
	for _, r := range strings.ToLower(s) {
		if strings.ContainsRune(qwertyRow, r) {
			run++
			if run >= runLen {
				return true
			}
			continue
		}
		run = 0
	}
	return false
}

func hasRepeatedRun(s string, runLen int) bool {
	runes := []rune(s)
	if len(runes) == 0 {
		return false
	}
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= runLen {
				return true
			}
			continue
		}
		run = 1
	}
	return false
}

// FilteredPhraseSet is the append-only-plus-remove set of phrases that
// must never appear in suggestions. AuditSink, if set, receives a record
// of every Add/Remove for the admin audit trail.
type FilteredPhraseSet struct {
	mu      sync.RWMutex
	phrases map[string]string // phrase -> reason
	loaded  bool              // mirror hydrated from the authoritative store
	audit   AuditSink
	store   durable.FilteredPhraseStore
	db      *breaker.Breaker
	log     *log.Logger
}

// AuditSink records administrative filter-list changes.
type AuditSink interface {
	RecordFilterChange(action, phrase, reason string, at time.Time)
}

// NewFilteredPhraseSet constructs an empty set. audit may be nil.
func NewFilteredPhraseSet(audit AuditSink) *FilteredPhraseSet {
	return &FilteredPhraseSet{phrases: make(map[string]string), audit: audit}
}

// SetStore wires the authoritative durable.FilteredPhraseStore behind
// this mirror, so add_filter/remove_filter survive a restart. store and
// logger may be nil to leave persistence disabled.
func (f *FilteredPhraseSet) SetStore(store durable.FilteredPhraseStore, logger *log.Logger) {
	f.mu.Lock()
	f.store = store
	f.log = logger
	f.mu.Unlock()
}

// LoadFrom hydrates the in-memory mirror from the durable store, for
// startup before the first add_filter/remove_filter request.
func (f *FilteredPhraseSet) LoadFrom(ctx context.Context) error {
	f.mu.RLock()
	store := f.store
	f.mu.RUnlock()
	if store == nil {
		return nil
	}
	rows, err := store.List(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	for _, row := range rows {
		f.phrases[row.Phrase] = row.Reason
	}
	f.loaded = true
	f.mu.Unlock()
	return nil
}

// Add implements add_filter(phrase, reason).
func (f *FilteredPhraseSet) Add(phrase, reason string, at time.Time) {
	f.mu.Lock()
	f.phrases[phrase] = reason
	store, logger := f.store, f.log
	f.mu.Unlock()
	if f.audit != nil {
		f.audit.RecordFilterChange("add_filter", phrase, reason, at)
	}
	if store != nil {
		if err := store.Add(context.Background(), durable.FilteredPhraseRow{Phrase: phrase, Reason: reason, AddedAt: at}); err != nil && logger != nil {
			logger.Warnf("failed to persist add_filter(%q): %v", phrase, err)
		}
	}
}

// Remove implements remove_filter(phrase, reason).
func (f *FilteredPhraseSet) Remove(phrase, reason string, at time.Time) {
	f.mu.Lock()
	delete(f.phrases, phrase)
	store, logger := f.store, f.log
	f.mu.Unlock()
	if f.audit != nil {
		f.audit.RecordFilterChange("remove_filter", phrase, reason, at)
	}
	if store != nil {
		if err := store.Remove(context.Background(), phrase); err != nil && logger != nil {
			logger.Warnf("failed to persist remove_filter(%q): %v", phrase, err)
		}
	}
}

// Contains reports whether phrase is currently filtered.
func (f *FilteredPhraseSet) Contains(phrase string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.phrases[phrase]
	return ok
}

// IsInappropriate consults the in-memory mirror. When the mirror was
// never hydrated from the authoritative store (LoadFrom failed or was
// skipped), it falls back to that store through the database circuit
// breaker, hydrating on success; on breaker open or store error the
// phrase is accepted, preserving availability over strictness.
func (f *FilteredPhraseSet) IsInappropriate(phrase string) bool {
	f.mu.RLock()
	_, ok := f.phrases[phrase]
	loaded, store, db := f.loaded, f.store, f.db
	f.mu.RUnlock()
	if ok || loaded || store == nil {
		return ok
	}

	rows, err := listFiltered(store, db)
	if err != nil {
		if f.log != nil {
			f.log.Warnf("filtered-phrase fallback unavailable, accepting %q: %v", phrase, err)
		}
		return false
	}

	f.mu.Lock()
	for _, row := range rows {
		f.phrases[row.Phrase] = row.Reason
	}
	f.loaded = true
	_, ok = f.phrases[phrase]
	f.mu.Unlock()
	return ok
}

// listFiltered reads the authoritative filter list, through the database
// breaker when one is wired.
func listFiltered(store durable.FilteredPhraseStore, db *breaker.Breaker) ([]durable.FilteredPhraseRow, error) {
	if db == nil {
		return store.List(context.Background())
	}
	result, err := db.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return store.List(ctx)
	}, nil)
	if err != nil {
		return nil, err
	}
	return result.([]durable.FilteredPhraseRow), nil
}

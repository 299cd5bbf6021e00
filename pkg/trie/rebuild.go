package trie

import (
	"time"

	"github.com/evgenyvinnik/typeahead-core/internal/normalize"
)

// PhraseSeed is one row of an external source feeding a rebuild: an
// already-aggregated phrase count with its last-updated timestamp.
type PhraseSeed struct {
	Phrase      string
	Count       int64
	LastUpdated time.Time
}

// FromSource builds a fresh Trie from an already-aggregated set of counts,
// for example the output of the aggregator's rebuild_trie or a durable
// phrase-count store's full scan. The caller swaps the returned Trie into
// place (atomic.Pointer[Trie] at the suggestion-service layer) rather than
// mutating a live index in bulk, since bulk loads under t.mu would block
// lookups for as long as the rebuild takes. Seeds that fail
// normalization bounds are skipped rather than aborting the whole rebuild.
func FromSource(cfg Config, source []PhraseSeed) *Trie {
	out := New(cfg)
	for _, seed := range source {
		norm := normalize.Phrase(seed.Phrase)
		if !normalize.Valid(norm, out.maxLen) || !normalize.Printable(norm) {
			continue
		}
		out.mu.Lock()
		out.insertLockedAt(norm, seed.Count, seed.LastUpdated)
		out.mu.Unlock()
	}
	return out
}

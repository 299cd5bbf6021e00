// Package trie implements the prefix index: a trie whose internal nodes
// cache the top-k completions descending from them, so lookup(prefix) runs
// in time proportional to |prefix| rather than to the number of
// completions under it.
//
// Storage is layered on go-patricia's radix trie, extended with a side
// cache of per-prefix top-k lists — patricia exposes no node-level hook
// of its own, so the cache is keyed by the prefix string itself, one
// entry per rune-length cut of every inserted phrase. That gives one
// cached list per node on the lookup path without forking the patricia
// implementation.
package trie

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/evgenyvinnik/typeahead-core/internal/normalize"
	"github.com/evgenyvinnik/typeahead-core/pkg/phrase"
)

// ErrInvalidInput is returned by Insert/Increment for a phrase that is
// empty, unprintable, or longer than the configured maximum.
var ErrInvalidInput = errors.New("trie: invalid input")

// DefaultTopK is the construction-time K used when Config.TopK is unset.
const DefaultTopK = 10

// Config tunes a Trie at construction time.
type Config struct {
	// TopK bounds the length of every node's cached completion list.
	TopK int
	// MaxPhraseLen bounds accepted phrase length; 0 uses normalize.HardMaxLen.
	MaxPhraseLen int
	Logger       *log.Logger
}

// Trie is the prefix index. The zero value is not usable; use New.
type Trie struct {
	mu      sync.RWMutex
	storage *patricia.Trie
	topk    map[string][]phrase.Suggestion
	index   map[string]phrase.Count
	size    int64
	k       int
	maxLen  int
	log     *log.Logger
}

// New constructs an empty Trie.
func New(cfg Config) *Trie {
	k := cfg.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	maxLen := cfg.MaxPhraseLen
	if maxLen <= 0 || maxLen > normalize.HardMaxLen {
		maxLen = normalize.HardMaxLen
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Trie{
		storage: patricia.NewTrie(),
		topk:    make(map[string][]phrase.Suggestion),
		index:   make(map[string]phrase.Count),
		k:       k,
		maxLen:  maxLen,
		log:     logger,
	}
}

// TopK reports the construction-time K parameter.
func (t *Trie) TopK() int { return t.k }

// Size reports the number of distinct phrases currently indexed.
func (t *Trie) Size() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Insert sets phrase's count to exactly count, creating it if absent.
// It rejects phrases that fail normalization bounds without touching
// internal state.
func (t *Trie) Insert(raw string, count int64) error {
	norm := normalize.Phrase(raw)
	if !normalize.Valid(norm, t.maxLen) || !normalize.Printable(norm) {
		return ErrInvalidInput
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertLocked(norm, count, time.Now())
	return nil
}

// Increment is insert(phrase, get_count(phrase)+delta). delta must be a
// positive integer; negative deltas are rejected (use Rebuild instead).
func (t *Trie) Increment(raw string, delta int64) error {
	if delta <= 0 {
		return ErrInvalidInput
	}
	norm := normalize.Phrase(raw)
	if !normalize.Valid(norm, t.maxLen) || !normalize.Printable(norm) {
		return ErrInvalidInput
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := int64(0)
	if c, ok := t.index[norm]; ok {
		cur = c.Count
	}
	t.insertLocked(norm, cur+delta, time.Now())
	return nil
}

// insertLockedAt is the shared path for Insert/Increment/deserialize,
// preserving an explicit timestamp so round-tripping doesn't rewrite history.
func (t *Trie) insertLocked(norm string, count int64, at time.Time) {
	t.insertLockedAt(norm, count, at)
}

func (t *Trie) insertLockedAt(norm string, count int64, at time.Time) {
	if _, existed := t.index[norm]; !existed {
		t.size++
	}
	t.index[norm] = phrase.Count{Phrase: norm, Count: count, LastUpdated: at}
	// Insert does not overwrite an existing key's item, so a prior entry
	// (the common case for increment) is dropped first.
	key := patricia.Prefix(norm)
	if t.storage.Match(key) {
		t.storage.Delete(key)
	}
	t.storage.Insert(key, count)

	cand := phrase.FromCount(phrase.Count{Phrase: norm, Count: count, LastUpdated: at})
	runes := []rune(norm)
	for i := 0; i <= len(runes); i++ {
		t.updateTopKLocked(string(runes[:i]), cand)
	}
}

// Lookup returns up to K suggestions descending from prefix, sorted per
// the top-k ordering. An empty prefix returns the root's top-k. A prefix
// with no completions returns an empty (never nil-panicking, never error)
// slice.
func (t *Trie) Lookup(rawPrefix string) []phrase.Suggestion {
	norm := normalize.Prefix(rawPrefix)
	t.mu.RLock()
	defer t.mu.RUnlock()
	list := t.topk[norm]
	out := make([]phrase.Suggestion, len(list))
	copy(out, list)
	return out
}

// Has reports whether phrase is currently indexed.
func (t *Trie) Has(raw string) bool {
	norm := normalize.Phrase(raw)
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.index[norm]
	return ok
}

// Count returns phrase's current count and whether it is indexed at all.
func (t *Trie) Count(raw string) (int64, bool) {
	norm := normalize.Phrase(raw)
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.index[norm]
	return c.Count, ok
}

// Remove deletes phrase from the index. It re-heals every ancestor prefix
// whose top-k lost an entry by re-deriving that prefix's list from the
// live subtree, so a sibling phrase that now qualifies takes the freed
// slot instead of leaving the list short.
func (t *Trie) Remove(raw string) bool {
	norm := normalize.Phrase(raw)
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.index[norm]; !ok {
		return false
	}
	delete(t.index, norm)
	t.storage.Delete(patricia.Prefix(norm))
	t.size--

	runes := []rune(norm)
	for i := 0; i <= len(runes); i++ {
		key := string(runes[:i])
		if !containsPhrase(t.topk[key], norm) {
			continue
		}
		t.rehealLocked(key)
	}
	return true
}

// rehealLocked recomputes prefixKey's top-k by rescanning its live subtree.
// go-patricia gives us subtree visitation rather than child-node iteration,
// so "merge children's top-k" becomes "rescan the subtree" — equivalent in
// result, more expensive, acceptable since Remove is rare.
func (t *Trie) rehealLocked(prefixKey string) {
	candidates := make([]phrase.Suggestion, 0, t.k*2)
	_ = t.storage.VisitSubtree(patricia.Prefix(prefixKey), func(p patricia.Prefix, item patricia.Item) error {
		word := string(p)
		count, _ := item.(int64)
		lu := time.Time{}
		if c, ok := t.index[word]; ok {
			lu = c.LastUpdated
		}
		candidates = append(candidates, phrase.FromCount(phrase.Count{Phrase: word, Count: count, LastUpdated: lu}))
		return nil
	})
	sort.Slice(candidates, func(i, j int) bool { return phrase.Less(candidates[i], candidates[j]) })
	if len(candidates) > t.k {
		candidates = candidates[:t.k]
	}
	if len(candidates) == 0 {
		delete(t.topk, prefixKey)
		return
	}
	t.topk[prefixKey] = candidates
}

// updateTopKLocked merges one candidate into a node's top-k list: replace
// an existing entry for the same phrase, append while under capacity, or
// displace the weakest entry only when the candidate strictly out-ranks it.
func (t *Trie) updateTopKLocked(key string, cand phrase.Suggestion) {
	list := t.topk[key]

	if idx := indexOfPhrase(list, cand.Phrase); idx >= 0 {
		list[idx] = cand
	} else if len(list) < t.k {
		list = append(list, cand)
	} else if len(list) > 0 && phrase.Less(cand, list[len(list)-1]) {
		list[len(list)-1] = cand
	} else {
		return
	}

	sort.Slice(list, func(i, j int) bool { return phrase.Less(list[i], list[j]) })
	if len(list) > t.k {
		list = list[:t.k]
	}
	t.topk[key] = list
}

func indexOfPhrase(list []phrase.Suggestion, p string) int {
	for i, s := range list {
		if s.Phrase == p {
			return i
		}
	}
	return -1
}

func containsPhrase(list []phrase.Suggestion, p string) bool {
	return indexOfPhrase(list, p) >= 0
}

// Package suggestservice implements the read path: Suggest combines
// cache lookup, breaker-wrapped trie lookup, fuzzy fallback and ranking.
// It owns the atomic trie pointer a rebuild publishes into, so a lookup
// observes either the old or the new trie entirely, never a mix.
package suggestservice

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evgenyvinnik/typeahead-core/internal/normalize"
	"github.com/evgenyvinnik/typeahead-core/pkg/breaker"
	"github.com/evgenyvinnik/typeahead-core/pkg/cache"
	"github.com/evgenyvinnik/typeahead-core/pkg/fuzzy"
	"github.com/evgenyvinnik/typeahead-core/pkg/phrase"
	"github.com/evgenyvinnik/typeahead-core/pkg/ranking"
	"github.com/evgenyvinnik/typeahead-core/pkg/trie"
)

// DefaultLimit and DefaultMaxEditDistance fill Options fields left zero.
const (
	DefaultLimit           = 5
	DefaultMaxEditDistance = 2
)

// Options carries the per-call knobs of Suggest.
type Options struct {
	UserID          string
	Limit           int
	SkipCache       bool
	AllowFuzzy      bool
	MaxEditDistance int
}

// withDefaults fills zero-valued fields with their defaults.
// AllowFuzzy's zero value (false) is indistinguishable from an explicit
// opt-out, so callers construct Options via NewOptions rather than a
// literal when they want the default of true.
func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.MaxEditDistance <= 0 {
		o.MaxEditDistance = DefaultMaxEditDistance
	}
	return o
}

// NewOptions constructs Options with every default applied.
func NewOptions() Options {
	return Options{Limit: DefaultLimit, AllowFuzzy: true, MaxEditDistance: DefaultMaxEditDistance}
}

// MetricsSink records the suggestion_latency, suggestion_requests_total
// and cache_operations_total instrumentation.
type MetricsSink interface {
	ObserveSuggestion(endpoint string, cacheHit bool, status string, d time.Duration)
	ObserveCacheOp(operation, result string)
}

// Result is the response shape of the suggestions endpoint.
type Result struct {
	Suggestions   []phrase.Suggestion
	LatencyHintMs int64
	CacheHit      bool
}

// Service orchestrates the hot read path.
type Service struct {
	trieRef atomic.Pointer[trie.Trie]

	cache        *cache.Cache
	trieBreaker  *breaker.Breaker
	cacheBreaker *breaker.Breaker
	topK         int
	trending     ranking.TrendingScorer
	personal     ranking.PersonalizationStore
	now          func() time.Time
	log          *log.Logger
	metrics      MetricsSink
}

// SetMetrics wires in the suggestion and cache-operation instrumentation.
// m may be nil to leave instrumentation disabled.
func (s *Service) SetMetrics(m MetricsSink) {
	s.metrics = m
}

// New constructs a Service over an initial trie. trending/personal may be
// nil (ranking then omits those adjustments); cacheBreaker, when non-nil,
// bounds every cache get/set.
func New(initial *trie.Trie, topK int, c *cache.Cache, trieBreaker, cacheBreaker *breaker.Breaker, trending ranking.TrendingScorer, personal ranking.PersonalizationStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		cache:        c,
		trieBreaker:  trieBreaker,
		cacheBreaker: cacheBreaker,
		topK:         topK,
		trending:     trending,
		personal:     personal,
		now:          time.Now,
		log:          logger,
	}
	s.trieRef.Store(initial)
	return s
}

// Swap atomically replaces the live trie with one constructed off-line,
// the publish step of a rebuild.
func (s *Service) Swap(next *trie.Trie) {
	s.trieRef.Store(next)
}

// currentTrie is the single uncontended-read acquire of the trie
// reference the hot path performs.
func (s *Service) currentTrie() *trie.Trie {
	return s.trieRef.Load()
}

// Suggest answers a prefix with up to opts.Limit ranked completions:
// cache, then breaker-wrapped trie lookup, then fuzzy fallback when the
// exact results come up short.
func (s *Service) Suggest(ctx context.Context, rawPrefix string, opts Options) Result {
	start := s.now()
	opts = opts.withDefaults()
	if opts.Limit > s.topK {
		opts.Limit = s.topK
	}

	norm := normalize.Prefix(rawPrefix)
	if norm == "" {
		return s.suggestPopular(ctx, opts, start)
	}

	if !opts.SkipCache {
		if cached, ok := s.cacheGet(ctx, norm); ok {
			s.observeCacheOp("get", "hit")
			ranked := ranking.Rank(cached, ranking.Options{UserID: opts.UserID, Prefix: norm}, s.trending, s.personal, s.now())
			return s.finalize(ctx, "suggestions", norm, ranked, opts, true, start)
		}
		s.observeCacheOp("get", "miss")
	}

	raw := s.lookupThroughBreaker(ctx, norm)
	s.cacheSet(ctx, norm, raw)
	s.observeCacheOp("set", "ok")

	ranked := ranking.Rank(raw, ranking.Options{UserID: opts.UserID, Prefix: norm}, s.trending, s.personal, s.now())
	return s.finalize(ctx, "suggestions", norm, ranked, opts, false, start)
}

// suggestPopular answers empty-prefix requests with the root's top-k,
// cached under a fixed key for the usual TTL like any other prefix lookup
// (cache.Key("") resolves to that fixed key).
func (s *Service) suggestPopular(ctx context.Context, opts Options, start time.Time) Result {
	const popularKey = ""

	if !opts.SkipCache {
		if cached, ok := s.cacheGet(ctx, popularKey); ok {
			s.observeCacheOp("get", "hit")
			ranked := ranking.Rank(cached, ranking.Options{UserID: opts.UserID, Prefix: ""}, s.trending, s.personal, s.now())
			if len(ranked) > opts.Limit {
				ranked = ranked[:opts.Limit]
			}
			s.observeSuggestion("suggestions", true, start)
			return Result{Suggestions: ranked, LatencyHintMs: s.elapsedMs(start), CacheHit: true}
		}
		s.observeCacheOp("get", "miss")
	}

	raw := s.currentTrie().Lookup(popularKey)
	s.cacheSet(ctx, popularKey, raw)
	s.observeCacheOp("set", "ok")

	ranked := ranking.Rank(raw, ranking.Options{UserID: opts.UserID, Prefix: ""}, s.trending, s.personal, s.now())
	if len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	s.observeSuggestion("suggestions", false, start)
	return Result{Suggestions: ranked, LatencyHintMs: s.elapsedMs(start), CacheHit: false}
}

// cachedLookup carries a cache get's pair through the breaker's
// any-typed return.
type cachedLookup struct {
	list []phrase.Suggestion
	ok   bool
}

// cacheGet reads the suggestion cache through the redis_cache breaker,
// so a slow or failing cache backend costs at most the breaker's timeout;
// on breaker open or error the lookup is treated as a miss.
func (s *Service) cacheGet(ctx context.Context, prefix string) ([]phrase.Suggestion, bool) {
	if s.cacheBreaker == nil {
		return s.cache.Get(prefix)
	}
	result, err := s.cacheBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		list, ok := s.cache.Get(prefix)
		return cachedLookup{list: list, ok: ok}, nil
	}, nil)
	if err != nil {
		return nil, false
	}
	r := result.(cachedLookup)
	return r.list, r.ok
}

// cacheSet writes through the same breaker; a failed write only costs
// the next request a miss.
func (s *Service) cacheSet(ctx context.Context, prefix string, list []phrase.Suggestion) {
	if s.cacheBreaker == nil {
		s.cache.Set(prefix, list)
		return
	}
	_, _ = s.cacheBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		s.cache.Set(prefix, list)
		return nil, nil
	}, nil)
}

// lookupThroughBreaker calls trie.Lookup(prefix) wrapped by the
// suggestion_service breaker; the fallback returns an empty list so the
// read path degrades rather than erroring.
func (s *Service) lookupThroughBreaker(ctx context.Context, prefix string) []phrase.Suggestion {
	if s.trieBreaker == nil {
		return s.currentTrie().Lookup(prefix)
	}
	result, err := s.trieBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return s.currentTrie().Lookup(prefix), nil
	}, func(ctx context.Context) (any, error) {
		return []phrase.Suggestion{}, nil // _popular_fallback: empty list
	})
	if err != nil {
		s.log.Warnf("trie lookup breaker returned no result for %q: %v", prefix, err)
		return []phrase.Suggestion{}
	}
	return result.([]phrase.Suggestion)
}

// finalize applies fuzzy expansion when the ranked result is short of
// limit, then truncates.
func (s *Service) finalize(ctx context.Context, endpoint, prefix string, ranked []phrase.Suggestion, opts Options, cacheHit bool, start time.Time) Result {
	if len(ranked) < opts.Limit && opts.AllowFuzzy {
		ranked = s.expandFuzzy(ctx, prefix, ranked, opts)
	}
	if len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	s.observeSuggestion(endpoint, cacheHit, start)
	return Result{Suggestions: ranked, LatencyHintMs: s.elapsedMs(start), CacheHit: cacheHit}
}

func (s *Service) observeSuggestion(endpoint string, cacheHit bool, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveSuggestion(endpoint, cacheHit, "ok", s.now().Sub(start))
	}
}

func (s *Service) observeCacheOp(operation, result string) {
	if s.metrics != nil {
		s.metrics.ObserveCacheOp(operation, result)
	}
}

// expandFuzzy generates single-edit variations of prefix, looks each up,
// scores by bounded Levenshtein distance, and merges with exact matches
// (exact wins on duplicates), sorted exact-before-fuzzy then by score desc.
func (s *Service) expandFuzzy(ctx context.Context, prefix string, exact []phrase.Suggestion, opts Options) []phrase.Suggestion {
	seen := make(map[string]bool, len(exact))
	for _, e := range exact {
		seen[e.Phrase] = true
	}

	var fuzzyMatches []phrase.Suggestion
	for _, variation := range fuzzy.Variations(prefix) {
		for _, cand := range s.lookupThroughBreaker(ctx, variation) {
			if seen[cand.Phrase] {
				continue
			}
			bounded := fuzzy.BoundedCandidate(prefix, cand.Phrase, opts.MaxEditDistance)
			dist := fuzzy.Distance(prefix, bounded)
			if dist <= 0 || dist > opts.MaxEditDistance {
				continue
			}
			seen[cand.Phrase] = true
			fc := cand
			fc.IsFuzzy = true
			fc.EditDistance = dist
			fc.FuzzyPenalty = 0.2 * float64(dist)
			fuzzyMatches = append(fuzzyMatches, fc)
		}
	}

	if len(fuzzyMatches) == 0 {
		return exact
	}
	ranked := ranking.Rank(fuzzyMatches, ranking.Options{UserID: opts.UserID, Prefix: prefix}, s.trending, s.personal, s.now())
	merged := append(append([]phrase.Suggestion{}, exact...), ranked...)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].IsFuzzy != merged[j].IsFuzzy {
			return !merged[i].IsFuzzy
		}
		return merged[i].Score > merged[j].Score
	})
	return merged
}

func (s *Service) elapsedMs(start time.Time) int64 {
	return s.now().Sub(start).Milliseconds()
}

// Stats feeds the stats admin endpoint.
func (s *Service) Stats() trie.Stats {
	return s.currentTrie().Stats()
}

// ClearCache drops every cached suggestion list, for the clear_cache
// admin endpoint.
func (s *Service) ClearCache() {
	s.cache.InvalidateAll()
}

// ClearCachePattern invalidates every cached entry whose prefix starts
// with pattern, the admin pattern-invalidation form of clear_cache. An
// empty pattern clears everything.
func (s *Service) ClearCachePattern(pattern string) {
	s.cache.InvalidatePattern(normalize.Prefix(pattern))
}

package suggestservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evgenyvinnik/typeahead-core/pkg/breaker"
	"github.com/evgenyvinnik/typeahead-core/pkg/cache"
	"github.com/evgenyvinnik/typeahead-core/pkg/trie"
)

func buildTrie(t *testing.T, k int, phrases map[string]int64) *trie.Trie {
	t.Helper()
	tr := trie.New(trie.Config{TopK: k})
	for p, c := range phrases {
		for i := int64(0); i < c; i++ {
			if err := tr.Increment(p, 1); err != nil {
				t.Fatalf("Increment(%q): %v", p, err)
			}
		}
	}
	return tr
}

func TestSuggestReturnsExactMatchesRankedByCount(t *testing.T) {
	tr := buildTrie(t, 5, map[string]int64{"search engine": 10, "search bar": 5})
	svc := New(tr, 5, cache.New(time.Minute), nil, nil, nil, nil, nil)

	res := svc.Suggest(context.Background(), "sea", NewOptions())
	if len(res.Suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d: %+v", len(res.Suggestions), res.Suggestions)
	}
	if res.Suggestions[0].Phrase != "search engine" {
		t.Fatalf("expected search engine ranked first, got %q", res.Suggestions[0].Phrase)
	}
}

func TestSuggestEmptyPrefixReturnsPopular(t *testing.T) {
	tr := buildTrie(t, 5, map[string]int64{"alpha": 1, "beta": 2})
	svc := New(tr, 5, cache.New(time.Minute), nil, nil, nil, nil, nil)

	res := svc.Suggest(context.Background(), "", NewOptions())
	if len(res.Suggestions) == 0 {
		t.Fatalf("expected popular fallback results for empty prefix")
	}
}

func TestSuggestUsesCacheOnSecondCall(t *testing.T) {
	tr := buildTrie(t, 5, map[string]int64{"search engine": 10})
	c := cache.New(time.Minute)
	svc := New(tr, 5, c, nil, nil, nil, nil, nil)

	first := svc.Suggest(context.Background(), "sea", NewOptions())
	if first.CacheHit {
		t.Fatalf("first call should be a cache miss")
	}
	second := svc.Suggest(context.Background(), "sea", NewOptions())
	if !second.CacheHit {
		t.Fatalf("second call should be a cache hit")
	}
}

func TestSuggestSkipCacheBypassesCachedEntry(t *testing.T) {
	tr := buildTrie(t, 5, map[string]int64{"search engine": 10})
	c := cache.New(time.Minute)
	svc := New(tr, 5, c, nil, nil, nil, nil, nil)

	svc.Suggest(context.Background(), "sea", NewOptions())
	opts := NewOptions()
	opts.SkipCache = true
	res := svc.Suggest(context.Background(), "sea", opts)
	if res.CacheHit {
		t.Fatalf("SkipCache=true must not report a cache hit")
	}
}

func TestSuggestFallsBackToFuzzyWhenExactIsShortOfLimit(t *testing.T) {
	tr := buildTrie(t, 5, map[string]int64{"search": 20})
	svc := New(tr, 5, cache.New(time.Minute), nil, nil, nil, nil, nil)

	opts := NewOptions()
	opts.Limit = 1
	res := svc.Suggest(context.Background(), "serch", opts)
	if len(res.Suggestions) != 1 {
		t.Fatalf("expected 1 suggestion via fuzzy fallback, got %d", len(res.Suggestions))
	}
	if res.Suggestions[0].Phrase != "search" {
		t.Fatalf("expected fuzzy match 'search', got %q", res.Suggestions[0].Phrase)
	}
	if !res.Suggestions[0].IsFuzzy {
		t.Fatalf("expected result to be marked fuzzy")
	}
}

func TestSuggestSwapReplacesLiveTrieAtomically(t *testing.T) {
	trA := buildTrie(t, 5, map[string]int64{"alpha": 1})
	trB := buildTrie(t, 5, map[string]int64{"beta": 1})
	svc := New(trA, 5, cache.New(time.Minute), nil, nil, nil, nil, nil)

	// SkipCache throughout: a rebuild invalidates the cache separately, and
	// here only the trie reference itself is under test.
	opts := NewOptions()
	opts.SkipCache = true

	before := svc.Suggest(context.Background(), "alp", opts)
	if len(before.Suggestions) != 1 {
		t.Fatalf("expected alpha to resolve before swap")
	}

	svc.Swap(trB)
	afterOld := svc.Suggest(context.Background(), "alp", opts)
	if len(afterOld.Suggestions) != 0 {
		t.Fatalf("expected alpha to be gone after swap, got %+v", afterOld.Suggestions)
	}
	afterNew := svc.Suggest(context.Background(), "bet", opts)
	if len(afterNew.Suggestions) != 1 || afterNew.Suggestions[0].Phrase != "beta" {
		t.Fatalf("expected beta to resolve after swap, got %+v", afterNew.Suggestions)
	}
}

// TestSuggestBreakerFallsBackToEmptyWhenOpen exercises the
// suggestion_service breaker's fallback path independent of the trie
// lookup itself, by tripping the breaker open first.
func TestSuggestBreakerFallsBackToEmptyWhenOpen(t *testing.T) {
	tr := buildTrie(t, 5, map[string]int64{"search engine": 10})
	b := breaker.New(breaker.Config{
		Name:              "suggestion_service",
		Timeout:           time.Second,
		ErrorThresholdPct: 50,
		VolumeThreshold:   1,
		ResetTimeout:      time.Hour,
	}, nil)

	svc := New(tr, 5, cache.New(time.Minute), b, nil, nil, nil, nil)

	// Force the breaker open by driving a failing call directly.
	failCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Execute(failCtx, func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	}, nil)
	if err == nil {
		t.Fatalf("expected the forced failing call to return an error")
	}

	opts := NewOptions()
	opts.SkipCache = true
	res := svc.Suggest(context.Background(), "sea", opts)
	if len(res.Suggestions) != 0 {
		t.Fatalf("expected empty popular fallback while breaker is open, got %+v", res.Suggestions)
	}
}

func TestStatsReflectsLiveTrie(t *testing.T) {
	tr := buildTrie(t, 5, map[string]int64{"alpha": 1, "beta": 1})
	svc := New(tr, 5, cache.New(time.Minute), nil, nil, nil, nil, nil)

	st := svc.Stats()
	if st.PhraseCount != 2 {
		t.Fatalf("expected PhraseCount 2, got %d", st.PhraseCount)
	}
}

package cache

import (
	"testing"
	"time"

	"github.com/evgenyvinnik/typeahead-core/pkg/phrase"
)

func TestCacheGetSetAndTTLExpiry(t *testing.T) {
	c := New(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	want := []phrase.Suggestion{{Phrase: "search engine", Count: 100}}
	c.Set("se", want)

	got, ok := c.Get("se")
	if !ok || len(got) != 1 || got[0].Phrase != "search engine" {
		t.Fatalf("Get after Set = %+v, %v", got, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("se"); ok {
		t.Fatalf("entry should have expired")
	}
}

func TestCacheInvalidateAllAndPattern(t *testing.T) {
	c := New(time.Minute)
	c.Set("se", []phrase.Suggestion{{Phrase: "search engine"}})
	c.Set("sea", []phrase.Suggestion{{Phrase: "sea turtle"}})
	c.Set("b", []phrase.Suggestion{{Phrase: "banana"}})

	c.InvalidatePattern("se")
	if _, ok := c.Get("se"); ok {
		t.Fatalf("se should have been invalidated by pattern")
	}
	if _, ok := c.Get("sea"); ok {
		t.Fatalf("sea should have been invalidated by pattern (prefix match)")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("b should survive an unrelated pattern invalidation")
	}

	c.InvalidateAll()
	if _, ok := c.Get("b"); ok {
		t.Fatalf("InvalidateAll should drop every entry")
	}
}

func TestCacheEmptyPrefixUsesFixedKey(t *testing.T) {
	c := New(time.Minute)
	c.Set("", []phrase.Suggestion{{Phrase: "popular"}})
	got, ok := c.Get("")
	if !ok || got[0].Phrase != "popular" {
		t.Fatalf("empty-prefix cache round trip failed: %+v, %v", got, ok)
	}
}

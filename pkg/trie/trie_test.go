package trie

import (
	"bytes"
	"testing"
	"time"
)

func mustInsert(t *testing.T, tr *Trie, phrase string, count int64) {
	t.Helper()
	if err := tr.Insert(phrase, count); err != nil {
		t.Fatalf("Insert(%q, %d): %v", phrase, count, err)
	}
}

func assertPhrases(t *testing.T, got []string, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestLookupWorkedExampleK2(t *testing.T) {
	tr := New(Config{TopK: 2})
	mustInsert(t, tr, "search engine", 100)
	mustInsert(t, tr, "search bar", 50)
	mustInsert(t, tr, "sea turtle", 10)

	cases := []struct {
		prefix string
		want   []string
	}{
		{"s", []string{"search engine", "search bar"}},
		{"se", []string{"search engine", "search bar"}},
		{"sea", []string{"search engine", "search bar"}},
		{"sea ", []string{"sea turtle"}},
	}
	for _, tc := range cases {
		t.Run(tc.prefix, func(t *testing.T) {
			got := tr.Lookup(tc.prefix)
			gotPhrases := make([]string, len(got))
			for i, s := range got {
				gotPhrases[i] = s.Phrase
			}
			assertPhrases(t, gotPhrases, tc.want)
		})
	}
}

// 60 increments of "sea turtle" push "search bar" out of top-2.
func TestIncrementDisplacesLowerRankedSibling(t *testing.T) {
	tr := New(Config{TopK: 2})
	mustInsert(t, tr, "search engine", 100)
	mustInsert(t, tr, "search bar", 50)
	mustInsert(t, tr, "sea turtle", 10)

	for i := 0; i < 60; i++ {
		if err := tr.Increment("sea turtle", 1); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}

	count, ok := tr.Count("sea turtle")
	if !ok || count != 70 {
		t.Fatalf("sea turtle count = %d, %v; want 70, true", count, ok)
	}

	got := tr.Lookup("s")
	if len(got) != 2 {
		t.Fatalf("lookup(s) length = %d, want 2: %+v", len(got), got)
	}
	if got[0].Phrase != "search engine" || got[0].Count != 100 {
		t.Fatalf("lookup(s)[0] = %+v, want search engine/100", got[0])
	}
	if got[1].Phrase != "sea turtle" || got[1].Count != 70 {
		t.Fatalf("lookup(s)[1] = %+v, want sea turtle/70", got[1])
	}
	for _, s := range got {
		if s.Phrase == "search bar" {
			t.Fatalf("search bar should have dropped out of lookup(s): %+v", got)
		}
	}
}

func TestLookupEmptyPrefixReturnsRootTopK(t *testing.T) {
	tr := New(Config{TopK: 3})
	mustInsert(t, tr, "alpha", 3)
	mustInsert(t, tr, "beta", 2)
	mustInsert(t, tr, "gamma", 1)

	got := tr.Lookup("")
	if len(got) != 3 {
		t.Fatalf("lookup(\"\") length = %d, want 3", len(got))
	}
	if got[0].Phrase != "alpha" {
		t.Fatalf("lookup(\"\")[0] = %q, want alpha", got[0].Phrase)
	}
}

func TestLookupNoCompletionsReturnsEmptyNotError(t *testing.T) {
	tr := New(Config{})
	mustInsert(t, tr, "hello", 1)

	got := tr.Lookup("zzz")
	if got == nil {
		t.Fatalf("Lookup must never return nil")
	}
	if len(got) != 0 {
		t.Fatalf("Lookup(zzz) = %+v, want empty", got)
	}
}

func TestInsertBoundaryLength(t *testing.T) {
	tr := New(Config{MaxPhraseLen: 5})

	ok := make([]rune, 5)
	for i := range ok {
		ok[i] = 'a'
	}
	if err := tr.Insert(string(ok), 1); err != nil {
		t.Fatalf("Insert at exactly max_phrase_len should succeed: %v", err)
	}

	tooLong := make([]rune, 6)
	for i := range tooLong {
		tooLong[i] = 'a'
	}
	if err := tr.Insert(string(tooLong), 1); err != ErrInvalidInput {
		t.Fatalf("Insert past max_phrase_len should be rejected, got %v", err)
	}
}

func TestRemoveAbsentPhraseIsNoop(t *testing.T) {
	tr := New(Config{})
	if tr.Remove("nothing here") {
		t.Fatalf("Remove of an absent phrase must return false")
	}
}

func TestRemoveRehealsAncestorTopK(t *testing.T) {
	tr := New(Config{TopK: 2})
	mustInsert(t, tr, "search engine", 100)
	mustInsert(t, tr, "search bar", 50)
	mustInsert(t, tr, "search history", 40)

	if !tr.Remove("search bar") {
		t.Fatalf("Remove(search bar) should report true")
	}

	got := tr.Lookup("s")
	if len(got) != 2 {
		t.Fatalf("lookup(s) length = %d, want 2 after remove+reheal: %+v", len(got), got)
	}
	if got[1].Phrase != "search history" {
		t.Fatalf("lookup(s)[1] = %q, want search history to have been healed in", got[1].Phrase)
	}
	if tr.Has("search bar") {
		t.Fatalf("search bar should no longer be indexed")
	}
}

func TestInvalidInputLeavesStateUntouched(t *testing.T) {
	tr := New(Config{})
	mustInsert(t, tr, "valid phrase", 1)
	sizeBefore := tr.Size()

	if err := tr.Insert("a", 1); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for too-short phrase, got %v", err)
	}
	if err := tr.Increment("valid phrase", -1); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for negative delta, got %v", err)
	}
	if tr.Size() != sizeBefore {
		t.Fatalf("rejected inputs must not change size: before=%d after=%d", sizeBefore, tr.Size())
	}
}

func TestStatsReflectsIndex(t *testing.T) {
	tr := New(Config{TopK: 5})
	mustInsert(t, tr, "one", 1)
	mustInsert(t, tr, "two", 2)
	mustInsert(t, tr, "three", 3)

	s := tr.Stats()
	if s.PhraseCount != 3 {
		t.Fatalf("phrase_count = %d, want 3", s.PhraseCount)
	}
	if s.TopK != 5 {
		t.Fatalf("top_k = %d, want 5", s.TopK)
	}
	if s.NodeCount == 0 {
		t.Fatalf("node_count should be non-zero once phrases are indexed")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	tr := New(Config{TopK: 2})
	mustInsert(t, tr, "search engine", 100)
	mustInsert(t, tr, "search bar", 50)
	mustInsert(t, tr, "sea turtle", 10)

	var buf bytes.Buffer
	if err := tr.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	restored, err := Deserialize(&buf, Config{TopK: 2})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	for _, prefix := range []string{"s", "se", "sea", "sea "} {
		want := tr.Lookup(prefix)
		got := restored.Lookup(prefix)
		if len(want) != len(got) {
			t.Fatalf("prefix %q: lengths differ, want %+v got %+v", prefix, want, got)
		}
		for i := range want {
			if want[i].Phrase != got[i].Phrase || want[i].Count != got[i].Count {
				t.Fatalf("prefix %q index %d: want %+v got %+v", prefix, i, want[i], got[i])
			}
		}
	}
}

func TestFromSourceBuildsEquivalentTrie(t *testing.T) {
	now := time.Now()
	seeds := []PhraseSeed{
		{Phrase: "search engine", Count: 100, LastUpdated: now},
		{Phrase: "search bar", Count: 50, LastUpdated: now},
		{Phrase: "sea turtle", Count: 10, LastUpdated: now},
	}
	tr := FromSource(Config{TopK: 2}, seeds)

	got := tr.Lookup("s")
	if len(got) != 2 || got[0].Phrase != "search engine" || got[1].Phrase != "search bar" {
		t.Fatalf("lookup(s) = %+v, want search engine then search bar", got)
	}
}

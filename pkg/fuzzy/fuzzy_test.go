package fuzzy

import (
	"fmt"
	"testing"
)

func TestLevenshteinDistance(t *testing.T) {
	testCases := []struct {
		a        string
		b        string
		expected int
	}{
		{"", "", 0},
		{"a", "", 1},
		{"", "a", 1},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"book", "back", 2},
		{"book", "books", 1},
		{"serch", "search", 1},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s→%s", tc.a, tc.b), func(t *testing.T) {
			dist := Distance(tc.a, tc.b)
			if dist != tc.expected {
				t.Errorf("Expected distance %d, got %d", tc.expected, dist)
			}
		})
	}
}

func TestVariationsIncludesDeletionSubstitutionInsertion(t *testing.T) {
	variants := Variations("ab")
	set := make(map[string]bool, len(variants))
	for _, v := range variants {
		set[v] = true
	}

	if !set["b"] { // deletion of 'a'
		t.Errorf("expected deletion variant 'b'")
	}
	if !set["a"] { // deletion of 'b'
		t.Errorf("expected deletion variant 'a'")
	}
	if !set["zb"] { // substitution at position 0
		t.Errorf("expected substitution variant 'zb'")
	}
	if !set["abz"] { // insertion at end
		t.Errorf("expected insertion variant 'abz'")
	}
	if set["ab"] {
		t.Errorf("substitution must not regenerate the original string")
	}
}

// "serch" has no exact completion, but its variation "search" is within
// distance 1, so fuzzy expansion can recover it.
func TestVariationSearchIsWithinDistanceOneOfSerch(t *testing.T) {
	variants := Variations("serch")
	found := false
	for _, v := range variants {
		if v == "search" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected 'search' to be a single-edit variation of 'serch'")
	}
	if d := Distance("serch", "search"); d != 1 {
		t.Fatalf("Levenshtein distance(serch, search) = %d, want 1", d)
	}
}

func TestBoundedCandidateTruncatesToPrefixPlusMaxEditDistance(t *testing.T) {
	got := BoundedCandidate("se", "search engine extended", 2)
	if got != "sear" {
		t.Fatalf("BoundedCandidate = %q, want %q", got, "sear")
	}
	short := BoundedCandidate("search", "sea", 2)
	if short != "sea" {
		t.Fatalf("BoundedCandidate should not pad short candidates, got %q", short)
	}
}

package ranking

import (
	"testing"
	"time"

	"github.com/evgenyvinnik/typeahead-core/pkg/phrase"
)

type fakeTrending map[string]float64

func (f fakeTrending) TrendingScore(p string) float64 { return f[p] }

type fakePersonal map[string]map[string]float64

func (f fakePersonal) Affinity(userID, p string) (float64, bool) {
	u, ok := f[userID]
	if !ok {
		return 0, false
	}
	v, ok := u[p]
	return v, ok
}

// A fuzzy penalty of 0.2·distance is applied multiplicatively to count,
// so a distance-1 fuzzy match scores count*0.8 when no other adjustment
// moves the score.
func TestFuzzyPenaltyAppliedMultiplicatively(t *testing.T) {
	now := time.Now()
	candidates := []phrase.Suggestion{
		{Phrase: "search engine", Count: 100, LastUpdated: now.Add(-30 * 24 * time.Hour), IsFuzzy: true, EditDistance: 1, FuzzyPenalty: 0.2},
		{Phrase: "search bar", Count: 50, LastUpdated: now.Add(-30 * 24 * time.Hour), IsFuzzy: true, EditDistance: 1, FuzzyPenalty: 0.2},
	}

	ranked := Rank(candidates, Options{}, nil, nil, now)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked results, got %d", len(ranked))
	}
	if ranked[0].Phrase != "search engine" {
		t.Fatalf("expected search engine to rank first, got %+v", ranked[0].Phrase)
	}
	// With recency decayed to ~0 at 30 days and tau=7 days, score ≈ count*0.8.
	want := 100.0 * 0.8
	if diff := ranked[0].Score - want; diff > 2 || diff < -2 {
		t.Fatalf("ranked[0].Score = %v, want ≈ %v", ranked[0].Score, want)
	}
}

func TestExactAlwaysRanksBeforeFuzzy(t *testing.T) {
	now := time.Now()
	candidates := []phrase.Suggestion{
		{Phrase: "zzz exact but low count", Count: 1, LastUpdated: now},
		{Phrase: "aaa fuzzy high count", Count: 1000, LastUpdated: now, IsFuzzy: true, FuzzyPenalty: 0.2},
	}
	ranked := Rank(candidates, Options{}, nil, nil, now)
	if ranked[0].IsFuzzy {
		t.Fatalf("exact match must rank ahead of fuzzy regardless of score: %+v", ranked)
	}
}

func TestTrendingBoostIncreasesScore(t *testing.T) {
	now := time.Now()
	candidates := []phrase.Suggestion{{Phrase: "p", Count: 10, LastUpdated: now}}

	withoutTrend := Rank(candidates, Options{}, nil, nil, now)
	withTrend := Rank(candidates, Options{}, fakeTrending{"p": 50}, nil, now)

	if withTrend[0].Score <= withoutTrend[0].Score {
		t.Fatalf("trending boost should raise score: without=%v with=%v", withoutTrend[0].Score, withTrend[0].Score)
	}
}

func TestPersonalizationRequiresUserID(t *testing.T) {
	now := time.Now()
	candidates := []phrase.Suggestion{{Phrase: "p", Count: 10, LastUpdated: now}}
	store := fakePersonal{"user-1": {"p": 1.0}}

	noUser := Rank(candidates, Options{}, nil, store, now)
	withUser := Rank(candidates, Options{UserID: "user-1"}, nil, store, now)

	if withUser[0].Score <= noUser[0].Score {
		t.Fatalf("personalization should raise score when user_id given: no-user=%v with-user=%v", noUser[0].Score, withUser[0].Score)
	}
}

func TestMissingPersonalizationDataTreatedAsZero(t *testing.T) {
	now := time.Now()
	// LastUpdated far enough in the past that the recency term is negligible,
	// isolating the personalization contribution.
	candidates := []phrase.Suggestion{{Phrase: "unknown phrase", Count: 10, LastUpdated: now.Add(-365 * 24 * time.Hour)}}
	store := fakePersonal{"user-1": {}}

	ranked := Rank(candidates, Options{UserID: "user-1"}, nil, store, now)
	if diff := ranked[0].Score - 10; diff > 0.01 || diff < -0.01 {
		t.Fatalf("missing affinity data should contribute 0, got score %v", ranked[0].Score)
	}
}

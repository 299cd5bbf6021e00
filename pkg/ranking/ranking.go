// Package ranking scores and orders suggestion candidates: recency,
// trending, personalization and fuzzy-penalty adjustments layered on top
// of base popularity (count).
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/evgenyvinnik/typeahead-core/pkg/phrase"
)

// TauRecency is the recency decay time constant.
const TauRecency = 7 * 24 * time.Hour

// TrendingWeight scales the log-dampened trending boost.
const TrendingWeight = 5.0

// TrendingScorer supplies a phrase's current trending score. Missing
// data (zero) is treated as not trending.
type TrendingScorer interface {
	TrendingScore(phrase string) float64
}

// PersonalizationStore supplies a user's affinity for a phrase in
// [0, 1]. Missing user data is treated as zero affinity.
type PersonalizationStore interface {
	Affinity(userID, phrase string) (float64, bool)
}

// Options carries the per-call ranking context.
type Options struct {
	UserID string
	Prefix string
}

// Rank is a pure scoring function over its inputs. It never fails:
// trending/personalization store unavailability (nil store) simply omits
// that adjustment. now is injected for determinism in tests.
func Rank(candidates []phrase.Suggestion, opts Options, trending TrendingScorer, personal PersonalizationStore, now time.Time) []phrase.Suggestion {
	if len(candidates) == 0 {
		return candidates
	}

	p95 := percentile95Count(candidates)
	recencyWeight := 0.25 * p95
	personalWeight := 2 * p95

	out := make([]phrase.Suggestion, len(candidates))
	copy(out, candidates)

	for i := range out {
		c := &out[i]
		score := float64(c.Count)

		age := now.Sub(c.LastUpdated)
		if age < 0 {
			age = 0
		}
		score += recencyWeight * math.Exp(-age.Seconds()/TauRecency.Seconds())

		if trending != nil {
			if ts := trending.TrendingScore(c.Phrase); ts > 0 {
				score += TrendingWeight * math.Log(1+ts)
			}
		}

		if opts.UserID != "" && personal != nil {
			if affinity, ok := personal.Affinity(opts.UserID, c.Phrase); ok {
				score += personalWeight * affinity
			}
		}

		if c.IsFuzzy {
			score -= float64(c.Count) * c.FuzzyPenalty
		}

		c.Score = score
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsFuzzy != b.IsFuzzy {
			return !a.IsFuzzy // exact before fuzzy
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.LastUpdated.Equal(b.LastUpdated) {
			return a.LastUpdated.After(b.LastUpdated)
		}
		return a.Phrase < b.Phrase
	})

	return out
}

// percentile95Count computes the 95th percentile of candidate counts,
// used to normalize the recency and personalization boosts so neither
// can dominate raw popularity.
func percentile95Count(candidates []phrase.Suggestion) float64 {
	counts := make([]int64, len(candidates))
	for i, c := range candidates {
		counts[i] = c.Count
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i] < counts[j] })

	if len(counts) == 1 {
		return float64(counts[0])
	}
	rank := 0.95 * float64(len(counts)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return float64(counts[lo])
	}
	frac := rank - float64(lo)
	return float64(counts[lo])*(1-frac) + float64(counts[hi])*frac
}

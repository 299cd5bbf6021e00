// Package fuzzy implements the suggestion service's fuzzy expansion:
// single-edit variations of a prefix, and Levenshtein distance to score
// candidate matches against the original prefix.
package fuzzy

// alphabet is the substitution/insertion character set used for
// variation generation.
const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789 "

// Variations generates every single-edit variation of prefix: a deletion
// at each position, a substitution at each position over alphabet, and an
// insertion of each alphabet character at each position (including
// appended at the end, so "serch" yields "search" among its variants).
func Variations(prefix string) []string {
	runes := []rune(prefix)
	n := len(runes)
	out := make([]string, 0, n+n*len(alphabet)+(n+1)*len(alphabet))

	for i := 0; i < n; i++ {
		variant := make([]rune, 0, n-1)
		variant = append(variant, runes[:i]...)
		variant = append(variant, runes[i+1:]...)
		out = append(out, string(variant))
	}

	for i := 0; i < n; i++ {
		for _, c := range alphabet {
			if runes[i] == c {
				continue
			}
			variant := make([]rune, n)
			copy(variant, runes)
			variant[i] = c
			out = append(out, string(variant))
		}
	}

	for i := 0; i <= n; i++ {
		for _, c := range alphabet {
			variant := make([]rune, 0, n+1)
			variant = append(variant, runes[:i]...)
			variant = append(variant, c)
			variant = append(variant, runes[i:]...)
			out = append(out, string(variant))
		}
	}

	return out
}

// Distance computes the Levenshtein edit distance between a and b.
func Distance(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	la, lb := len(ar), len(br)

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			cur[j] = min3(del, ins, sub)
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// BoundedCandidate restricts candidate to its first
// |prefix|+maxEditDistance characters before distance is computed, so a
// long completion is scored against the typed prefix rather than its
// full length.
func BoundedCandidate(prefix, candidate string, maxEditDistance int) string {
	limit := len([]rune(prefix)) + maxEditDistance
	runes := []rune(candidate)
	if len(runes) <= limit {
		return candidate
	}
	return string(runes[:limit])
}

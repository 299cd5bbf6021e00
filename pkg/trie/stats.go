package trie

// Stats summarizes the index for the stats admin endpoint.
type Stats struct {
	PhraseCount int64
	NodeCount   int
	MaxDepth    int
	TopK        int
}

// Stats computes phrase_count, node_count and max_depth by inspecting the
// cached prefix set directly rather than a fresh DFS: every distinct
// prefix we maintain a top-k list for is exactly one node on some lookup
// path, so no separate tree walk is needed.
func (t *Trie) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	maxDepth := 0
	for key := range t.topk {
		if n := len([]rune(key)); n > maxDepth {
			maxDepth = n
		}
	}
	return Stats{
		PhraseCount: t.size,
		NodeCount:   len(t.topk),
		MaxDepth:    maxDepth,
		TopK:        t.k,
	}
}

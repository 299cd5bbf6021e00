// Package cli implements an interactive shell for exercising the
// suggestion service directly: a bufio line loop over stdin, one command
// per line — a prefix to suggest on, "log <query>", or "stats".
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/evgenyvinnik/typeahead-core/pkg/aggregator"
	"github.com/evgenyvinnik/typeahead-core/pkg/suggestservice"
)

// Handler processes interactive commands against an in-process service,
// for manual verification of ranking and fuzzy fallback.
type Handler struct {
	suggest *suggestservice.Service
	agg     *aggregator.Aggregator
	limit   int
	noFuzzy bool

	requestCount int
}

// NewHandler constructs a Handler over suggest and agg. agg may be nil,
// in which case "log" commands are rejected.
func NewHandler(suggest *suggestservice.Service, agg *aggregator.Aggregator, limit int, noFuzzy bool) *Handler {
	if limit <= 0 {
		limit = suggestservice.DefaultLimit
	}
	return &Handler{suggest: suggest, agg: agg, limit: limit, noFuzzy: noFuzzy}
}

// Start begins the interface loop: type a prefix to see suggestions,
// "log <query>" to feed the aggregator, "stats" to print index stats,
// Ctrl+C or EOF to exit.
func (h *Handler) Start() error {
	log.Print("typeahead-cli [interactive]")
	log.Print("type a prefix for suggestions, \"log <query>\" to record a query, \"stats\" for index stats:")
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		h.handleLine(line)
	}
}

func (h *Handler) handleLine(line string) {
	h.requestCount++

	switch {
	case line == "stats":
		h.printStats()
	case strings.HasPrefix(line, "log "):
		h.handleLog(strings.TrimSpace(strings.TrimPrefix(line, "log ")))
	default:
		h.handleSuggest(line)
	}
}

func (h *Handler) handleSuggest(prefix string) {
	opts := suggestservice.NewOptions()
	opts.Limit = h.limit
	opts.AllowFuzzy = !h.noFuzzy

	res := h.suggest.Suggest(context.Background(), prefix, opts)
	if len(res.Suggestions) == 0 {
		log.Warnf("no suggestions for %q", prefix)
		return
	}
	for i, s := range res.Suggestions {
		tag := ""
		if s.IsFuzzy {
			tag = fmt.Sprintf(" (fuzzy, d=%d)", s.EditDistance)
		}
		log.Printf("%2d. %-30s count=%-8d score=%.2f%s", i+1, s.Phrase, s.Count, s.Score, tag)
	}
	log.Debugf("cache_hit=%v latency_hint_ms=%d", res.CacheHit, res.LatencyHintMs)
}

func (h *Handler) handleLog(query string) {
	if h.agg == nil {
		log.Error("aggregator not available in this session")
		return
	}
	if query == "" {
		log.Error("usage: log <query text>")
		return
	}
	h.agg.ProcessQuery(context.Background(), query, "", "")
	log.Infof("recorded query %q", query)
}

func (h *Handler) printStats() {
	st := h.suggest.Stats()
	log.Printf("phrases=%d nodes=%d max_depth=%d top_k=%d", st.PhraseCount, st.NodeCount, st.MaxDepth, st.TopK)
	if h.agg != nil {
		log.Printf("buffer_size=%d", h.agg.BufferSize())
	}
}

/*
Command typeahead-cli runs an interactive shell against an in-process
suggestion service, for manual verification of ranking and fuzzy
fallback without standing up the IPC server or any durable backend.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/evgenyvinnik/typeahead-core/internal/cli"
	"github.com/evgenyvinnik/typeahead-core/internal/logger"
	"github.com/evgenyvinnik/typeahead-core/pkg/aggregator"
	"github.com/evgenyvinnik/typeahead-core/pkg/breaker"
	"github.com/evgenyvinnik/typeahead-core/pkg/cache"
	"github.com/evgenyvinnik/typeahead-core/pkg/config"
	"github.com/evgenyvinnik/typeahead-core/pkg/durable"
	"github.com/evgenyvinnik/typeahead-core/pkg/metrics"
	"github.com/evgenyvinnik/typeahead-core/pkg/suggestservice"
	"github.com/evgenyvinnik/typeahead-core/pkg/trie"
)

func main() {
	configFile := flag.String("config", "config.toml", "Path to config.toml file")
	debugMode := flag.Bool("v", false, "Toggle verbose mode")
	limit := flag.Int("limit", 0, "Number of suggestions to return (0 uses config default)")
	noFuzzy := flag.Bool("no-fuzzy", false, "Disable fuzzy fallback expansion")
	seedWords := flag.String("seed", "", "Comma-separated phrase:count pairs to pre-load, e.g. search:100,sea turtle:10")
	flag.Parse()

	if *debugMode {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
	log.SetReportTimestamp(false)

	cfg, err := config.InitConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	metricsReg := metrics.New(prometheus.NewRegistry())
	breakers := breaker.NewRegistryWithConfigs(
		breakerConfigFromToml(cfg.Breakers.SuggestionService),
		breakerConfigFromToml(cfg.Breakers.Database),
		breakerConfigFromToml(cfg.Breakers.RedisCache),
		metrics.NewBreakerObserver(metricsReg, logger.Default("breaker")),
	)

	trieCfg := trie.Config{TopK: cfg.Trie.TopK, MaxPhraseLen: cfg.Trie.MaxPhraseLen, Logger: logger.Default("trie")}
	idx := trie.New(trieCfg)
	seedTrie(idx, *seedWords)

	suggestCache := cache.New(time.Duration(cfg.Cache.TTLSec) * time.Second)

	trendingRef := &trendingScorer{}
	suggestSvc := suggestservice.New(idx, cfg.Trie.TopK, suggestCache, breakers.SuggestionService, breakers.RedisCache, trendingRef, nil, logger.Default("suggest"))
	suggestSvc.SetMetrics(metricsReg)

	adapters, err := durable.BuildAdapters(context.Background(), "memory", durable.Options{})
	if err != nil {
		log.Fatalf("failed to build durable adapters: %v", err)
	}
	aggCfg := aggregator.Config{
		FlushInterval:   time.Duration(cfg.Aggregator.FlushIntervalMs) * time.Millisecond,
		RebuildLimit:    cfg.Aggregator.RebuildLimit,
		TrendingWindow:  time.Duration(cfg.Aggregator.TrendingWindowMin) * time.Minute,
		TrendingHorizon: time.Duration(cfg.Aggregator.TrendingHorizonMin) * time.Minute,
		DecayInterval:   time.Duration(cfg.Aggregator.DecayIntervalMin) * time.Minute,
		MaxPhraseLen:    cfg.Trie.MaxPhraseLen,
	}
	agg := aggregator.New(aggCfg, idx, suggestSvc, suggestCache, adapters.PhraseCounts, adapters.QueryLog, breakers.Database, nil, logger.Default("aggregator"))
	agg.SetMetrics(metricsReg, metricsReg)
	agg.Filtered().SetStore(adapters.FilteredPhrases, logger.Default("filter"))
	trendingRef.agg = agg
	agg.Start()
	defer agg.Stop()

	effectiveLimit := *limit
	if effectiveLimit <= 0 {
		effectiveLimit = cfg.CLI.DefaultLimit
	}
	handler := cli.NewHandler(suggestSvc, agg, effectiveLimit, *noFuzzy || cfg.CLI.DefaultNoFuzzy)
	if err := handler.Start(); err != nil && !errors.Is(err, io.EOF) {
		log.Fatalf("cli error: %v", err)
	}
	os.Exit(0)
}

// breakerConfigFromToml converts a config.toml breaker section into
// breaker.Config; the Name field is overwritten by NewRegistryWithConfigs.
func breakerConfigFromToml(c config.BreakerConfig) breaker.Config {
	return breaker.Config{
		Timeout:           time.Duration(c.TimeoutMs) * time.Millisecond,
		ErrorThresholdPct: c.ErrorThresholdPct,
		VolumeThreshold:   c.VolumeThreshold,
		ResetTimeout:      time.Duration(c.ResetTimeoutMs) * time.Millisecond,
	}
}

// trendingScorer adapts *aggregator.Aggregator to ranking.TrendingScorer,
// wired in after construction the same way the server entrypoint does.
type trendingScorer struct {
	agg *aggregator.Aggregator
}

func (t *trendingScorer) TrendingScore(phrase string) float64 {
	if t.agg == nil {
		return 0
	}
	return t.agg.TrendingScore(phrase)
}

// seedTrie pre-loads a "phrase:count,phrase:count" list for quick manual
// testing without standing up a durable store.
func seedTrie(idx *trie.Trie, seed string) {
	if seed == "" {
		return
	}
	for _, pair := range splitComma(seed) {
		phrase, count := splitColon(pair)
		if phrase == "" {
			continue
		}
		if err := idx.Insert(phrase, count); err != nil {
			log.Warnf("skipping seed %q: %v", pair, err)
		}
	}
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func splitColon(pair string) (string, int64) {
	idx := -1
	for i := len(pair) - 1; i >= 0; i-- {
		if pair[i] == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return pair, 1
	}
	phrase := pair[:idx]
	var count int64
	for _, r := range pair[idx+1:] {
		if r < '0' || r > '9' {
			return phrase, 1
		}
		count = count*10 + int64(r-'0')
	}
	if count == 0 {
		count = 1
	}
	return phrase, count
}

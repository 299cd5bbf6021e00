/*
Command typeahead-server runs the typeahead suggestion core as a
MessagePack IPC server over stdio: flags for adapter selection, a styled
--version banner, TOML config with create-on-missing semantics, then a
blocking Start() loop torn down on SIGINT/SIGTERM.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/evgenyvinnik/typeahead-core/internal/logger"
	"github.com/evgenyvinnik/typeahead-core/pkg/aggregator"
	"github.com/evgenyvinnik/typeahead-core/pkg/breaker"
	"github.com/evgenyvinnik/typeahead-core/pkg/cache"
	"github.com/evgenyvinnik/typeahead-core/pkg/config"
	"github.com/evgenyvinnik/typeahead-core/pkg/durable"
	"github.com/evgenyvinnik/typeahead-core/pkg/idempotency"
	"github.com/evgenyvinnik/typeahead-core/pkg/metrics"
	"github.com/evgenyvinnik/typeahead-core/pkg/ratelimit"
	"github.com/evgenyvinnik/typeahead-core/pkg/server"
	"github.com/evgenyvinnik/typeahead-core/pkg/suggestservice"
	"github.com/evgenyvinnik/typeahead-core/pkg/trie"
)

const (
	Version = "0.1.0"
	AppName = "typeahead-server"
	gh      = "https://github.com/evgenyvinnik/typeahead-core"
)

func sigHandler(cancel func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nShutting down...\n")
		cancel()
	}()
}

func main() {
	showVersion := flag.Bool("version", false, "Show current version")
	configFile := flag.String("config", "config.toml", "Path to config.toml file")
	debugMode := flag.Bool("v", false, "Toggle verbose mode")
	durableMode := flag.String("durable", "memory", "Durable adapter mode: memory|durable")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres DSN (durable mode)")
	kafkaBrokers := flag.String("kafka-brokers", "", "Comma-separated Kafka brokers (durable mode)")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	cfg, err := config.InitConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigHandler(cancel)

	adapters, err := durable.BuildAdapters(ctx, *durableMode, durable.Options{
		PostgresDSN:  *postgresDSN,
		KafkaBrokers: splitNonEmpty(*kafkaBrokers),
	})
	if err != nil {
		log.Fatalf("failed to build durable adapters: %v", err)
	}

	metricsReg := metrics.New(prometheus.NewRegistry())
	breakerObserver := metrics.NewBreakerObserver(metricsReg, logger.Default("breaker"))
	breakers := breaker.NewRegistryWithConfigs(
		breakerConfigFromToml(cfg.Breakers.SuggestionService),
		breakerConfigFromToml(cfg.Breakers.Database),
		breakerConfigFromToml(cfg.Breakers.RedisCache),
		breakerObserver,
	)

	trieCfg := trie.Config{TopK: cfg.Trie.TopK, MaxPhraseLen: cfg.Trie.MaxPhraseLen, Logger: logger.Default("trie")}
	idx := trie.New(trieCfg)

	suggestCache := cache.New(time.Duration(cfg.Cache.TTLSec) * time.Second)

	// Audit entries carry caller and timestamp info that the ambient
	// loggers otherwise omit, since they record admin actions for later
	// review rather than routine operational chatter.
	auditLogger := logger.NewWithConfig("audit", log.GetLevel(), true, true, log.TextFormatter)
	auditSink := durable.NewLogAuditSink(auditLogger, 1000)

	aggCfg := aggregator.Config{
		FlushInterval:   time.Duration(cfg.Aggregator.FlushIntervalMs) * time.Millisecond,
		RebuildLimit:    cfg.Aggregator.RebuildLimit,
		TrendingWindow:  time.Duration(cfg.Aggregator.TrendingWindowMin) * time.Minute,
		TrendingHorizon: time.Duration(cfg.Aggregator.TrendingHorizonMin) * time.Minute,
		DecayInterval:   time.Duration(cfg.Aggregator.DecayIntervalMin) * time.Minute,
		MaxPhraseLen:    cfg.Trie.MaxPhraseLen,
	}

	// suggestSvc needs a TrendingScorer and agg needs suggestSvc as its
	// TrieSwapper, so the aggregator reference is wired in after both
	// exist via a thin indirection rather than a forward declaration.
	trendingRef := &aggregatorTrendingRef{}
	suggestSvc := suggestservice.New(idx, cfg.Trie.TopK, suggestCache, breakers.SuggestionService, breakers.RedisCache, trendingRef, nil, logger.Default("suggest"))
	suggestSvc.SetMetrics(metricsReg)

	agg := aggregator.New(aggCfg, idx, suggestSvc, suggestCache, adapters.PhraseCounts, adapters.QueryLog, breakers.Database, auditSink, logger.Default("aggregator"))
	agg.SetMetrics(metricsReg, metricsReg)
	agg.Filtered().SetStore(adapters.FilteredPhrases, logger.Default("filter"))
	if err := agg.Filtered().LoadFrom(ctx); err != nil {
		log.Warnf("failed to load filtered phrases from durable store: %v", err)
	}
	trendingRef.agg = agg
	agg.Start()
	defer agg.Stop()

	// KafkaQueryLogSink holds an open writer; flush it on shutdown. The
	// memory sink doesn't implement Close, so this is a no-op for it.
	if closer, ok := adapters.QueryLog.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Warnf("failed to close query-log sink: %v", err)
			}
		}()
	}

	rateLimit := ratelimit.DefaultLimit()
	if cfg.RateLimit.Requests > 0 {
		rateLimit.Requests = cfg.RateLimit.Requests
	}
	if cfg.RateLimit.WindowMs > 0 {
		rateLimit.Window = time.Duration(cfg.RateLimit.WindowMs) * time.Millisecond
	}
	limiter := ratelimit.New(rateLimit)
	idem := idempotency.New(time.Duration(cfg.Idempotency.TTLSec) * time.Second)

	srv := server.New(suggestSvc, agg, breakers, trieCfg, logger.Default("server"))
	srv.SetRateLimiter(limiter)
	srv.SetIdempotency(idem)
	srv.SetMetrics(metricsReg)

	showStartupInfo(*durableMode)

	go func() {
		<-ctx.Done()
		os.Stdin.Close()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// aggregatorTrendingRef adapts *aggregator.Aggregator to
// ranking.TrendingScorer without creating an import cycle between
// suggestservice's construction and the aggregator it feeds.
type aggregatorTrendingRef struct {
	agg *aggregator.Aggregator
}

func (t *aggregatorTrendingRef) TrendingScore(phrase string) float64 {
	if t.agg == nil {
		return 0
	}
	return t.agg.TrendingScore(phrase)
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

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
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

func printVersion() {
	l := log.NewWithOptions(os.Stderr, log.Options{ReportCaller: false, ReportTimestamp: false, Prefix: ""})
	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	l.SetStyles(styles)

	l.Print("")
	l.Print("[typeahead] Search-as-you-type suggestions, served fast.")
	l.Print("", "version", Version)
	l.Print("")
	l.Print("use --help to see available options")
	l.Print("")
	l.Print("Find out more at", "gh", gh)
}

func showStartupInfo(durableMode string) {
	pid := os.Getpid()
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	println("=================")
	println(" typeahead-server ")
	println("=================")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", pid)
	log.Infof("Durable adapters: %s", durableMode)
	log.Info("status: ready")
	println("=================")
	log.Info("listening for msgpack requests on stdin")

	log.SetLevel(currentLevel)
}

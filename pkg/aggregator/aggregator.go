package aggregator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evgenyvinnik/typeahead-core/internal/normalize"
	"github.com/evgenyvinnik/typeahead-core/pkg/breaker"
	"github.com/evgenyvinnik/typeahead-core/pkg/durable"
	"github.com/evgenyvinnik/typeahead-core/pkg/trie"
)

// TrieIncrementer is the subset of *trie.Trie the aggregator needs, so
// flush and rebuild can be exercised against a fake in tests.
type TrieIncrementer interface {
	Increment(phrase string, delta int64) error
}

// TrieSwapper receives a freshly rebuilt trie to publish atomically.
type TrieSwapper interface {
	Swap(next *trie.Trie)
}

// CacheInvalidator is consulted by rebuild_trie to drop every cached
// suggestion list.
type CacheInvalidator interface {
	InvalidateAll()
}

// FilterObserver records queries_filtered_total{reason}.
type FilterObserver interface {
	ObserveFiltered(reason string)
}

// BufferSizeObserver records the aggregation_buffer_size gauge.
type BufferSizeObserver interface {
	SetAggregationBufferSize(n int64)
}

// Config tunes the aggregator's timers and limits.
type Config struct {
	FlushInterval   time.Duration
	RebuildLimit    int
	TrendingWindow  time.Duration
	TrendingHorizon time.Duration
	DecayInterval   time.Duration
	MaxPhraseLen    int
}

// DefaultConfig returns the shipped defaults: 30s flushes, 5-minute
// trending buckets over a 60-minute horizon, hourly decay.
func DefaultConfig() Config {
	return Config{
		FlushInterval:   30 * time.Second,
		RebuildLimit:    100000,
		TrendingWindow:  5 * time.Minute,
		TrendingHorizon: 60 * time.Minute,
		DecayInterval:   time.Hour,
		MaxPhraseLen:    normalize.HardMaxLen,
	}
}

// Aggregator is the streaming pipeline: validate/filter incoming
// queries, buffer them, and periodically flush into the trie and durable
// store while maintaining trending scores.
//
// The flush/decay loops run as joinable goroutines with a stopChan and a
// WaitGroup, so shutdown can wait for the in-flight cycle to finish.
type Aggregator struct {
	cfg Config
	log *log.Logger

	buffer   *Buffer
	trending *TrendingWindow
	filtered *FilteredPhraseSet

	trMu        sync.RWMutex
	tr          TrieIncrementer
	swapper     TrieSwapper
	cacheInval  CacheInvalidator
	phraseCount durable.PhraseCountStore
	queryLog    durable.QueryLogSink
	dbBreaker   *breaker.Breaker

	filterObserver FilterObserver
	bufObserver    BufferSizeObserver

	now func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// New constructs an Aggregator. swapper and cacheInval may be nil if the
// caller only needs flush, not rebuild_trie. dbBreaker, when non-nil,
// wraps every durable phrase-count call and the filter set's
// authoritative-store fallback.
func New(cfg Config, tr TrieIncrementer, swapper TrieSwapper, cacheInval CacheInvalidator, phraseCount durable.PhraseCountStore, queryLog durable.QueryLogSink, dbBreaker *breaker.Breaker, audit AuditSink, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.Default()
	}
	filtered := NewFilteredPhraseSet(audit)
	filtered.db = dbBreaker
	return &Aggregator{
		cfg:         cfg,
		log:         logger,
		buffer:      NewBuffer(),
		trending:    NewTrendingWindow(cfg.TrendingWindow, cfg.TrendingHorizon),
		filtered:    filtered,
		tr:          tr,
		swapper:     swapper,
		cacheInval:  cacheInval,
		phraseCount: phraseCount,
		queryLog:    queryLog,
		dbBreaker:   dbBreaker,
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
}

// Filtered exposes the FilteredPhraseSet for admin add_filter/remove_filter.
func (a *Aggregator) Filtered() *FilteredPhraseSet { return a.filtered }

// AddFilter handles the add_filter admin op: it updates the in-memory
// mirror and, when the configured phrase-count store supports it, flips
// the row's is_filtered flag directly so a concurrent rebuild_trie's TopN
// never re-admits the phrase.
func (a *Aggregator) AddFilter(phrase, reason string, at time.Time) {
	phrase = normalize.Phrase(phrase)
	a.filtered.Add(phrase, reason, at)
	if marker, ok := a.phraseCount.(durable.PhraseFilterMarker); ok {
		marker.MarkFiltered(phrase, true)
	}
}

// RemoveFilter handles the remove_filter admin op.
func (a *Aggregator) RemoveFilter(phrase, reason string, at time.Time) {
	phrase = normalize.Phrase(phrase)
	a.filtered.Remove(phrase, reason, at)
	if marker, ok := a.phraseCount.(durable.PhraseFilterMarker); ok {
		marker.MarkFiltered(phrase, false)
	}
}

// SetMetrics wires in the queries_filtered_total and
// aggregation_buffer_size instrumentation. Either argument may be nil to
// leave that instrumentation disabled.
func (a *Aggregator) SetMetrics(filter FilterObserver, buf BufferSizeObserver) {
	a.filterObserver = filter
	a.bufObserver = buf
}

// BufferSize exposes the live buffer size for the stats() endpoint.
func (a *Aggregator) BufferSize() int64 { return a.buffer.Size() }

// Start launches the flush and decay background loops.
func (a *Aggregator) Start() {
	a.log.Info("starting aggregator background worker")
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.flushLoop()
	}()
	go func() {
		defer a.wg.Done()
		a.decayLoop()
	}()
}

// Stop signals both loops to exit, runs one final flush, and waits for
// them to return, so no buffered delta is dropped on shutdown.
func (a *Aggregator) Stop() {
	if !atomic.CompareAndSwapUint32(&a.stopped, 0, 1) {
		return
	}
	a.log.Info("stopping aggregator background worker")
	close(a.stopChan)
	a.wg.Wait()
}

func (a *Aggregator) flushLoop() {
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.Flush(context.Background())
		case <-a.stopChan:
			a.Flush(context.Background())
			return
		}
	}
}

func (a *Aggregator) decayLoop() {
	ticker := time.NewTicker(a.cfg.DecayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.trending.Decay()
		case <-a.stopChan:
			return
		}
	}
}

// ProcessQuery ingests one raw query event. It never returns an error to
// the caller: quality-filter rejections are silent, and query-log
// emission failures are logged and swallowed rather than propagated.
func (a *Aggregator) ProcessQuery(ctx context.Context, rawQuery, userID, sessionID string) {
	phrase := normalize.Phrase(rawQuery)
	if !normalize.Valid(phrase, a.cfg.MaxPhraseLen) || !normalize.Printable(phrase) {
		return
	}
	if IsLowQuality(phrase) {
		a.observeFiltered("low_quality")
		return
	}
	if a.filtered.IsInappropriate(phrase) {
		a.observeFiltered("inappropriate")
		return
	}

	now := a.now()
	a.buffer.Upsert(phrase, now)
	a.trending.Increment(phrase, now)
	if a.bufObserver != nil {
		a.bufObserver.SetAggregationBufferSize(a.buffer.Size())
	}

	if a.queryLog != nil {
		if err := a.queryLog.Append(ctx, durable.QueryLogRow{
			Phrase:    phrase,
			UserID:    userID,
			SessionID: sessionID,
			Timestamp: now,
		}); err != nil {
			a.log.Warnf("query-log append failed for phrase %q: %v", phrase, err)
		}
	}
}

// Flush snapshots and clears the buffer, upserts each delta into the
// durable store and the trie, then refreshes trending. Per-phrase durable
// failures are logged and do not prevent the rest of the batch, or the
// trie update, from proceeding.
func (a *Aggregator) Flush(ctx context.Context) {
	entries := a.buffer.Snapshot()
	if a.bufObserver != nil {
		a.bufObserver.SetAggregationBufferSize(a.buffer.Size())
	}
	if len(entries) == 0 {
		a.trending.Aggregate()
		return
	}

	tr := a.currentTrie()
	for _, e := range entries {
		if a.phraseCount != nil {
			if err := a.upsertDurable(ctx, e); err != nil {
				a.log.Errorf("durable phrase-count upsert failed for %q: %v", e.Phrase, err)
			}
		}
		if err := tr.Increment(e.Phrase, e.Delta); err != nil {
			a.log.Errorf("trie increment failed for %q: %v (trie updates should never fail)", e.Phrase, err)
		}
	}

	a.trending.Aggregate()
}

// upsertDurable writes one flushed delta to the durable store through the
// database breaker's timeout and state machine; an open circuit skips the
// store for the remainder of the batch at no per-call cost.
func (a *Aggregator) upsertDurable(ctx context.Context, e FlushedEntry) error {
	if a.dbBreaker == nil {
		return a.phraseCount.Upsert(ctx, e.Phrase, e.Delta, e.LastSeen)
	}
	_, err := a.dbBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, a.phraseCount.Upsert(ctx, e.Phrase, e.Delta, e.LastSeen)
	}, nil)
	return err
}

// topNDurable reads the rebuild source through the database breaker.
func (a *Aggregator) topNDurable(ctx context.Context, limit int) ([]durable.PhraseCountRow, error) {
	if a.dbBreaker == nil {
		return a.phraseCount.TopN(ctx, limit)
	}
	result, err := a.dbBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return a.phraseCount.TopN(ctx, limit)
	}, nil)
	if err != nil {
		return nil, err
	}
	return result.([]durable.PhraseCountRow), nil
}

func (a *Aggregator) observeFiltered(reason string) {
	if a.filterObserver != nil {
		a.filterObserver.ObserveFiltered(reason)
	}
}

// currentTrie returns flush's increment target under the lock RebuildTrie
// repoints it through.
func (a *Aggregator) currentTrie() TrieIncrementer {
	a.trMu.RLock()
	defer a.trMu.RUnlock()
	return a.tr
}

// TrendingScore exposes a phrase's current TrendingScore to the ranking engine.
func (a *Aggregator) TrendingScore(phrase string) float64 {
	return a.trending.Score(phrase)
}

// RebuildTrie reads the top-N phrases from the durable store, builds a
// fresh trie, swaps it in, then invalidates the suggestion cache globally.
func (a *Aggregator) RebuildTrie(ctx context.Context, trieCfg trie.Config) error {
	if a.phraseCount == nil || a.swapper == nil {
		return nil
	}
	limit := a.cfg.RebuildLimit
	if limit <= 0 {
		limit = 100000
	}
	rows, err := a.topNDurable(ctx, limit)
	if err != nil {
		return err
	}

	seeds := make([]trie.PhraseSeed, 0, len(rows))
	for _, r := range rows {
		seeds = append(seeds, trie.PhraseSeed{Phrase: r.Phrase, Count: r.Count, LastUpdated: r.LastUpdated})
	}
	fresh := trie.FromSource(trieCfg, seeds)
	a.swapper.Swap(fresh)

	// Repoint flush's increment target at the trie just published, so
	// post-rebuild deltas land in the served index rather than the
	// orphaned old one.
	a.trMu.Lock()
	a.tr = fresh
	a.trMu.Unlock()

	if a.cacheInval != nil {
		a.cacheInval.InvalidateAll()
	}
	return nil
}

package aggregator

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// TrendingDecay is the per-bucket and per-hour decay factor.
const TrendingDecay = 0.9

// TrendingFloor is the score below which a decayed trending entry is dropped.
const TrendingFloor = 0.1

// bucketCounter is one phrase's atomic count within a single time bucket.
type bucketCounter struct {
	count int64
}

// bucket is one floor(now/windowSize) slot: a concurrent phrase-to-count
// map, the same sync.Map-of-atomics shape as Buffer for the same reason —
// increments happen on the hot intake path.
type bucket struct {
	index  int64
	counts sync.Map // phrase -> *bucketCounter
}

// TrendingWindow retains the last `horizon/windowSize` buckets and
// exposes a decayed, weighted trending score per phrase.
type TrendingWindow struct {
	windowSize time.Duration
	horizon    time.Duration
	maxBuckets int

	mu      sync.Mutex
	buckets map[int64]*bucket // bucket index -> bucket, at most maxBuckets live

	scoreMu sync.RWMutex
	scores  map[string]float64 // aggregated TrendingScore, refreshed by aggregate_trending_windows
}

// NewTrendingWindow constructs a window keyed by windowSize-sized buckets,
// retaining horizon/windowSize of them.
func NewTrendingWindow(windowSize, horizon time.Duration) *TrendingWindow {
	maxBuckets := int(horizon / windowSize)
	if maxBuckets < 1 {
		maxBuckets = 1
	}
	return &TrendingWindow{
		windowSize: windowSize,
		horizon:    horizon,
		maxBuckets: maxBuckets,
		buckets:    make(map[int64]*bucket, maxBuckets+1),
		scores:     make(map[string]float64),
	}
}

func (w *TrendingWindow) bucketIndex(at time.Time) int64 {
	return at.UnixNano() / int64(w.windowSize)
}

// Increment bumps phrase's count in the current bucket, creating the
// bucket on first touch and evicting buckets older than the retained
// horizon.
func (w *TrendingWindow) Increment(phrase string, at time.Time) {
	idx := w.bucketIndex(at)

	w.mu.Lock()
	b, ok := w.buckets[idx]
	if !ok {
		b = &bucket{index: idx}
		w.buckets[idx] = b
		w.evictOldLocked(idx)
	}
	w.mu.Unlock()

	if actual, loaded := b.counts.LoadOrStore(phrase, &bucketCounter{count: 1}); loaded {
		atomic.AddInt64(&actual.(*bucketCounter).count, 1)
	}
}

func (w *TrendingWindow) evictOldLocked(latest int64) {
	for idx := range w.buckets {
		if latest-idx >= int64(w.maxBuckets) {
			delete(w.buckets, idx)
		}
	}
}

// Aggregate takes the last maxBuckets present bucket snapshots ordered
// most-recent first and computes the weighted union into the scores map
// with weight decay^i.
func (w *TrendingWindow) Aggregate() {
	w.mu.Lock()
	indices := make([]int64, 0, len(w.buckets))
	for idx := range w.buckets {
		indices = append(indices, idx)
	}
	latest := int64(0)
	for _, idx := range indices {
		if idx > latest {
			latest = idx
		}
	}
	snapshot := make(map[int64]*bucket, len(w.buckets))
	for idx, b := range w.buckets {
		snapshot[idx] = b
	}
	w.mu.Unlock()

	next := make(map[string]float64)
	for idx, b := range snapshot {
		age := latest - idx
		if age < 0 || age >= int64(w.maxBuckets) {
			continue
		}
		weight := math.Pow(TrendingDecay, float64(age))
		b.counts.Range(func(key, value any) bool {
			phrase := key.(string)
			c := atomic.LoadInt64(&value.(*bucketCounter).count)
			next[phrase] += float64(c) * weight
			return true
		})
	}

	w.scoreMu.Lock()
	w.scores = next
	w.scoreMu.Unlock()
}

// Decay multiplies every aggregated score by TrendingDecay and drops
// entries that fall below TrendingFloor. Run hourly by the background
// worker.
func (w *TrendingWindow) Decay() {
	w.scoreMu.Lock()
	defer w.scoreMu.Unlock()
	for phrase, score := range w.scores {
		decayed := score * TrendingDecay
		if decayed < TrendingFloor {
			delete(w.scores, phrase)
			continue
		}
		w.scores[phrase] = decayed
	}
}

// Score returns phrase's current TrendingScore, or 0 if it has none.
func (w *TrendingWindow) Score(phrase string) float64 {
	w.scoreMu.RLock()
	defer w.scoreMu.RUnlock()
	return w.scores[phrase]
}

// Package aggregator absorbs a high-rate stream of raw queries, filters
// them, batches them into the trie and a durable phrase-count store, and
// maintains a trending score per phrase.
package aggregator

import (
	"sync"
	"sync/atomic"
	"time"
)

// bufferEntry is one phrase's not-yet-flushed state. delta is accessed
// from both the hot intake path and the flush task, so it is an atomic
// counter rather than a mutex-guarded field.
type bufferEntry struct {
	delta     int64
	firstSeen int64 // UnixNano, set once
	lastSeen  int64 // UnixNano, updated on every touch
}

// Buffer is the bounded write buffer intake upserts into and flush drains.
// Keyed by normalized phrase. Intake shares the read side of an RWMutex
// around a sync.Map, so frequent, latency-sensitive upserts never block
// each other or on flush; flush takes the write side only for the O(1)
// pointer swap that drains the map.
type Buffer struct {
	mu      sync.RWMutex
	entries *sync.Map
	size    int64
}

// NewBuffer constructs an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{entries: &sync.Map{}}
}

// Upsert records one more occurrence of phrase, creating its entry on
// first touch. Mirrors the lazy-allocate-then-LoadOrStore pattern: the
// common case (phrase already buffered) never allocates. The read lock
// pins the current map for the duration of the increment, so a
// concurrent Snapshot cannot swap it out mid-update and lose the delta.
func (b *Buffer) Upsert(phrase string, now time.Time) {
	nowNano := now.UnixNano()

	b.mu.RLock()
	defer b.mu.RUnlock()

	if actual, ok := b.entries.Load(phrase); ok {
		e := actual.(*bufferEntry)
		atomic.AddInt64(&e.delta, 1)
		atomic.StoreInt64(&e.lastSeen, nowNano)
		return
	}

	fresh := &bufferEntry{delta: 1, firstSeen: nowNano, lastSeen: nowNano}
	if actual, loaded := b.entries.LoadOrStore(phrase, fresh); loaded {
		e := actual.(*bufferEntry)
		atomic.AddInt64(&e.delta, 1)
		atomic.StoreInt64(&e.lastSeen, nowNano)
		return
	}
	atomic.AddInt64(&b.size, 1)
}

// FlushedEntry is one phrase's accumulated delta as of a Snapshot call.
type FlushedEntry struct {
	Phrase    string
	Delta     int64
	FirstSeen time.Time
	LastSeen  time.Time
}

// Snapshot drains the buffer by swapping a fresh map into place under the
// write lock, then reading the drained map unshared. Acquiring the write
// lock waits out every in-flight Upsert, so each increment lands either
// in the drained map (returned here) or in the fresh one (picked up by
// the next flush) — never in neither.
func (b *Buffer) Snapshot() []FlushedEntry {
	b.mu.Lock()
	drained := b.entries
	b.entries = &sync.Map{}
	atomic.StoreInt64(&b.size, 0)
	b.mu.Unlock()

	var out []FlushedEntry
	drained.Range(func(key, value any) bool {
		e := value.(*bufferEntry)
		delta := atomic.LoadInt64(&e.delta)
		if delta == 0 {
			return true
		}
		out = append(out, FlushedEntry{
			Phrase:    key.(string),
			Delta:     delta,
			FirstSeen: time.Unix(0, atomic.LoadInt64(&e.firstSeen)),
			LastSeen:  time.Unix(0, atomic.LoadInt64(&e.lastSeen)),
		})
		return true
	})
	return out
}

// Size reports the number of distinct phrases currently buffered, for the
// aggregation_buffer_size gauge.
func (b *Buffer) Size() int64 {
	return atomic.LoadInt64(&b.size)
}

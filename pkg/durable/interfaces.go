// Package durable defines the suggestion core's external collaborators:
// the phrase-count store, the raw query-log sink and the filtered-phrase
// store. It supplies the interfaces plus in-memory implementations (used
// directly in a single-process deployment and in tests) and real
// adapters over Postgres, Kafka and Redis for the multi-process case.
package durable

import (
	"context"
	"time"
)

// PhraseCountRow mirrors the durable phrase-count schema:
// (phrase text primary key, count bigint not null, last_updated timestamp, is_filtered bool).
type PhraseCountRow struct {
	Phrase      string
	Count       int64
	LastUpdated time.Time
	IsFiltered  bool
}

// PhraseCountStore is the authoritative phrase-count table the aggregator
// flushes into and rebuild_trie reads from.
type PhraseCountStore interface {
	// Upsert adds delta to phrase's stored count, creating the row at
	// delta if absent, and sets last_updated to now.
	Upsert(ctx context.Context, phrase string, delta int64, now time.Time) error
	// TopN returns the top-N rows by count desc, excluding filtered phrases,
	// for rebuild_trie.
	TopN(ctx context.Context, n int) ([]PhraseCountRow, error)
}

// QueryLogRow mirrors the append-only raw query-log schema.
type QueryLogRow struct {
	Phrase    string
	UserID    string
	SessionID string
	Timestamp time.Time
}

// QueryLogSink is the append-only sink every ProcessQuery call emits a
// raw event to. Failure of Append must not block query processing.
type QueryLogSink interface {
	Append(ctx context.Context, row QueryLogRow) error
}

// FilteredPhraseRow mirrors the filtered-phrase schema.
type FilteredPhraseRow struct {
	Phrase  string
	Reason  string
	AddedAt time.Time
}

// FilteredPhraseStore is the authoritative store behind FilteredPhraseSet
// in a multi-process deployment; the in-memory set is a read-through
// mirror over it.
type FilteredPhraseStore interface {
	Add(ctx context.Context, row FilteredPhraseRow) error
	Remove(ctx context.Context, phrase string) error
	List(ctx context.Context) ([]FilteredPhraseRow, error)
}

// PhraseFilterMarker is an optional PhraseCountStore capability: when a
// store supports it, add_filter/remove_filter flips the row's is_filtered
// flag directly instead of relying on a join against FilteredPhraseStore,
// so a rebuild's TopN excludes the phrase immediately.
type PhraseFilterMarker interface {
	MarkFiltered(phrase string, filtered bool)
}

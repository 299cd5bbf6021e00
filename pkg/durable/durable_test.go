package durable

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryPhraseCountStoreTopNExcludesFiltered(t *testing.T) {
	store := NewMemoryPhraseCountStore()
	ctx := context.Background()
	now := time.Now()

	if err := store.Upsert(ctx, "hello world", 5, now); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Upsert(ctx, "hello world", 3, now); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Upsert(ctx, "banned phrase", 100, now); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("topn: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Phrase != "banned phrase" || rows[0].Count != 100 {
		t.Fatalf("expected banned phrase first by count, got %+v", rows[0])
	}
	if rows[1].Phrase != "hello world" || rows[1].Count != 8 {
		t.Fatalf("expected accumulated count 8, got %+v", rows[1])
	}

	store.MarkFiltered("banned phrase", true)
	rows, err = store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("topn after mark filtered: %v", err)
	}
	if len(rows) != 1 || rows[0].Phrase != "hello world" {
		t.Fatalf("expected banned phrase excluded, got %+v", rows)
	}

	store.MarkFiltered("banned phrase", false)
	rows, err = store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("topn after unmark: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected banned phrase re-admitted, got %+v", rows)
	}
}

func TestMemoryPhraseCountStoreTopNLimit(t *testing.T) {
	store := NewMemoryPhraseCountStore()
	ctx := context.Background()
	now := time.Now()
	for i, phrase := range []string{"aa", "bb", "cc"} {
		if err := store.Upsert(ctx, phrase, int64(i+1), now); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	rows, err := store.TopN(ctx, 2)
	if err != nil {
		t.Fatalf("topn: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected limit of 2 rows, got %d", len(rows))
	}
}

func TestMemoryQueryLogSinkAppendAndRows(t *testing.T) {
	sink := NewMemoryQueryLogSink()
	ctx := context.Background()
	now := time.Now()

	if err := sink.Append(ctx, QueryLogRow{Phrase: "hello", UserID: "u1", Timestamp: now}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := sink.Append(ctx, QueryLogRow{Phrase: "world", UserID: "u2", Timestamp: now}); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows := sink.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Phrase != "hello" || rows[1].Phrase != "world" {
		t.Fatalf("unexpected row order: %+v", rows)
	}

	rows[0].Phrase = "mutated"
	if sink.Rows()[0].Phrase != "hello" {
		t.Fatalf("Rows() must return a copy, mutation leaked into sink")
	}
}

func TestMemoryFilteredPhraseStoreAddRemoveList(t *testing.T) {
	store := NewMemoryFilteredPhraseStore()
	ctx := context.Background()
	now := time.Now()

	if err := store.Add(ctx, FilteredPhraseRow{Phrase: "spam", Reason: "policy", AddedAt: now}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Add(ctx, FilteredPhraseRow{Phrase: "junk", Reason: "policy", AddedAt: now}); err != nil {
		t.Fatalf("add: %v", err)
	}

	rows, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	if err := store.Remove(ctx, "spam"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rows, err = store.List(ctx)
	if err != nil {
		t.Fatalf("list after remove: %v", err)
	}
	if len(rows) != 1 || rows[0].Phrase != "junk" {
		t.Fatalf("expected only junk to remain, got %+v", rows)
	}
}

func TestLogAuditSinkRecordsAndBounds(t *testing.T) {
	sink := NewLogAuditSink(nil, 2)
	now := time.Now()

	sink.RecordFilterChange("add_filter", "one", "policy", now)
	sink.RecordFilterChange("add_filter", "two", "policy", now)
	sink.RecordFilterChange("remove_filter", "one", "admin_override", now)

	entries := sink.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected entries bounded to max=2, got %d", len(entries))
	}
	if entries[0].Phrase != "two" || entries[1].Phrase != "one" {
		t.Fatalf("expected oldest entry evicted, got %+v", entries)
	}
	if entries[1].Action != "remove_filter" {
		t.Fatalf("expected most recent action preserved, got %+v", entries[1])
	}

	entries[0].Phrase = "mutated"
	if sink.Entries()[0].Phrase == "mutated" {
		t.Fatalf("Entries() must return a copy, mutation leaked into sink")
	}
}

// fakeRedisCmdable implements RedisCmdable over a bare in-memory set, so
// RedisFilteredPhraseMirror can be exercised without a live Redis server.
type fakeRedisCmdable struct {
	sets map[string]map[string]struct{}
}

func newFakeRedisCmdable() *fakeRedisCmdable {
	return &fakeRedisCmdable{sets: make(map[string]map[string]struct{})}
}

func (f *fakeRedisCmdable) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	set, ok := f.sets[key]
	if !ok {
		set = make(map[string]struct{})
		f.sets[key] = set
	}
	var added int64
	for _, m := range members {
		s := m.(string)
		if _, exists := set[s]; !exists {
			set[s] = struct{}{}
			added++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(added)
	return cmd
}

func (f *fakeRedisCmdable) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	var removed int64
	if set, ok := f.sets[key]; ok {
		for _, m := range members {
			s := m.(string)
			if _, exists := set[s]; exists {
				delete(set, s)
				removed++
			}
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(removed)
	return cmd
}

func (f *fakeRedisCmdable) SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	set, ok := f.sets[key]
	if !ok {
		cmd.SetVal(false)
		return cmd
	}
	_, exists := set[member.(string)]
	cmd.SetVal(exists)
	return cmd
}

func (f *fakeRedisCmdable) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(0)
	return cmd
}

func (f *fakeRedisCmdable) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}

func (f *fakeRedisCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}

func (f *fakeRedisCmdable) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedisCmdable) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeRedisCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func TestRedisFilteredPhraseMirror(t *testing.T) {
	client := newFakeRedisCmdable()
	mirror := NewRedisFilteredPhraseMirror(client)
	ctx := context.Background()

	if err := mirror.Add(ctx, "spam"); err != nil {
		t.Fatalf("add: %v", err)
	}
	member, err := mirror.IsMember(ctx, "spam")
	if err != nil {
		t.Fatalf("ismember: %v", err)
	}
	if !member {
		t.Fatalf("expected spam to be a member after add")
	}

	member, err = mirror.IsMember(ctx, "clean")
	if err != nil {
		t.Fatalf("ismember: %v", err)
	}
	if member {
		t.Fatalf("expected clean to not be a member")
	}

	if err := mirror.Remove(ctx, "spam"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	member, err = mirror.IsMember(ctx, "spam")
	if err != nil {
		t.Fatalf("ismember after remove: %v", err)
	}
	if member {
		t.Fatalf("expected spam removed from set")
	}
}

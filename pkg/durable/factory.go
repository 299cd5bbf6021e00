package durable

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Adapters bundles the durable collaborators a suggestion service needs.
// BuildAdapters chooses concrete implementations for each by a string
// mode selector.
type Adapters struct {
	PhraseCounts    PhraseCountStore
	QueryLog        QueryLogSink
	FilteredPhrases FilteredPhraseStore
}

// Options configures real adapter construction. Leave fields empty to
// fall back to the in-memory adapter for that collaborator.
type Options struct {
	PostgresDSN  string
	KafkaBrokers []string
	KafkaTopic   string
}

// BuildAdapters constructs Adapters for the named mode. "memory" (the
// default) requires no external services and is suitable for tests and
// single-process demos; "durable" wires Postgres for phrase counts and
// the filtered-phrase store and Kafka for the query log.
func BuildAdapters(ctx context.Context, mode string, opts Options) (*Adapters, error) {
	switch mode {
	case "", "memory":
		return &Adapters{
			PhraseCounts:    NewMemoryPhraseCountStore(),
			QueryLog:        NewMemoryQueryLogSink(),
			FilteredPhrases: NewMemoryFilteredPhraseStore(),
		}, nil
	case "durable":
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("durable mode requires a postgres DSN")
		}
		pool, err := pgxpool.New(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		topic := opts.KafkaTopic
		if topic == "" {
			topic = "typeahead-query-log"
		}
		var queryLog QueryLogSink
		if len(opts.KafkaBrokers) > 0 {
			queryLog = NewKafkaQueryLogSink(opts.KafkaBrokers, topic)
		} else {
			queryLog = NewMemoryQueryLogSink()
		}
		return &Adapters{
			PhraseCounts:    NewPostgresPhraseCountStore(pool),
			QueryLog:        queryLog,
			FilteredPhrases: NewPostgresFilteredPhraseStore(pool),
		}, nil
	default:
		return nil, fmt.Errorf("unknown durable adapter mode: %s", mode)
	}
}

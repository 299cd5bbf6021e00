package durable

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPhraseCountStore is a PhraseCountStore over the phrase_counts
// table: (phrase text primary key, count bigint not null, last_updated
// timestamp, is_filtered bool).
type PostgresPhraseCountStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPhraseCountStore wraps an already-configured pool. Schema
// management lives outside this module; callers provision the table
// ahead of time.
func NewPostgresPhraseCountStore(pool *pgxpool.Pool) *PostgresPhraseCountStore {
	return &PostgresPhraseCountStore{pool: pool}
}

func (p *PostgresPhraseCountStore) Upsert(ctx context.Context, phrase string, delta int64, now time.Time) error {
	const q = `
		INSERT INTO phrase_counts (phrase, count, last_updated, is_filtered)
		VALUES ($1, $2, $3, false)
		ON CONFLICT (phrase) DO UPDATE
		SET count = phrase_counts.count + EXCLUDED.count,
		    last_updated = EXCLUDED.last_updated`
	_, err := p.pool.Exec(ctx, q, phrase, delta, now)
	return err
}

func (p *PostgresPhraseCountStore) TopN(ctx context.Context, n int) ([]PhraseCountRow, error) {
	const q = `
		SELECT phrase, count, last_updated, is_filtered
		FROM phrase_counts
		WHERE is_filtered = false
		ORDER BY count DESC, phrase ASC
		LIMIT $1`
	rows, err := p.pool.Query(ctx, q, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhraseCountRow
	for rows.Next() {
		var row PhraseCountRow
		if err := rows.Scan(&row.Phrase, &row.Count, &row.LastUpdated, &row.IsFiltered); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PostgresFilteredPhraseStore is a FilteredPhraseStore over the
// filtered_phrases table: (phrase text primary key, reason text,
// added_at timestamp).
type PostgresFilteredPhraseStore struct {
	pool *pgxpool.Pool
}

// NewPostgresFilteredPhraseStore wraps an already-configured pool.
func NewPostgresFilteredPhraseStore(pool *pgxpool.Pool) *PostgresFilteredPhraseStore {
	return &PostgresFilteredPhraseStore{pool: pool}
}

func (p *PostgresFilteredPhraseStore) Add(ctx context.Context, row FilteredPhraseRow) error {
	const q = `
		INSERT INTO filtered_phrases (phrase, reason, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (phrase) DO UPDATE SET reason = EXCLUDED.reason, added_at = EXCLUDED.added_at`
	_, err := p.pool.Exec(ctx, q, row.Phrase, row.Reason, row.AddedAt)
	return err
}

func (p *PostgresFilteredPhraseStore) Remove(ctx context.Context, phrase string) error {
	const q = `DELETE FROM filtered_phrases WHERE phrase = $1`
	_, err := p.pool.Exec(ctx, q, phrase)
	return err
}

func (p *PostgresFilteredPhraseStore) List(ctx context.Context) ([]FilteredPhraseRow, error) {
	const q = `SELECT phrase, reason, added_at FROM filtered_phrases`
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FilteredPhraseRow
	for rows.Next() {
		var row FilteredPhraseRow
		if err := rows.Scan(&row.Phrase, &row.Reason, &row.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

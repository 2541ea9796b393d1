// Package postgres provides a PostgreSQL-backed [journal.Store].
//
// Entries are appended to the utterance_journal table. [Migrate] creates the
// table and its index and is safe to run on every start.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	_ = store.Record(ctx, entry)
package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxshift/internal/journal"
)

const ddlJournal = `
CREATE TABLE IF NOT EXISTS utterance_journal (
    id              UUID         PRIMARY KEY,
    captured_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    text            TEXT         NOT NULL DEFAULT '',
    outcome         TEXT         NOT NULL,
    reason          TEXT         NOT NULL DEFAULT '',
    audio_ns        BIGINT       NOT NULL DEFAULT 0,
    stt_ns          BIGINT       NOT NULL DEFAULT 0,
    tts_ns          BIGINT       NOT NULL DEFAULT 0,
    synth_bytes     INTEGER      NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_utterance_journal_captured_at
    ON utterance_journal (captured_at);
`

// Migrate creates the journal table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlJournal); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Store is a [journal.Store] backed by a pgx connection pool.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres journal: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres journal: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Record implements [journal.Store]. Recording the same ID twice keeps the
// first row.
func (s *Store) Record(ctx context.Context, e journal.Entry) error {
	const q = `
		INSERT INTO utterance_journal
		    (id, captured_at, text, outcome, reason, audio_ns, stt_ns, tts_ns, synth_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	capturedAt := e.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		e.ID.String(),
		capturedAt,
		e.Text,
		string(e.Outcome),
		e.Reason,
		e.AudioDuration.Nanoseconds(),
		e.STTDuration.Nanoseconds(),
		e.TTSDuration.Nanoseconds(),
		e.SynthBytes,
	)
	if err != nil {
		return fmt.Errorf("postgres journal: record: %w", err)
	}
	return nil
}

// Recent implements [journal.Store].
func (s *Store) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	q := `
		SELECT id::text, captured_at, text, outcome, reason, audio_ns, stt_ns, tts_ns, synth_bytes
		FROM   utterance_journal
		ORDER  BY captured_at DESC`
	var args []any
	if limit > 0 {
		q += "\nLIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: recent: %w", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func collectEntries(rows pgx.Rows) ([]journal.Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (journal.Entry, error) {
		var (
			e                     journal.Entry
			id, outcome           string
			audioNS, sttNS, ttsNS int64
		)
		if err := row.Scan(&id, &e.CapturedAt, &e.Text, &outcome, &e.Reason, &audioNS, &sttNS, &ttsNS, &e.SynthBytes); err != nil {
			return journal.Entry{}, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return journal.Entry{}, fmt.Errorf("parse id %q: %w", id, err)
		}
		e.ID = parsed
		e.Outcome = journal.Outcome(outcome)
		e.AudioDuration = time.Duration(audioNS)
		e.STTDuration = time.Duration(sttNS)
		e.TTSDuration = time.Duration(ttsNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres journal: scan rows: %w", err)
	}
	return entries, nil
}

var _ journal.Store = (*Store)(nil)

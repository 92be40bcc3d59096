// Package analytics records per-file tagging outcomes and per-source usage
// counts in a local SQLite database.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store manages analytics persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initialises or connects to the analytics database and creates the
// schema when missing.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tagged_files (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			path        TEXT NOT NULL,
			title       TEXT,
			artist      TEXT,
			album       TEXT,
			score       REAL NOT NULL,
			label       TEXT NOT NULL,
			source      TEXT,
			wrote_tags  INTEGER NOT NULL,
			error       TEXT,
			created_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS source_stats (
			source     TEXT PRIMARY KEY,
			hits       INTEGER NOT NULL DEFAULT 0,
			misses     INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tagged_files_created_at ON tagged_files(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Outcome is one finished file, whatever its result.
type Outcome struct {
	Path      string
	Title     string
	Artist    string
	Album     string
	Score     float64
	Label     string
	Source    string
	WroteTags bool
	Err       error
}

// RecordOutcome appends a row to tagged_files.
func (s *Store) RecordOutcome(ctx context.Context, o Outcome) error {
	var errMessage any
	if o.Err != nil {
		errMessage = o.Err.Error()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tagged_files (
			path, title, artist, album, score, label, source, wrote_tags, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Path,
		nullableString(o.Title),
		nullableString(o.Artist),
		nullableString(o.Album),
		o.Score,
		o.Label,
		nullableString(o.Source),
		boolToInt(o.WroteTags),
		errMessage,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// RecordSource bumps a source's hit or miss count.
func (s *Store) RecordSource(ctx context.Context, source string, hit bool) error {
	hits, misses := 0, 1
	if hit {
		hits, misses = 1, 0
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO source_stats (source, hits, misses, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(source) DO UPDATE SET
			hits = hits + excluded.hits,
			misses = misses + excluded.misses,
			updated_at = excluded.updated_at`,
		source,
		hits,
		misses,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert source stats: %w", err)
	}
	return nil
}

// SourceStat is one row of source_stats.
type SourceStat struct {
	Source string
	Hits   int
	Misses int
}

// Stats aggregates outcomes and source counts for diagnostic output.
type Stats struct {
	TotalFiles int
	ByLabel    map[string]int
	Sources    []SourceStat
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByLabel: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT label, COUNT(1) FROM tagged_files GROUP BY label`)
	if err != nil {
		return Stats{}, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return Stats{}, err
		}
		stats.ByLabel[label] = count
		stats.TotalFiles += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	srows, err := s.db.QueryContext(ctx, `SELECT source, hits, misses FROM source_stats ORDER BY source`)
	if err != nil {
		return Stats{}, fmt.Errorf("query sources: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var st SourceStat
		if err := srows.Scan(&st.Source, &st.Hits, &st.Misses); err != nil {
			return Stats{}, err
		}
		stats.Sources = append(stats.Sources, st)
	}
	return stats, srows.Err()
}

// Recent returns the newest outcomes, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT path, title, artist, album, score, label, source, wrote_tags, error
		 FROM tagged_files ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o          Outcome
			title      sql.NullString
			artist     sql.NullString
			album      sql.NullString
			source     sql.NullString
			wrote      int
			errMessage sql.NullString
		)
		if err := rows.Scan(&o.Path, &title, &artist, &album, &o.Score, &o.Label, &source, &wrote, &errMessage); err != nil {
			return nil, err
		}
		o.Title, o.Artist, o.Album, o.Source = title.String, artist.String, album.String, source.String
		o.WroteTags = wrote != 0
		if errMessage.Valid {
			o.Err = errors.New(errMessage.String)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

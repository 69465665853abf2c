// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive persists run history in SQLite so past opportunities stay
// searchable after later runs overwrite the JSON artifacts.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/tender-radar/pkg/types"
)

const dbFile = "archive.db"

// Store manages the archive SQLite database.
type Store struct {
	db         *sql.DB
	maxResults int
}

// NewStore opens or creates the archive database at Dir/archive.db and
// creates the schema if it does not exist.
func NewStore(cfg types.ArchiveConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{db: db, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			version TEXT,
			total INTEGER,
			shown INTEGER,
			detail_calls INTEGER,
			detail_failures INTEGER,
			parse_failures INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS opportunities (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			source TEXT NOT NULL,
			external_id TEXT NOT NULL,
			title TEXT,
			buyer TEXT,
			status TEXT,
			amount REAL,
			published_at TEXT,
			close_at TEXT,
			days_to_close INTEGER,
			reviewed INTEGER NOT NULL DEFAULT 0,
			score INTEGER NOT NULL,
			url TEXT,
			UNIQUE(run_id, source, external_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_run_id ON opportunities(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_source ON opportunities(source)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='opportunities_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE opportunities_fts USING fts5(title, buyer, content=opportunities, content_rowid=rowid)`,
			`CREATE TRIGGER opportunities_ai AFTER INSERT ON opportunities BEGIN
				INSERT INTO opportunities_fts(rowid, title, buyer) VALUES (new.rowid, new.title, new.buyer);
			END`,
			`CREATE TRIGGER opportunities_ad AFTER DELETE ON opportunities BEGIN
				INSERT INTO opportunities_fts(opportunities_fts, rowid, title, buyer) VALUES('delete', old.rowid, old.title, old.buyer);
			END`,
			`CREATE TRIGGER opportunities_au AFTER UPDATE ON opportunities BEGIN
				INSERT INTO opportunities_fts(opportunities_fts, rowid, title, buyer) VALUES('delete', old.rowid, old.title, old.buyer);
				INSERT INTO opportunities_fts(rowid, title, buyer) VALUES (new.rowid, new.title, new.buyer);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// Record stores one run and its shown opportunities in a single
// transaction. Re-recording a run id replaces its rows; old rows are
// deleted first so the FTS triggers stay in sync.
func (s *Store) Record(ctx context.Context, meta types.RunMeta, opps []types.Opportunity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	total := 0
	for _, n := range meta.Counts.TotalBySource {
		total += n
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, version, total, shown, detail_calls, detail_failures, parse_failures)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			started_at=excluded.started_at, version=excluded.version,
			total=excluded.total, shown=excluded.shown,
			detail_calls=excluded.detail_calls,
			detail_failures=excluded.detail_failures,
			parse_failures=excluded.parse_failures`,
		meta.RunID, meta.LastUpdate, meta.Version, total,
		meta.Counts.Shown, meta.Counts.DetailCalls,
		meta.Counts.DetailFailures, meta.Counts.ParseFailures,
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM opportunities WHERE run_id = ?`, meta.RunID); err != nil {
		return fmt.Errorf("deleting old rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO opportunities
			(run_id, source, external_id, title, buyer, status, amount,
			 published_at, close_at, days_to_close, reviewed, score, url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range opps {
		_, err := stmt.ExecContext(ctx,
			meta.RunID, o.Source, o.ID, o.Title, o.Buyer, o.Status, o.Amount,
			o.PublishedAt, o.CloseAt, o.DaysToClose, o.Reviewed, o.Score, o.URL,
		)
		if err != nil {
			return fmt.Errorf("inserting opportunity %s: %w", o.ID, err)
		}
	}

	return tx.Commit()
}

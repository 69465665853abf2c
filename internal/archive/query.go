// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// QueryOptions holds parameters for archive queries.
type QueryOptions struct {
	// Text is an FTS5 match expression over title and buyer.
	Text string

	// Source filters by feed tag.
	Source string

	// MinScore keeps rows at or above this display score.
	MinScore int

	// Since is an inclusive ISO lower bound on the run timestamp.
	Since string

	// Limit caps result count. Zero uses the store default.
	Limit int
}

// Archived is one persisted opportunity row with its run context.
type Archived struct {
	RunID       string   `json:"run_id" yaml:"run_id"`
	RecordedAt  string   `json:"recorded_at" yaml:"recorded_at"`
	Source      string   `json:"source" yaml:"source"`
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Buyer       string   `json:"buyer,omitempty" yaml:"buyer,omitempty"`
	Status      string   `json:"status,omitempty" yaml:"status,omitempty"`
	Amount      *float64 `json:"amount_clp" yaml:"amount_clp"`
	PublishedAt string   `json:"published_at,omitempty" yaml:"published_at,omitempty"`
	CloseAt     string   `json:"close_at,omitempty" yaml:"close_at,omitempty"`
	DaysToClose *int     `json:"days_to_close,omitempty" yaml:"days_to_close,omitempty"`
	Reviewed    bool     `json:"reviewed" yaml:"reviewed"`
	Score       int      `json:"score" yaml:"score"`
	URL         string   `json:"url,omitempty" yaml:"url,omitempty"`
}

// Query returns archived opportunities matching opts. Full-text queries
// rank by FTS relevance; otherwise rows come back newest run first, best
// score first.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]Archived, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.maxResults
	}

	b := sq.Select(
		"o.run_id", "r.started_at", "o.source", "o.external_id", "o.title",
		"o.buyer", "o.status", "o.amount", "o.published_at", "o.close_at",
		"o.days_to_close", "o.reviewed", "o.score", "o.url",
	)

	if opts.Text != "" {
		b = b.From("opportunities_fts").
			Join("opportunities o ON o.rowid = opportunities_fts.rowid").
			Join("runs r ON r.id = o.run_id").
			Where(sq.Expr("opportunities_fts MATCH ?", opts.Text)).
			OrderBy("opportunities_fts.rank")
	} else {
		b = b.From("opportunities o").
			Join("runs r ON r.id = o.run_id").
			OrderBy("r.started_at DESC", "o.score DESC")
	}

	if opts.Source != "" {
		b = b.Where(sq.Eq{"o.source": opts.Source})
	}
	if opts.MinScore > 0 {
		b = b.Where(sq.GtOrEq{"o.score": opts.MinScore})
	}
	if opts.Since != "" {
		b = b.Where(sq.GtOrEq{"r.started_at": opts.Since})
	}
	b = b.Limit(uint64(limit))

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}
	defer rows.Close()

	var results []Archived
	for rows.Next() {
		var (
			a      Archived
			amount sql.NullFloat64
			days   sql.NullInt64
		)
		if err := rows.Scan(
			&a.RunID, &a.RecordedAt, &a.Source, &a.ID, &a.Title, &a.Buyer,
			&a.Status, &amount, &a.PublishedAt, &a.CloseAt, &days,
			&a.Reviewed, &a.Score, &a.URL,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		if amount.Valid {
			a.Amount = &amount.Float64
		}
		if days.Valid {
			d := int(days.Int64)
			a.DaysToClose = &d
		}
		results = append(results, a)
	}

	return results, rows.Err()
}

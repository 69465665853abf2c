// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package triage runs the per-run scoring pipeline: a cheap preliminary
// ranking over title+buyer picks which items earn a detail fetch, bounded
// enrichment overlays non-empty detail fields onto listing defaults, and a
// final scoring pass decides what is shown. Execution is sequential; detail
// calls are serialized and rate-limited with a fixed inter-call sleep.
package triage

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/tender-radar/internal/registry"
	"github.com/pdiddy/tender-radar/internal/rules"
	"github.com/pdiddy/tender-radar/internal/source"
	"github.com/pdiddy/tender-radar/pkg/types"
)

// Default per-run enrichment budgets. Applied by the CLI's config layer;
// Run itself takes Config values literally.
const (
	DefaultCandidatesTop = 40
	DefaultMaxDetail     = 25
	DefaultDetailSleep   = 500 * time.Millisecond
)

// Feed supplies one source's raw listings. The int reports rows dropped
// while parsing the feed.
type Feed interface {
	List(ctx context.Context) ([]types.Listing, int, error)
}

// FeedFunc adapts a plain function to the Feed interface.
type FeedFunc func(ctx context.Context) ([]types.Listing, int, error)

func (f FeedFunc) List(ctx context.Context) ([]types.Listing, int, error) { return f(ctx) }

// Detailer fetches the enrichment record for one opportunity code.
type Detailer interface {
	Fetch(ctx context.Context, code string) (*types.DetailRecord, error)
}

// Config carries the run budgets. Zero values mean what they say: no
// candidates, no detail calls, no sleep.
type Config struct {
	// CandidatesTop caps how many top-ranked items are detail-eligible.
	CandidatesTop int

	// MaxDetail caps detail-fetch attempts across the whole run.
	MaxDetail int

	// DetailSleep is applied after every detail attempt, success or not.
	DetailSleep time.Duration

	// SkipReviewed drops already-reviewed items from the shown set. They
	// still score, count, and merge into the registry.
	SkipReviewed bool
}

// Deps are the collaborators for one run. Detail maps source tag to its
// detail fetcher; sources without an entry are never enriched. Profiles must
// contain a compiled rule profile for every source a feed emits.
type Deps struct {
	Feeds    []Feed
	Detail   map[string]Detailer
	Profiles map[string]*rules.Compiled
	Reviewed map[string]bool
	Registry registry.Registry
	Now      func() time.Time
	Zone     *time.Location
}

// Result is the outcome of one completed run.
type Result struct {
	Shown   []types.Opportunity
	Counts  types.RunCounts
	Budgets types.RunBudgets
}

// Run executes the pipeline. A feed error or a missing rule profile is
// fatal and returns before any registry mutation; per-item detail and date
// failures degrade the item and are counted, never fatal. Warnings go to w.
func Run(ctx context.Context, deps Deps, cfg Config, w io.Writer) (*Result, error) {
	if w == nil {
		w = io.Discard
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	zone := deps.Zone
	if zone == nil {
		zone = time.UTC
	}

	var (
		all           []types.Listing
		parseFailures int
		totalBySource = map[string]int{}
	)
	for _, feed := range deps.Feeds {
		listings, failed, err := feed.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching listings: %w", err)
		}
		parseFailures += failed
		for _, l := range listings {
			totalBySource[l.Source]++
		}
		all = append(all, listings...)
	}

	for _, l := range all {
		if deps.Profiles[l.Source] == nil {
			return nil, fmt.Errorf("no rule profile for source %q", l.Source)
		}
	}

	eligible := selectCandidates(all, deps.Profiles, cfg.CandidatesTop)

	now := nowFn()
	nowIso := now.UTC().Format(time.RFC3339)

	var (
		opportunities  = make([]types.Opportunity, 0, len(all))
		detailCalls    int
		detailFailures int
	)
	for _, item := range all {
		prof := deps.Profiles[item.Source]

		var detail *types.DetailRecord
		if detailCalls < cfg.MaxDetail && eligible[runKey(item)] {
			if fetcher := deps.Detail[item.Source]; fetcher != nil {
				detailCalls++
				rec, err := fetcher.Fetch(ctx, item.ID)
				if err != nil {
					detailFailures++
					fmt.Fprintf(w, "warning: detail %s %s: %v\n", item.Source, item.ID, err)
				} else {
					detail = rec
				}
				if cfg.DetailSleep > 0 {
					time.Sleep(cfg.DetailSleep)
				}
			}
		}

		merged, description := overlay(item, detail)
		sd := prof.Score(scoreText(merged.Title, merged.Buyer, description), merged.Amount)

		var days *int
		if merged.CloseRaw != "" {
			if closeAt := source.ParseDate(merged.CloseRaw, zone); closeAt != nil {
				d := int(math.Ceil(closeAt.Sub(now).Seconds() / 86400))
				if d < 0 {
					d = 0
				}
				days = &d
			} else {
				parseFailures++
				fmt.Fprintf(w, "warning: unparseable close date %q for %s %s\n", merged.CloseRaw, item.Source, item.ID)
			}
		}

		opp := types.Opportunity{
			Source:      item.Source,
			ID:          item.ID,
			Title:       merged.Title,
			Buyer:       merged.Buyer,
			Status:      merged.Status,
			Amount:      merged.Amount,
			PublishedAt: merged.PublishedRaw,
			CloseAt:     merged.CloseRaw,
			DaysToClose: days,
			Reviewed:    deps.Reviewed[item.ID],
			Score:       sd.Display,
			ScoreDetail: sd,
			URL:         merged.URL,
		}
		opportunities = append(opportunities, opp)

		if deps.Registry != nil {
			deps.Registry.Merge(item.Source, item.ID, registry.Observation{
				Title:    opp.Title,
				Buyer:    opp.Buyer,
				URL:      opp.URL,
				Score:    opp.Score,
				Reviewed: opp.Reviewed,
			}, nowIso)
		}
	}

	shown := make([]types.Opportunity, 0, len(opportunities))
	for _, o := range opportunities {
		if cfg.SkipReviewed && o.Reviewed {
			continue
		}
		if o.Score >= deps.Profiles[o.Source].ShowMin() {
			shown = append(shown, o)
		}
	}
	sort.SliceStable(shown, func(i, j int) bool { return shown[i].Score > shown[j].Score })

	return &Result{
		Shown: shown,
		Counts: types.RunCounts{
			TotalBySource:  totalBySource,
			Shown:          len(shown),
			DetailCalls:    detailCalls,
			DetailFailures: detailFailures,
			ParseFailures:  parseFailures,
		},
		Budgets: types.RunBudgets{
			CandidatesTop: cfg.CandidatesTop,
			MaxDetail:     cfg.MaxDetail,
			DetailSleepMS: cfg.DetailSleep.Milliseconds(),
		},
	}, nil
}

// selectCandidates ranks every item by a cheap title+buyer score with no
// amount and returns the keys of the top n. The sort is stable so unchanged
// inputs yield the same candidate set across runs.
func selectCandidates(items []types.Listing, profiles map[string]*rules.Compiled, n int) map[string]bool {
	type ranked struct {
		key   string
		score float64
	}
	rs := make([]ranked, len(items))
	for i, it := range items {
		sd := profiles[it.Source].Score(scoreText(it.Title, it.Buyer), nil)
		rs[i] = ranked{key: runKey(it), score: sd.Total}
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].score > rs[j].score })

	eligible := make(map[string]bool, n)
	for i := 0; i < len(rs) && i < n; i++ {
		eligible[rs[i].key] = true
	}
	return eligible
}

// overlay merges non-empty detail fields onto the listing. Empty detail
// fields never erase a usable listing value. The description is returned
// separately; it feeds scoring but is not emitted.
func overlay(l types.Listing, d *types.DetailRecord) (types.Listing, string) {
	if d == nil {
		return l, ""
	}
	if d.Buyer != "" {
		l.Buyer = d.Buyer
	}
	if d.PublishedAt != "" {
		l.PublishedRaw = d.PublishedAt
	}
	if d.CloseAt != "" {
		l.CloseRaw = d.CloseAt
	}
	if d.Status != "" {
		l.Status = d.Status
	}
	if d.Amount != nil {
		l.Amount = d.Amount
	}
	return l, d.Description
}

func scoreText(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func runKey(l types.Listing) string { return l.Source + ":" + l.ID }

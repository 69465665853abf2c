// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package triage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/tender-radar/internal/registry"
	"github.com/pdiddy/tender-radar/internal/rules"
	"github.com/pdiddy/tender-radar/pkg/types"
)

func fptr(v float64) *float64 { return &v }

// testProfile scores "encuest(a|as)" at weight 3 of max 12, bands the amount
// at 100M CLP, and shows items scoring 8 or more of 20.
func testProfile(showMin int) *rules.Compiled {
	p := rules.Profile{
		Weights:   rules.Weights{Keywords: 0.7, Amount: 0.3},
		MaxPoints: 12,
		Keywords: rules.Keywords{
			Include: []rules.Pattern{{Pattern: "encuest(a|as)", Weight: 3}},
			Exclude: []rules.Pattern{{Pattern: "aseo", Weight: 2}},
		},
		AmountBands: []rules.Band{
			{Max: fptr(100_000_000), Points: 2, Label: "under_100m"},
			{Min: fptr(100_000_000), Points: 7, Label: "over_100m"},
		},
		AmountMaxPoints: 7,
		Thresholds:      rules.Thresholds{DisplayMaxScore: 20, ShowMinScore: showMin},
	}
	return rules.Compile(p, io.Discard)
}

type fakeFeed struct {
	listings []types.Listing
	failed   int
	err      error
}

func (f *fakeFeed) List(ctx context.Context) ([]types.Listing, int, error) {
	return f.listings, f.failed, f.err
}

type fakeDetailer struct {
	records map[string]*types.DetailRecord
	errs    map[string]error
	calls   []string
}

func (f *fakeDetailer) Fetch(ctx context.Context, code string) (*types.DetailRecord, error) {
	f.calls = append(f.calls, code)
	if err := f.errs[code]; err != nil {
		return nil, err
	}
	if rec := f.records[code]; rec != nil {
		return rec, nil
	}
	return nil, errors.New("no detail record")
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
}

func listing(id, title, buyer string) types.Listing {
	return types.Listing{Source: types.SourceLicitaciones, ID: id, Title: title, Buyer: buyer}
}

func TestRunScoresAndFilters(t *testing.T) {
	feed := &fakeFeed{listings: []types.Listing{
		listing("1-1-LE26", "Servicio de aseo general", "Municipalidad"),
		listing("2-2-LE26", "Encuesta de satisfacción", "GORE Los Ríos"),
	}}

	res, err := Run(context.Background(), Deps{
		Feeds:    []Feed{feed},
		Profiles: map[string]*rules.Compiled{types.SourceLicitaciones: testProfile(4)},
		Now:      fixedNow,
	}, Config{}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Only the survey item passes show_min 4 (display 4 vs 0).
	if len(res.Shown) != 1 {
		t.Fatalf("len(Shown) = %d, want 1", len(res.Shown))
	}
	if res.Shown[0].ID != "2-2-LE26" {
		t.Errorf("Shown[0].ID = %q, want 2-2-LE26", res.Shown[0].ID)
	}
	if res.Shown[0].Score != 4 {
		t.Errorf("Score = %d, want 4", res.Shown[0].Score)
	}
	if res.Counts.TotalBySource[types.SourceLicitaciones] != 2 {
		t.Errorf("TotalBySource = %v, want licitaciones:2", res.Counts.TotalBySource)
	}
	if res.Counts.Shown != 1 {
		t.Errorf("Counts.Shown = %d, want 1", res.Counts.Shown)
	}
}

func TestRunEnrichmentLiftsItemOverThreshold(t *testing.T) {
	feed := &fakeFeed{listings: []types.Listing{
		listing("2-2-LE26", "Encuesta de satisfacción", "GORE Los Ríos"),
	}}
	det := &fakeDetailer{records: map[string]*types.DetailRecord{
		"2-2-LE26": {
			ID:          "2-2-LE26",
			Buyer:       "Gobierno Regional de Los Ríos",
			Amount:      fptr(150_000_000),
			Description: "Aplicación de encuesta en terreno.",
		},
	}}

	res, err := Run(context.Background(), Deps{
		Feeds:    []Feed{feed},
		Detail:   map[string]Detailer{types.SourceLicitaciones: det},
		Profiles: map[string]*rules.Compiled{types.SourceLicitaciones: testProfile(8)},
		Now:      fixedNow,
	}, Config{CandidatesTop: 10, MaxDetail: 10}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Listing-only the item scores display 4 and would be hidden; the
	// detail amount lands in the 100M+ band and lifts it to 10.
	if len(res.Shown) != 1 {
		t.Fatalf("len(Shown) = %d, want 1", len(res.Shown))
	}
	opp := res.Shown[0]
	if opp.Score != 10 {
		t.Errorf("Score = %d, want 10", opp.Score)
	}
	if opp.Buyer != "Gobierno Regional de Los Ríos" {
		t.Errorf("Buyer = %q, want detail buyer", opp.Buyer)
	}
	if opp.Amount == nil || *opp.Amount != 150_000_000 {
		t.Errorf("Amount = %v, want 150000000", opp.Amount)
	}
	if opp.ScoreDetail.AmountBand != "over_100m" {
		t.Errorf("AmountBand = %q, want over_100m", opp.ScoreDetail.AmountBand)
	}
	if res.Counts.DetailCalls != 1 {
		t.Errorf("DetailCalls = %d, want 1", res.Counts.DetailCalls)
	}
}

func TestRunEmptyDetailFieldsKeepListingValues(t *testing.T) {
	feed := &fakeFeed{listings: []types.Listing{
		{
			Source: types.SourceLicitaciones, ID: "2-2-LE26",
			Title: "Encuesta", Buyer: "Municipalidad de Ñuñoa",
			CloseRaw: "2026-09-01", Status: "activa",
		},
	}}
	det := &fakeDetailer{records: map[string]*types.DetailRecord{
		"2-2-LE26": {ID: "2-2-LE26", Description: "solo descripción"},
	}}

	res, err := Run(context.Background(), Deps{
		Feeds:    []Feed{feed},
		Detail:   map[string]Detailer{types.SourceLicitaciones: det},
		Profiles: map[string]*rules.Compiled{types.SourceLicitaciones: testProfile(0)},
		Now:      fixedNow,
	}, Config{CandidatesTop: 10, MaxDetail: 10}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	opp := res.Shown[0]
	if opp.Buyer != "Municipalidad de Ñuñoa" {
		t.Errorf("Buyer = %q, empty detail buyer must not erase it", opp.Buyer)
	}
	if opp.CloseAt != "2026-09-01" {
		t.Errorf("CloseAt = %q, want listing value", opp.CloseAt)
	}
	if opp.Status != "activa" {
		t.Errorf("Status = %q, want listing value", opp.Status)
	}
}

func TestRunDetailBudget(t *testing.T) {
	// Prelim ranking: B and C match the include pattern, A does not.
	feed := &fakeFeed{listings: []types.Listing{
		listing("A-1-LE26", "Servicio de aseo", ""),
		listing("B-2-LE26", "Encuesta regional", ""),
		listing("C-3-LE26", "Encuestas comunales", ""),
	}}
	det := &fakeDetailer{}

	res, err := Run(context.Background(), Deps{
		Feeds:    []Feed{feed},
		Detail:   map[string]Detailer{types.SourceLicitaciones: det},
		Profiles: map[string]*rules.Compiled{types.SourceLicitaciones: testProfile(1)},
		Now:      fixedNow,
	}, Config{CandidatesTop: 2, MaxDetail: 1}, io.Discard)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Iteration is in original order, so B (the first eligible item)
	// consumes the single detail slot.
	if len(det.calls) != 1 || det.calls[0] != "B-2-LE26" {
		t.Errorf("detail calls = %v, want [B-2-LE26]", det.calls)
	}
	if res.Counts.DetailCalls != 1 {
		t.Errorf("DetailCalls = %d, want 1", res.Counts.DetailCalls)
	}
	// The failed fetch for B is counted and non-fatal.
	if res.Counts.DetailFailures != 1 {
		t.Errorf("DetailFailures = %d, want 1", res.Counts.DetailFailures)
	}
	if len(res.Shown) != 2 {
		t.Errorf("len(Shown) = %d, want 2 despite the failure", len(res.Shown))
	}
}

func TestRunDetailFailureKeepsListingData(t *testing.T) {
	feed := &fakeFeed{listings: []types.Listing{
		listing("2-2-LE26", "Encuesta de satisfacción", "GORE"),
	}}
	det := &fakeDetailer{errs: map[string]error{"2-2-LE26": errors.New("HTTP 500")}}

	var warnings bytes.Buffer
	res, err := Run(context.Background(), Deps{
		Feeds:    []Feed{feed},
		Detail:   map[string]Detailer{types.SourceLicitaciones: det},
		Profiles: map[string]*rules.Compiled{types.SourceLicitaciones: testProfile(0)},
		Now:      fixedNow,
	}, Config{CandidatesTop: 10, MaxDetail: 10}, &warnings)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Counts.DetailFailures != 1 {
		t.Errorf("DetailFailures = %d, want 1", res.Counts.DetailFailures)
	}
	if len(res.Shown) != 1 || res.Shown[0].Score != 4 {
		t.Errorf("Shown = %+v, want the listing-only item at score 4", res.Shown)
	}
	if !strings.Contains(warnings.String(), "warning: detail licitaciones 2-2-LE26") {
		t.Errorf("warnings = %q, want detail warning", warnings.String())
	}
}

func TestRunFeedErrorIsFatal(t *testing.T) {
	feed := &fakeFeed{err: errors.New("HTTP 500 from upstream")}

	res, err := Run(context.Background(), Deps{
		Feeds:    []Feed{feed},
		Profiles: map[string]*rules.Compiled{types.SourceLicitaciones: testProfile(0)},
	}, Config{}, nil)
	if err == nil {
		t.Fatal("Run() error = nil, want fetch error")
	}
	if res != nil {
		t.Errorf("Run() result = %+v, want nil on fatal error", res)
	}
}

func TestRunMissingProfileIsFatal(t *testing.T) {
	feed := &fakeFeed{listings: []types.Listing{
		{Source: types.SourceCompraAgil, ID: "9-9-CA26", Title: "Difusión"},
	}}

	_, err := Run(context.Background(), Deps{
		Feeds:    []Feed{feed},
		Profiles: map[string]*rules.Compiled{types.SourceLicitaciones: testProfile(0)},
	}, Config{}, nil)
	if err == nil || !strings.Contains(err.Error(), "compra_agil") {
		t.Errorf("Run() error = %v, want missing-profile error naming compra_agil", err)
	}
}

func TestRunDaysToClose(t *testing.T) {
	tests := []struct {
		name     string
		closeRaw string
		want     *int
		failures int
	}{
		{"future close", "2026-08-28 18:00:00", iptr(4), 0},
		{"past close clamps to zero", "2026-08-20", iptr(0), 0},
		{"unparseable counts as failure", "mañana", nil, 1},
		{"absent close", "", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := &fakeFeed{listings: []types.Listing{{
				Source: types.SourceLicitaciones, ID: "2-2-LE26",
				Title: "Encuesta", CloseRaw: tt.closeRaw,
			}}}
			res, err := Run(context.Background(), Deps{
				Feeds:    []Feed{feed},
				Profiles: map[string]*rules.Compiled{types.SourceLicitaciones: testProfile(0)},
				Now:      fixedNow,
				Zone:     time.UTC,
			}, Config{}, io.Discard)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			got := res.Shown[0].DaysToClose
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("DaysToClose = %d, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("DaysToClose = nil, want %d", *tt.want)
			case tt.want != nil && got != nil && *got != *tt.want:
				t.Errorf("DaysToClose = %d, want %d", *got, *tt.want)
			}
			if res.Counts.ParseFailures != tt.failures {
				t.Errorf("ParseFailures = %d, want %d", res.Counts.ParseFailures, tt.failures)
			}
		})
	}
}

func TestRunReviewedFlagAndRegistry(t *testing.T) {
	feed := &fakeFeed{listings: []types.Listing{
		listing("2-2-LE26", "Encuesta de satisfacción", "GORE"),
		listing("3-3-LE26", "Encuesta comunal", "Municipalidad"),
	}}
	reg := registry.Registry{}

	res, err := Run(context.Background(), Deps{
		Feeds:    []Feed{feed},
		Profiles: map[string]*rules.Compiled{types.SourceLicitaciones: testProfile(0)},
		Reviewed: map[string]bool{"2-2-LE26": true},
		Registry: reg,
		Now:      fixedNow,
	}, Config{}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	byID := map[string]types.Opportunity{}
	for _, o := range res.Shown {
		byID[o.ID] = o
	}
	if !byID["2-2-LE26"].Reviewed {
		t.Error("Reviewed = false for id in reviewed set")
	}
	if byID["3-3-LE26"].Reviewed {
		t.Error("Reviewed = true for id outside reviewed set")
	}

	// Every item is merged into the registry, reviewed or not.
	if len(reg) != 2 {
		t.Fatalf("len(registry) = %d, want 2", len(reg))
	}
	e := reg["licitaciones:2-2-LE26"]
	if e == nil {
		t.Fatal("registry entry for licitaciones:2-2-LE26 missing")
	}
	if !e.Reviewed || e.TimesSeen != 1 {
		t.Errorf("entry = %+v, want reviewed with times_seen 1", e)
	}
	if e.FirstSeenAt != "2026-08-25T12:00:00Z" {
		t.Errorf("FirstSeenAt = %q, want run timestamp", e.FirstSeenAt)
	}
	if e.LastScore != byID["2-2-LE26"].Score {
		t.Errorf("LastScore = %d, want %d", e.LastScore, byID["2-2-LE26"].Score)
	}
}

func TestRunSkipReviewedDropsFromShownOnly(t *testing.T) {
	feed := &fakeFeed{listings: []types.Listing{
		listing("2-2-LE26", "Encuesta de satisfacción", "GORE"),
		listing("3-3-LE26", "Encuesta comunal", "Municipalidad"),
	}}
	reg := registry.Registry{}

	res, err := Run(context.Background(), Deps{
		Feeds:    []Feed{feed},
		Profiles: map[string]*rules.Compiled{types.SourceLicitaciones: testProfile(0)},
		Reviewed: map[string]bool{"2-2-LE26": true},
		Registry: reg,
		Now:      fixedNow,
	}, Config{SkipReviewed: true}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Shown) != 1 || res.Shown[0].ID != "3-3-LE26" {
		t.Fatalf("Shown = %+v, want only the unreviewed item", res.Shown)
	}
	if res.Counts.Shown != 1 {
		t.Errorf("Counts.Shown = %d, want 1", res.Counts.Shown)
	}

	// The skipped item still reaches the registry.
	e := reg["licitaciones:2-2-LE26"]
	if e == nil || !e.Reviewed {
		t.Errorf("registry entry for skipped item = %+v, want reviewed entry", e)
	}
}

func TestRunSortsByScoreStable(t *testing.T) {
	// Same score for the two survey items; the exclude match zeroes the
	// last one out of the shown list entirely.
	feed := &fakeFeed{listings: []types.Listing{
		listing("1-1-LE26", "Encuesta A", ""),
		listing("2-2-LE26", "Servicio de aseo", ""),
		listing("3-3-LE26", "Encuesta B", ""),
	}}

	res, err := Run(context.Background(), Deps{
		Feeds:    []Feed{feed},
		Profiles: map[string]*rules.Compiled{types.SourceLicitaciones: testProfile(1)},
		Now:      fixedNow,
	}, Config{}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Shown) != 2 {
		t.Fatalf("len(Shown) = %d, want 2", len(res.Shown))
	}
	if res.Shown[0].ID != "1-1-LE26" || res.Shown[1].ID != "3-3-LE26" {
		t.Errorf("order = [%s %s], want tied items in input order",
			res.Shown[0].ID, res.Shown[1].ID)
	}
}

func TestRunPerSourceThresholds(t *testing.T) {
	feeds := []Feed{
		&fakeFeed{listings: []types.Listing{
			listing("1-1-LE26", "Encuesta A", ""),
		}},
		&fakeFeed{listings: []types.Listing{
			{Source: types.SourceCompraAgil, ID: "9-9-CA26", Title: "Encuesta B"},
		}, failed: 2},
	}

	res, err := Run(context.Background(), Deps{
		Feeds: feeds,
		Profiles: map[string]*rules.Compiled{
			types.SourceLicitaciones: testProfile(4),
			types.SourceCompraAgil:   testProfile(8),
		},
		Now: fixedNow,
	}, Config{}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Both score display 4; only licitaciones' threshold admits it.
	if len(res.Shown) != 1 || res.Shown[0].Source != types.SourceLicitaciones {
		t.Errorf("Shown = %+v, want only the licitaciones item", res.Shown)
	}
	if res.Counts.ParseFailures != 2 {
		t.Errorf("ParseFailures = %d, want feed's dropped-row count", res.Counts.ParseFailures)
	}
	if res.Counts.TotalBySource[types.SourceCompraAgil] != 1 {
		t.Errorf("TotalBySource = %v, want compra_agil:1", res.Counts.TotalBySource)
	}
}

func TestRunSleepsAfterEveryAttempt(t *testing.T) {
	feed := &fakeFeed{listings: []types.Listing{
		listing("1-1-LE26", "Encuesta A", ""),
		listing("2-2-LE26", "Encuesta B", ""),
	}}
	det := &fakeDetailer{
		records: map[string]*types.DetailRecord{"1-1-LE26": {ID: "1-1-LE26"}},
		errs:    map[string]error{"2-2-LE26": errors.New("HTTP 500")},
	}

	start := time.Now()
	_, err := Run(context.Background(), Deps{
		Feeds:    []Feed{feed},
		Detail:   map[string]Detailer{types.SourceLicitaciones: det},
		Profiles: map[string]*rules.Compiled{types.SourceLicitaciones: testProfile(0)},
		Now:      fixedNow,
	}, Config{CandidatesTop: 10, MaxDetail: 10, DetailSleep: 20 * time.Millisecond}, io.Discard)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// One success and one failure both sleep.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 40ms of inter-call sleep", elapsed)
	}
}

func TestRunNoDetailerMeansNoAttempts(t *testing.T) {
	feed := &fakeFeed{listings: []types.Listing{
		{Source: types.SourceCompraAgil, ID: "9-9-CA26", Title: "Encuesta"},
	}}

	res, err := Run(context.Background(), Deps{
		Feeds:    []Feed{feed},
		Profiles: map[string]*rules.Compiled{types.SourceCompraAgil: testProfile(0)},
		Now:      fixedNow,
	}, Config{CandidatesTop: 10, MaxDetail: 10}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Counts.DetailCalls != 0 {
		t.Errorf("DetailCalls = %d, want 0 without a detailer", res.Counts.DetailCalls)
	}
}

func TestRunBudgetsReported(t *testing.T) {
	res, err := Run(context.Background(), Deps{
		Feeds:    []Feed{&fakeFeed{}},
		Profiles: map[string]*rules.Compiled{},
		Now:      fixedNow,
	}, Config{CandidatesTop: 40, MaxDetail: 25, DetailSleep: 500 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := types.RunBudgets{CandidatesTop: 40, MaxDetail: 25, DetailSleepMS: 500}
	if res.Budgets != want {
		t.Errorf("Budgets = %+v, want %+v", res.Budgets, want)
	}
}

func iptr(v int) *int { return &v }

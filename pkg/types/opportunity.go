// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Source tags for the two procurement feeds.
const (
	SourceLicitaciones = "licitaciones"
	SourceCompraAgil   = "compra_agil"
)

// Listing is the normalized view of one raw upstream record. Upstream field
// names vary between sources and API revisions; alias extraction happens once
// in internal/source and the rest of the pipeline sees only this shape.
type Listing struct {
	// Source is the feed tag ("licitaciones" or "compra_agil").
	Source string `json:"source" yaml:"source"`

	// ID is the external opportunity code (e.g. "1057-5-LE24").
	ID string `json:"id" yaml:"id"`

	// Title is the listing name as published.
	Title string `json:"title" yaml:"title"`

	// Buyer is the purchasing organism.
	Buyer string `json:"buyer" yaml:"buyer"`

	// PublishedRaw and CloseRaw carry the upstream timestamp strings
	// unparsed; date parsing is deferred and per-item recoverable.
	PublishedRaw string `json:"published_raw,omitempty" yaml:"published_raw,omitempty"`
	CloseRaw     string `json:"close_raw,omitempty" yaml:"close_raw,omitempty"`

	// Amount is the estimated amount in CLP, nil when the listing carries
	// no usable amount (common for the activas endpoint).
	Amount *float64 `json:"amount,omitempty" yaml:"amount,omitempty"`

	// Status is the upstream status string, when present.
	Status string `json:"status,omitempty" yaml:"status,omitempty"`

	// URL is the canonical public detail page for the listing.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// DetailRecord is the normalized enrichment payload for one listing,
// produced by parsing a detail response. The raw response is cached on disk
// before parsing; see internal/fetchcache.
type DetailRecord struct {
	ID               string   `json:"id" yaml:"id"`
	Buyer            string   `json:"buyer,omitempty" yaml:"buyer,omitempty"`
	PublishedAt      string   `json:"published_at,omitempty" yaml:"published_at,omitempty"`
	CloseAt          string   `json:"close_at,omitempty" yaml:"close_at,omitempty"`
	QuestionsCloseAt string   `json:"questions_close_at,omitempty" yaml:"questions_close_at,omitempty"`
	Status           string   `json:"status,omitempty" yaml:"status,omitempty"`
	Amount           *float64 `json:"amount,omitempty" yaml:"amount,omitempty"`
	Description      string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// PatternHit records one matched scoring pattern for auditability.
type PatternHit struct {
	Pattern string  `json:"pattern" yaml:"pattern"`
	Weight  float64 `json:"weight" yaml:"weight"`
	Note    string  `json:"note,omitempty" yaml:"note,omitempty"`
}

// ScoreDetail is the audit record attached to every scored item. It is
// regenerated whenever scoring reruns; the preliminary and final passes each
// produce an independent instance.
type ScoreDetail struct {
	// IncludeHits and ExcludeHits list every matched pattern with its
	// configured weight and note.
	IncludeHits []PatternHit `json:"include_hits,omitempty" yaml:"include_hits,omitempty"`
	ExcludeHits []PatternHit `json:"exclude_hits,omitempty" yaml:"exclude_hits,omitempty"`

	// KeywordRaw is the signed sum of matched weights before normalization.
	KeywordRaw float64 `json:"keyword_raw" yaml:"keyword_raw"`

	// KeywordScore and AmountScore are the normalized 0-10 sub-scores.
	KeywordScore float64 `json:"keyword_score" yaml:"keyword_score"`
	AmountScore  float64 `json:"amount_score" yaml:"amount_score"`

	// AmountBand is the label of the selected amount band, empty when the
	// amount was unknown.
	AmountBand string `json:"amount_band,omitempty" yaml:"amount_band,omitempty"`

	// Gated reports whether the keyword gate forced the total to zero.
	Gated bool `json:"gated" yaml:"gated"`

	// Total is the blended 0-10 score; Display is its integer projection
	// onto the configured display range.
	Total   float64 `json:"total" yaml:"total"`
	Display int     `json:"display" yaml:"display"`
}

// Opportunity is the emitted unit: one scored, possibly enriched listing.
// Assembled once per raw item per run and never mutated afterwards. Only the
// registry survives across runs.
type Opportunity struct {
	Source      string      `json:"source" yaml:"source"`
	ID          string      `json:"id" yaml:"id"`
	Title       string      `json:"title" yaml:"title"`
	Buyer       string      `json:"buyer,omitempty" yaml:"buyer,omitempty"`
	Status      string      `json:"status,omitempty" yaml:"status,omitempty"`
	Amount      *float64    `json:"amount_clp" yaml:"amount_clp"`
	PublishedAt string      `json:"published_at,omitempty" yaml:"published_at,omitempty"`
	CloseAt     string      `json:"close_at,omitempty" yaml:"close_at,omitempty"`
	DaysToClose *int        `json:"days_to_close,omitempty" yaml:"days_to_close,omitempty"`
	Reviewed    bool        `json:"reviewed" yaml:"reviewed"`
	Score       int         `json:"score" yaml:"score"`
	ScoreDetail ScoreDetail `json:"score_detail" yaml:"score_detail"`
	URL         string      `json:"url,omitempty" yaml:"url,omitempty"`
}

// RunCounts summarizes one run for the metadata artifact.
type RunCounts struct {
	TotalBySource  map[string]int `json:"total_by_source" yaml:"total_by_source"`
	Shown          int            `json:"shown" yaml:"shown"`
	DetailCalls    int            `json:"detail_calls" yaml:"detail_calls"`
	DetailFailures int            `json:"detail_failures" yaml:"detail_failures"`
	ParseFailures  int            `json:"parse_failures" yaml:"parse_failures"`
}

// RunBudgets records the triage budgets a run was executed with.
type RunBudgets struct {
	CandidatesTop int   `json:"candidates_top" yaml:"candidates_top"`
	MaxDetail     int   `json:"max_detail" yaml:"max_detail"`
	DetailSleepMS int64 `json:"detail_sleep_ms" yaml:"detail_sleep_ms"`
}

// RunMeta is the metadata object written alongside opportunities.json.
type RunMeta struct {
	RunID      string     `json:"run_id" yaml:"run_id"`
	LastUpdate string     `json:"last_update_iso" yaml:"last_update_iso"`
	Counts     RunCounts  `json:"counts" yaml:"counts"`
	Budgets    RunBudgets `json:"budgets" yaml:"budgets"`
	Version    string     `json:"version" yaml:"version"`
}

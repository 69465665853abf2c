package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "tender-radar/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// MaxRetries bounds retry attempts for transient failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ScanConfig holds settings for a full triage run.
type ScanConfig struct {
	HTTPConfig `yaml:",inline"`

	// Sources selects the feeds to ingest: "licitaciones", "compra_agil".
	Sources []string `json:"sources" yaml:"sources"`

	// RulesPath points at the scoring rule document (YAML).
	RulesPath string `json:"rules_path" yaml:"rules_path"`

	// OutDir receives opportunities.json, meta.json and registry.json.
	OutDir string `json:"out_dir" yaml:"out_dir"`

	// CacheDir is the detail-response disk cache directory.
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// CacheTTL expires cache entries older than this; zero disables expiry.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`

	// RegistryPath is the cross-run ledger file.
	RegistryPath string `json:"registry_path" yaml:"registry_path"`

	// XLSXPath is the Compra Ágil spreadsheet consumed when the
	// compra_agil source is enabled.
	XLSXPath string `json:"xlsx_path" yaml:"xlsx_path"`

	// CandidatesTop caps how many top-ranked items become detail-eligible.
	CandidatesTop int `json:"candidates_top" yaml:"candidates_top"`

	// MaxDetail caps detail-fetch attempts per run.
	MaxDetail int `json:"max_detail" yaml:"max_detail"`

	// DetailSleep is the pause after every detail attempt, success or not.
	DetailSleep time.Duration `json:"detail_sleep" yaml:"detail_sleep"`

	// Ticket authenticates against the licitaciones API.
	Ticket string `json:"ticket,omitempty" yaml:"ticket,omitempty"`

	// ReviewedRepo is the "owner/name" issue repository holding reviewed
	// opportunity codes; empty disables the reviewed-set lookup.
	ReviewedRepo string `json:"reviewed_repo,omitempty" yaml:"reviewed_repo,omitempty"`

	// ReviewedToken is an optional API token for the issue tracker.
	ReviewedToken string `json:"reviewed_token,omitempty" yaml:"reviewed_token,omitempty"`

	// SkipReviewed drops already-reviewed items from the published set.
	SkipReviewed bool `json:"skip_reviewed" yaml:"skip_reviewed"`

	// ArchiveDir, when non-empty, records the run into the SQLite archive.
	ArchiveDir string `json:"archive_dir,omitempty" yaml:"archive_dir,omitempty"`
}

// ExcelConfig holds settings for the Compra Ágil spreadsheet download.
type ExcelConfig struct {
	HTTPConfig `yaml:",inline"`

	// APIKey is the x-api-key value for the buscador endpoint.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Days selects the date window ending today when DateFrom/DateTo are
	// not given explicitly (default 30).
	Days int `json:"days" yaml:"days"`

	// DateFrom and DateTo override the window (YYYY-MM-DD).
	DateFrom string `json:"date_from,omitempty" yaml:"date_from,omitempty"`
	DateTo   string `json:"date_to,omitempty" yaml:"date_to,omitempty"`

	// OutPath is where the spreadsheet is written.
	OutPath string `json:"out_path" yaml:"out_path"`
}

// ArchiveConfig holds settings for the run archive.
type ArchiveConfig struct {
	// Dir contains archive.db.
	Dir string `json:"dir" yaml:"dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

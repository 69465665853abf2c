package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/tender-radar/internal/archive"
	"github.com/pdiddy/tender-radar/internal/fetchcache"
	"github.com/pdiddy/tender-radar/internal/output"
	"github.com/pdiddy/tender-radar/internal/registry"
	"github.com/pdiddy/tender-radar/internal/reviewed"
	"github.com/pdiddy/tender-radar/internal/rules"
	"github.com/pdiddy/tender-radar/internal/source"
	"github.com/pdiddy/tender-radar/internal/triage"
	"github.com/pdiddy/tender-radar/pkg/types"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultUserAgent  = "tender-radar/0.1"
	defaultMaxRetries = 3

	defaultRulesPath    = "config/rules.yml"
	defaultOutDir       = "docs/data"
	defaultCacheDir     = "data/cache"
	defaultRegistryPath = "data/registry.json"
	defaultXLSXPath     = "data/compra-agil.xlsx"
	defaultArchiveDir   = "data/archive"

	// Close dates on Mercado Público are local Chilean times.
	santiagoZone = "America/Santiago"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Fetch, score and rank active procurement listings",
	Long: `Scan pulls the enabled listing feeds, enriches the top-ranked
candidates with per-tender detail, scores every item against the rule
document, and writes opportunities.json, meta.json and the sighting
registry. With --archive the run is also recorded into the SQLite
archive.`,
	RunE: runScan,
}

func init() {
	addScanFlags(scanCmd)
	rootCmd.AddCommand(scanCmd)
}

// addScanFlags registers the shared triage-run flags. The watch command
// reuses them so a scheduled run accepts the same overrides.
func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("sources", nil, "feeds to scan: licitaciones, compra_agil")
	cmd.Flags().String("rules", "", "scoring rule document (default config/rules.yml)")
	cmd.Flags().String("out-dir", "", "artifact directory (default docs/data)")
	cmd.Flags().String("cache-dir", "", "detail response cache directory (default data/cache)")
	cmd.Flags().Duration("cache-ttl", 0, "cache entry lifetime; 0 keeps entries forever")
	cmd.Flags().String("registry", "", "sighting registry path (default data/registry.json)")
	cmd.Flags().String("xlsx", "", "Compra Ágil spreadsheet path (default data/compra-agil.xlsx)")
	cmd.Flags().Int("candidates-top", 0, "detail-eligible candidates per run (default 40)")
	cmd.Flags().Int("max-detail", 0, "detail fetch attempts per run (default 25)")
	cmd.Flags().Duration("detail-sleep", 0, "pause after each detail attempt (default 500ms)")
	cmd.Flags().String("ticket", "", "Mercado Público API ticket")
	cmd.Flags().String("reviewed-repo", "", "owner/name issue repository holding reviewed codes")
	cmd.Flags().Bool("skip-reviewed", false, "drop reviewed items from the published set")
	cmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	cmd.Flags().Int("max-retries", 0, "retry attempts for transient HTTP failures (default 3)")
	cmd.Flags().Bool("archive", false, "record the run into the SQLite archive")
	cmd.Flags().String("archive-dir", "", "archive directory (default data/archive)")
}

func runScan(cmd *cobra.Command, args []string) error {
	return executeScan(scanConfig(cmd))
}

// scanConfig assembles the run configuration from flags, the config
// file and built-in defaults, in that order of precedence.
func scanConfig(cmd *cobra.Command) types.ScanConfig {
	sources, _ := cmd.Flags().GetStringSlice("sources")
	if len(sources) == 0 {
		sources = viper.GetStringSlice("scan.sources")
	}
	if len(sources) == 0 {
		sources = []string{types.SourceLicitaciones}
	}

	ticket, _ := cmd.Flags().GetString("ticket")
	skipReviewed, _ := cmd.Flags().GetBool("skip-reviewed")
	if !skipReviewed {
		skipReviewed = viper.GetBool("scan.skip_reviewed")
	}
	archiveDir := stringSetting(cmd, "archive-dir", "archive.dir", "")
	if on, _ := cmd.Flags().GetBool("archive"); on && archiveDir == "" {
		archiveDir = defaultArchiveDir
	}

	ua := viper.GetString("http.user_agent")
	if ua == "" {
		ua = defaultUserAgent
	}

	return types.ScanConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:    durationSetting(cmd, "timeout", "http.timeout", defaultTimeout),
			UserAgent:  ua,
			MaxRetries: intSetting(cmd, "max-retries", "http.max_retries", defaultMaxRetries),
		},
		Sources:       sources,
		RulesPath:     stringSetting(cmd, "rules", "scan.rules", defaultRulesPath),
		OutDir:        stringSetting(cmd, "out-dir", "scan.out_dir", defaultOutDir),
		CacheDir:      stringSetting(cmd, "cache-dir", "scan.cache_dir", defaultCacheDir),
		CacheTTL:      durationSetting(cmd, "cache-ttl", "scan.cache_ttl", 0),
		RegistryPath:  stringSetting(cmd, "registry", "scan.registry", defaultRegistryPath),
		XLSXPath:      stringSetting(cmd, "xlsx", "scan.xlsx", defaultXLSXPath),
		CandidatesTop: intSetting(cmd, "candidates-top", "scan.candidates_top", triage.DefaultCandidatesTop),
		MaxDetail:     intSetting(cmd, "max-detail", "scan.max_detail", triage.DefaultMaxDetail),
		DetailSleep:   durationSetting(cmd, "detail-sleep", "scan.detail_sleep", triage.DefaultDetailSleep),
		Ticket:        secretDefault("mp-ticket", ticket, "MP_TICKET"),
		ReviewedRepo:  stringSetting(cmd, "reviewed-repo", "scan.reviewed_repo", ""),
		ReviewedToken: secretDefault("github-token", "", "GITHUB_TOKEN"),
		SkipReviewed:  skipReviewed,
		ArchiveDir:    archiveDir,
	}
}

// executeScan runs one full triage pass. Configuration and feed
// failures abort before any artifact is written.
func executeScan(cfg types.ScanConfig) error {
	ctx := context.Background()

	doc, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: cfg.Timeout}
	fetcher := &fetchcache.Fetcher{
		Client:     client,
		Cache:      &fetchcache.Cache{Dir: cfg.CacheDir, TTL: cfg.CacheTTL},
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
		Warnings:   os.Stderr,
	}

	deps := triage.Deps{
		Detail:   map[string]triage.Detailer{},
		Profiles: map[string]*rules.Compiled{},
	}
	for _, src := range cfg.Sources {
		switch src {
		case types.SourceLicitaciones:
			if cfg.Ticket == "" {
				return fmt.Errorf("mercado público ticket is not set: use --ticket, MP_TICKET, or .secrets/mp-ticket")
			}
			lic := &source.LicitacionesClient{Fetcher: fetcher, Ticket: cfg.Ticket}
			deps.Feeds = append(deps.Feeds, triage.FeedFunc(lic.FetchActive))
			deps.Detail[src] = &source.DetailClient{Fetcher: fetcher, Ticket: cfg.Ticket}
		case types.SourceCompraAgil:
			feed := &source.ExcelFeed{Path: cfg.XLSXPath}
			deps.Feeds = append(deps.Feeds, triage.FeedFunc(func(ctx context.Context) ([]types.Listing, int, error) {
				return feed.Load()
			}))
		default:
			return fmt.Errorf("unknown source %q", src)
		}
		deps.Profiles[src] = rules.Compile(doc.Resolve(src), os.Stderr)
	}

	if cfg.ReviewedRepo != "" {
		loader := &reviewed.Loader{Client: client, Repo: cfg.ReviewedRepo, Token: cfg.ReviewedToken}
		deps.Reviewed = loader.Load(ctx, os.Stderr)
	}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return err
	}
	deps.Registry = reg

	zone, err := time.LoadLocation(santiagoZone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: loading %s zone: %v\n", santiagoZone, err)
		zone = time.UTC
	}
	deps.Zone = zone

	res, err := triage.Run(ctx, deps, triage.Config{
		CandidatesTop: cfg.CandidatesTop,
		MaxDetail:     cfg.MaxDetail,
		DetailSleep:   cfg.DetailSleep,
		SkipReviewed:  cfg.SkipReviewed,
	}, os.Stderr)
	if err != nil {
		return err
	}

	writer := output.Writer{Dir: cfg.OutDir, RegistryPath: cfg.RegistryPath, Version: version}
	meta, err := writer.Write(res, reg, time.Now())
	if err != nil {
		return err
	}

	if cfg.ArchiveDir != "" {
		store, err := archive.NewStore(types.ArchiveConfig{Dir: cfg.ArchiveDir})
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer store.Close()
		if err := store.Record(ctx, meta, res.Shown); err != nil {
			return fmt.Errorf("archiving run: %w", err)
		}
	}

	total := 0
	for _, n := range res.Counts.TotalBySource {
		total += n
	}
	fmt.Printf("run %s: %d listed, %d shown, %d detail calls (%d failed), %d parse failures\n",
		meta.RunID, total, res.Counts.Shown, res.Counts.DetailCalls, res.Counts.DetailFailures, res.Counts.ParseFailures)
	fmt.Printf("wrote %s\n", filepath.Join(cfg.OutDir, output.OpportunitiesFile))
	return nil
}

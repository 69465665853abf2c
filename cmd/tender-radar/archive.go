package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/tender-radar/internal/archive"
	"github.com/pdiddy/tender-radar/internal/output"
	"github.com/pdiddy/tender-radar/pkg/types"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Query and export archived triage runs",
	Long: `Archive inspects the SQLite run history written by scan --archive.
Every recorded opportunity keeps its run context, so past runs stay
searchable after the published artifacts move on.`,
}

// --- store subcommand ---

var archiveStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Record a run's published artifacts into the archive",
	Long: `Store reads opportunities.json and meta.json from an artifact
directory and records them as one run. Storing the same run ID again
replaces its rows. scan --archive does this in-process; store covers
artifacts produced elsewhere.`,
	RunE: runArchiveStore,
}

func runArchiveStore(cmd *cobra.Command, args []string) error {
	inDir := stringSetting(cmd, "in", "scan.out_dir", defaultOutDir)

	meta, opps, err := readRunArtifacts(inDir)
	if err != nil {
		return err
	}

	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Record(context.Background(), meta, opps); err != nil {
		return fmt.Errorf("archiving run: %w", err)
	}
	fmt.Printf("Recorded run %s: %d opportunities\n", meta.RunID, len(opps))
	return nil
}

func readRunArtifacts(dir string) (types.RunMeta, []types.Opportunity, error) {
	var meta types.RunMeta
	data, err := os.ReadFile(filepath.Join(dir, output.MetaFile))
	if err != nil {
		return meta, nil, fmt.Errorf("reading meta: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, nil, fmt.Errorf("parsing meta: %w", err)
	}

	var opps []types.Opportunity
	data, err = os.ReadFile(filepath.Join(dir, output.OpportunitiesFile))
	if err != nil {
		return meta, nil, fmt.Errorf("reading opportunities: %w", err)
	}
	if err := json.Unmarshal(data, &opps); err != nil {
		return meta, nil, fmt.Errorf("parsing opportunities: %w", err)
	}
	return meta, opps, nil
}

// --- query subcommand ---

var archiveQueryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search archived opportunities",
	Long: `Query searches the run archive. With a text argument it runs a
full-text match over title and buyer, ranked by relevance; otherwise
rows come back newest run first, best score first. Filters combine.`,
	RunE: runArchiveQuery,
}

func runArchiveQuery(cmd *cobra.Command, args []string) error {
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts, err := archiveOptsFromFlags(cmd, args)
	if err != nil {
		return err
	}

	results, err := store.Query(context.Background(), opts)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatQueryOutput(results, jsonOutput)
}

func formatQueryOutput(results []archive.Archived, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-5s  %-44s  %-24s  %-12s  %s\n",
		"Rank", "Score", "Title", "Buyer", "Source", "Close")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))

	for i, r := range results {
		title := r.Title
		if len(title) > 44 {
			title = title[:41] + "..."
		}
		buyer := r.Buyer
		if len(buyer) > 24 {
			buyer = buyer[:21] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-5d  %-44s  %-24s  %-12s  %s\n",
			i+1, r.Score, title, buyer, r.Source, r.CloseAt)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- export subcommand ---

var archiveExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export archived opportunities to YAML or JSON",
	Long: `Export writes archived opportunities to a file. Supports the same
filter flags as query for partial exports.`,
	RunE: runArchiveExport,
}

func runArchiveExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("out")

	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts, err := archiveOptsFromFlags(cmd, args)
	if err != nil {
		return err
	}

	switch format {
	case "yaml", "":
		if outPath == "" {
			outPath = "archive-export.yaml"
		}
		if err := store.ExportYAML(context.Background(), opts, outPath); err != nil {
			return err
		}
	case "json":
		if outPath == "" {
			outPath = "archive-export.json"
		}
		if err := store.ExportJSON(context.Background(), opts, outPath); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	fmt.Println("Exported to", outPath)
	return nil
}

// --- shared helpers ---

func openArchive(cmd *cobra.Command) (*archive.Store, error) {
	return archive.NewStore(types.ArchiveConfig{
		Dir:        stringSetting(cmd, "dir", "archive.dir", defaultArchiveDir),
		MaxResults: viper.GetInt("archive.max_results"),
	})
}

func archiveOptsFromFlags(cmd *cobra.Command, args []string) (archive.QueryOptions, error) {
	src, _ := cmd.Flags().GetString("source")
	minScore, _ := cmd.Flags().GetInt("min-score")
	since, _ := cmd.Flags().GetString("since")
	limit, _ := cmd.Flags().GetInt("limit")

	if since != "" {
		if _, err := time.Parse(time.RFC3339, since); err != nil {
			return archive.QueryOptions{}, fmt.Errorf("parsing --since: %w", err)
		}
	}

	return archive.QueryOptions{
		Text:     strings.Join(args, " "),
		Source:   src,
		MinScore: minScore,
		Since:    since,
		Limit:    limit,
	}, nil
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	archiveCmd.PersistentFlags().String("dir", "", "archive directory (default data/archive)")
	archiveCmd.PersistentFlags().String("source", "", "filter by source: licitaciones, compra_agil")
	archiveCmd.PersistentFlags().Int("min-score", 0, "minimum display score")
	archiveCmd.PersistentFlags().String("since", "", "only runs recorded at or after this RFC 3339 time")
	archiveCmd.PersistentFlags().Int("limit", 0, "maximum results (0 = use default)")

	// Store flags.
	archiveStoreCmd.Flags().String("in", "", "artifact directory to ingest (default docs/data)")

	// Query flags.
	archiveQueryCmd.Flags().Bool("json", false, "print results as JSON")

	// Export flags.
	archiveExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	archiveExportCmd.Flags().String("out", "", "output path (default archive-export.<format>)")

	archiveCmd.AddCommand(archiveStoreCmd)
	archiveCmd.AddCommand(archiveQueryCmd)
	archiveCmd.AddCommand(archiveExportCmd)
	rootCmd.AddCommand(archiveCmd)
}

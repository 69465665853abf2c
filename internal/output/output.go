// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package output writes the run artifacts: the shown-opportunities array,
// the run metadata object, and the persisted registry ledger. Artifacts are
// written only after a run completes; a fatal pipeline error must leave all
// three untouched, which callers get by simply not calling Write.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/tender-radar/internal/registry"
	"github.com/pdiddy/tender-radar/internal/triage"
	"github.com/pdiddy/tender-radar/pkg/types"
)

// Artifact file names under Writer.Dir.
const (
	OpportunitiesFile = "opportunities.json"
	MetaFile          = "meta.json"
)

// Writer persists one run's artifacts.
type Writer struct {
	// Dir receives opportunities.json and meta.json.
	Dir string

	// RegistryPath is where the registry ledger is saved; empty skips it.
	RegistryPath string

	// Version is stamped into meta.json.
	Version string
}

// Write persists the artifacts for a completed run and returns the metadata
// it wrote, including the freshly minted run id. Each file goes through a
// temp file and rename.
func (w Writer) Write(res *triage.Result, reg registry.Registry, now time.Time) (types.RunMeta, error) {
	meta := types.RunMeta{
		RunID:      uuid.NewString(),
		LastUpdate: now.UTC().Format(time.RFC3339),
		Counts:     res.Counts,
		Budgets:    res.Budgets,
		Version:    w.Version,
	}

	shown := res.Shown
	if shown == nil {
		shown = []types.Opportunity{}
	}

	if err := writeJSON(filepath.Join(w.Dir, OpportunitiesFile), shown); err != nil {
		return types.RunMeta{}, err
	}
	if err := writeJSON(filepath.Join(w.Dir, MetaFile), meta); err != nil {
		return types.RunMeta{}, err
	}
	if w.RegistryPath != "" {
		if err := reg.Save(w.RegistryPath); err != nil {
			return types.RunMeta{}, err
		}
	}
	return meta, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".out-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

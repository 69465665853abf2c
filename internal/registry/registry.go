// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package registry keeps the cross-run ledger of every opportunity the
// pipeline has ever observed, keyed by "source:id". The ledger is loaded
// once at run start, merged in memory, and written once at run end; it is
// not safe for concurrent writers.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Entry is one opportunity's history across runs.
type Entry struct {
	Source      string `json:"source"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Buyer       string `json:"buyer"`
	URL         string `json:"url"`
	FirstSeenAt string `json:"first_seen_at"`
	LastSeenAt  string `json:"last_seen_at"`
	TimesSeen   int    `json:"times_seen"`
	Reviewed    bool   `json:"reviewed"`
	LastScore   int    `json:"last_score"`
}

// Observation is what a single run contributes to an entry.
type Observation struct {
	Title    string
	Buyer    string
	URL      string
	Score    int
	Reviewed bool
}

// Registry maps "source:id" to that opportunity's entry.
type Registry map[string]*Entry

// Load reads the registry file at path. A missing file yields an empty
// registry; any other failure is an error.
func Load(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Registry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}

	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", path, err)
	}
	if r == nil {
		r = Registry{}
	}
	return r, nil
}

// Merge folds one observation into the registry and returns the updated
// entry. first_seen_at is set only the first time a source:id appears, and
// reviewed never drops back to false once set; title, buyer, url and
// last_score always track the latest observation.
func (r Registry) Merge(source, id string, obs Observation, nowIso string) *Entry {
	key := source + ":" + id
	e, ok := r[key]
	if !ok {
		e = &Entry{Source: source, ID: id, FirstSeenAt: nowIso}
		r[key] = e
	}

	e.LastSeenAt = nowIso
	e.TimesSeen++
	e.Reviewed = e.Reviewed || obs.Reviewed
	e.LastScore = obs.Score
	e.Title = obs.Title
	e.Buyer = obs.Buyer
	e.URL = obs.URL
	return e
}

// Save writes the registry to path through a temp file and rename so an
// interrupted run cannot leave a truncated ledger behind.
func (r Registry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating registry dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing registry: %w", writeErr)
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

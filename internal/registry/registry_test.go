// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMergeNewEntry(t *testing.T) {
	r := Registry{}
	obs := Observation{
		Title:    "Encuesta de satisfacción",
		Buyer:    "Municipalidad de Ñuñoa",
		URL:      "https://example.com/1057-5-LE26",
		Score:    12,
		Reviewed: false,
	}

	e := r.Merge("licitaciones", "1057-5-LE26", obs, "2026-08-25T10:00:00Z")

	if e.Source != "licitaciones" || e.ID != "1057-5-LE26" {
		t.Errorf("identity = %s:%s, want licitaciones:1057-5-LE26", e.Source, e.ID)
	}
	if e.FirstSeenAt != "2026-08-25T10:00:00Z" {
		t.Errorf("FirstSeenAt = %q, want %q", e.FirstSeenAt, "2026-08-25T10:00:00Z")
	}
	if e.LastSeenAt != "2026-08-25T10:00:00Z" {
		t.Errorf("LastSeenAt = %q, want %q", e.LastSeenAt, "2026-08-25T10:00:00Z")
	}
	if e.TimesSeen != 1 {
		t.Errorf("TimesSeen = %d, want 1", e.TimesSeen)
	}
	if e.LastScore != 12 {
		t.Errorf("LastScore = %d, want 12", e.LastScore)
	}
	if e.Title != obs.Title || e.Buyer != obs.Buyer || e.URL != obs.URL {
		t.Errorf("observation fields not copied: %+v", e)
	}
	if r["licitaciones:1057-5-LE26"] != e {
		t.Error("entry not stored under source:id key")
	}
}

func TestMergeExistingEntry(t *testing.T) {
	r := Registry{}
	r.Merge("licitaciones", "1057-5-LE26", Observation{Title: "old title", Score: 5}, "2026-08-24T10:00:00Z")
	e := r.Merge("licitaciones", "1057-5-LE26", Observation{Title: "new title", Score: 9}, "2026-08-25T10:00:00Z")

	if e.FirstSeenAt != "2026-08-24T10:00:00Z" {
		t.Errorf("FirstSeenAt = %q, want first-merge timestamp", e.FirstSeenAt)
	}
	if e.LastSeenAt != "2026-08-25T10:00:00Z" {
		t.Errorf("LastSeenAt = %q, want latest timestamp", e.LastSeenAt)
	}
	if e.TimesSeen != 2 {
		t.Errorf("TimesSeen = %d, want 2", e.TimesSeen)
	}
	if e.Title != "new title" {
		t.Errorf("Title = %q, want latest observation", e.Title)
	}
	if e.LastScore != 9 {
		t.Errorf("LastScore = %d, want 9", e.LastScore)
	}
	if len(r) != 1 {
		t.Errorf("len(r) = %d, want 1", len(r))
	}
}

func TestMergeReviewedNeverReverts(t *testing.T) {
	r := Registry{}
	r.Merge("compra_agil", "9001-1-CA26", Observation{Reviewed: true}, "2026-08-24T10:00:00Z")
	e := r.Merge("compra_agil", "9001-1-CA26", Observation{Reviewed: false}, "2026-08-25T10:00:00Z")

	if !e.Reviewed {
		t.Error("Reviewed = false after a reviewed observation, want true")
	}
}

func TestMergeDistinctSourcesKeepSeparateEntries(t *testing.T) {
	r := Registry{}
	r.Merge("licitaciones", "100-1-LE26", Observation{}, "2026-08-25T10:00:00Z")
	r.Merge("compra_agil", "100-1-LE26", Observation{}, "2026-08-25T10:00:00Z")

	if len(r) != 2 {
		t.Errorf("len(r) = %d, want 2", len(r))
	}
}

func TestLoadMissingFile(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "registry.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(r) != 0 {
		t.Errorf("len(r) = %d, want 0", len(r))
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestLoadNullDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte("null"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r == nil {
		t.Error("Load() returned nil registry for null document")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "registry.json")

	r := Registry{}
	r.Merge("licitaciones", "1057-5-LE26", Observation{
		Title: "Encuesta de satisfacción", Buyer: "Municipalidad de Ñuñoa",
		URL: "https://example.com/a", Score: 12, Reviewed: true,
	}, "2026-08-25T10:00:00Z")
	r.Merge("compra_agil", "9001-1-CA26", Observation{
		Title: "Difusión radial", Score: 7,
	}, "2026-08-25T10:00:00Z")

	if err := r.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, r) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, r)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")

	r := Registry{}
	r.Merge("licitaciones", "1-1-LE26", Observation{}, "2026-08-25T10:00:00Z")
	if err := r.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "registry.json" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("dir contents = %v, want only registry.json", names)
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rules loads the scoring rule document, resolves per-source
// profiles, and evaluates listings against them.
//
// A rule document is either a single flat profile (the legacy layout) or a
// "defaults" profile plus "by_source" overrides. Resolution deep-merges the
// override onto the defaults: nested maps merge key by key, scalars and
// arrays from the override replace the default wholesale.
package rules

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// FallbackSource is the profile used when an unknown source key is resolved.
const FallbackSource = "licitaciones"

// Pattern is one weighted regex rule.
type Pattern struct {
	Pattern string  `yaml:"pattern" json:"pattern"`
	Weight  float64 `yaml:"weight" json:"weight"`
	Note    string  `yaml:"note,omitempty" json:"note,omitempty"`
}

// Keywords groups the include and exclude pattern lists.
type Keywords struct {
	Include []Pattern `yaml:"include" json:"include"`
	Exclude []Pattern `yaml:"exclude" json:"exclude"`
}

// Weights holds the blend weights for the two sub-scores. They are
// renormalized to sum to 1 before use.
type Weights struct {
	Keywords float64 `yaml:"keywords" json:"keywords"`
	Amount   float64 `yaml:"amount" json:"amount"`
}

// Band is one half-open amount range [Min, Max). A nil Min means no lower
// bound; a nil Max means no upper bound. The last configured band acts as
// the catch-all.
type Band struct {
	Min    *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max    *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Points float64  `yaml:"points" json:"points"`
	Label  string   `yaml:"label" json:"label"`
}

// Thresholds holds gate and display settings. GateOnKeywords is a pointer
// so an absent key keeps the default (enabled) rather than reading as false.
type Thresholds struct {
	GateOnKeywords  *bool   `yaml:"gate_on_keywords,omitempty" json:"gate_on_keywords,omitempty"`
	DisplayMaxScore float64 `yaml:"display_max_score" json:"display_max_score"`
	ShowMinScore    int     `yaml:"show_min_score" json:"show_min_score"`
}

// Profile is a resolved rule configuration for one source.
type Profile struct {
	Weights         Weights    `yaml:"weights" json:"weights"`
	MaxPoints       float64    `yaml:"max_points" json:"max_points"`
	Keywords        Keywords   `yaml:"keywords" json:"keywords"`
	AmountBands     []Band     `yaml:"amount_bands" json:"amount_bands"`
	AmountMaxPoints float64    `yaml:"amount_max_points" json:"amount_max_points"`
	Thresholds      Thresholds `yaml:"thresholds" json:"thresholds"`
}

// Document is a parsed rule file prior to per-source resolution.
type Document struct {
	raw map[string]any
}

// Load reads and parses the rule document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules %s: %w", path, err)
	}
	return ParseDocument(data)
}

// ParseDocument parses YAML rule data.
func ParseDocument(data []byte) (*Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return &Document{raw: raw}, nil
}

// Resolve produces the effective profile for sourceKey. Documents without a
// by_source section are treated as a single legacy profile shared by every
// source. An unknown sourceKey falls back to the "licitaciones" override
// when present, otherwise to the defaults alone. Resolve is pure: it never
// mutates the document.
func (d *Document) Resolve(sourceKey string) Profile {
	bySource, ok := d.raw["by_source"].(map[string]any)
	if !ok {
		return decodeProfile(d.raw)
	}

	defaults, _ := d.raw["defaults"].(map[string]any)
	override, ok := bySource[sourceKey].(map[string]any)
	if !ok {
		override, _ = bySource[FallbackSource].(map[string]any)
	}
	return decodeProfile(deepMerge(defaults, override))
}

// deepMerge returns a new map combining base and override. Nested maps merge
// recursively; any other value from override (scalars, arrays) replaces the
// base value wholesale.
func deepMerge(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, ov := range override {
		bm, baseIsMap := merged[k].(map[string]any)
		om, overrideIsMap := ov.(map[string]any)
		if baseIsMap && overrideIsMap {
			merged[k] = deepMerge(bm, om)
			continue
		}
		merged[k] = ov
	}
	return merged
}

// decodeProfile converts a merged rule map into a typed Profile via a YAML
// round-trip, which keeps the struct tags as the single field mapping.
func decodeProfile(m map[string]any) Profile {
	var p Profile
	if len(m) == 0 {
		return p
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return p
	}
	yaml.Unmarshal(data, &p)
	return p
}

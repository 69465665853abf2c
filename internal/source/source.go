// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source implements the upstream listing feeds: the licitaciones
// JSON API, its per-item detail endpoint, and the Compra Ágil spreadsheet.
//
// Upstream payloads rename fields between API revisions, so every logical
// field is read through an ordered alias list: the first
// present-and-non-empty value wins. The alias tables live here, isolated
// from scoring; a new upstream spelling is a one-line addition.
package source

import (
	"strconv"
	"strings"
	"time"
)

// Item is one raw upstream record.
type Item map[string]any

// First returns the first present-and-non-empty value among keys.
func First(item Item, keys ...string) any {
	for _, k := range keys {
		v, ok := item[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

// FirstString is First restricted to scalar values, converted to a trimmed
// string. Nested objects and arrays are treated as absent.
func FirstString(item Item, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(item[k]); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// dateLayouts covers the timestamp formats observed across the API and the
// spreadsheet export. Longer layouts come first within each family so
// seconds are not silently dropped.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02-01-2006",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

// ParseDate parses s against the known layouts. Zone-less values are
// interpreted in loc (UTC when nil). Returns nil when no layout matches;
// date parse failures are recoverable per item.
func ParseDate(s string, loc *time.Location) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t
		}
	}
	return nil
}

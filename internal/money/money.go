// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package money parses locale-ambiguous monetary strings into CLP amounts.
//
// Upstream feeds mix Chilean formatting (dot thousands, comma decimal) with
// plain and US-style numbers. All disambiguation lives in this one decision
// table so the rest of the pipeline never touches separator heuristics:
//
//	only dots            -> dots are thousands separators ("1.500.000")
//	single comma, no dot -> comma is the decimal separator ("1234,5")
//	multiple commas      -> commas are thousands separators ("1,234,567")
//	dot and comma        -> the last separator is the decimal one
package money

import (
	"strconv"
	"strings"
)

// currencyTokens are stripped before separator analysis, longest first so
// "US$" never leaves a dangling "$".
var currencyTokens = []string{"CLP$", "US$", "USD", "CLP", "UF", "$"}

// Parse converts a monetary string to a CLP amount. It returns nil when the
// string is empty or carries no parseable number.
func Parse(s string) *float64 {
	cleaned := normalize(s)
	if cleaned == "" {
		return nil
	}

	dots := strings.Count(cleaned, ".")
	commas := strings.Count(cleaned, ",")

	switch {
	case commas == 0 && dots > 0:
		// "1.500.000", "45.000": dot groups are thousands.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	case commas == 1 && dots == 0:
		// "1234,5": the comma is the decimal mark.
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case commas > 1 && dots == 0:
		// "1,234,567": comma groups are thousands.
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case commas > 0 && dots > 0:
		// Mixed separators: whichever appears last is the decimal mark.
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			// "1.234.567,89": Chilean style.
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			// "1,234,567.89": US style.
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// FromAny converts a raw upstream value (string, JSON number, int, float)
// to a CLP amount, or nil when no usable number is present.
func FromAny(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		f := n
		return &f
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case string:
		return Parse(n)
	default:
		return nil
	}
}

// normalize strips currency tokens, whitespace (including NBSP) and anything
// that cannot be part of a number. It returns "" when no digit remains.
func normalize(s string) string {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	for _, tok := range currencyTokens {
		upper = strings.ReplaceAll(upper, tok, "")
	}

	var b strings.Builder
	hasDigit := false
	for _, r := range upper {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
			b.WriteRune(r)
		case r == '.' || r == ',':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == ' ':
			// separators between symbol and digits
		default:
			// Any other rune means this is not a plain amount ("n/a",
			// "consultar", "2 cuotas").
			return ""
		}
	}
	if !hasDigit {
		return ""
	}
	return b.String()
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rules

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"

	"github.com/pdiddy/tender-radar/pkg/types"
)

// Scoring defaults applied when the profile leaves a knob unset or
// non-positive.
const (
	DefaultMaxPoints       = 12.0
	DefaultAmountMaxPoints = 7.0
	DefaultDisplayMax      = 20.0

	defaultKeywordWeight = 0.7
	defaultAmountWeight  = 0.3
)

// Compiled is an immutable, ready-to-evaluate profile. Regexes are compiled
// once; scoring itself allocates only the per-call hit lists, so one
// Compiled can score a whole run.
type Compiled struct {
	include []compiledPattern
	exclude []compiledPattern

	maxPoints       float64
	amountBands     []Band
	amountMaxPoints float64

	wKeywords  float64
	wAmount    float64
	gate       bool
	displayMax float64
	showMin    int
}

type compiledPattern struct {
	re      *regexp.Regexp
	pattern string
	weight  float64
	note    string
}

// Compile prepares a resolved profile for evaluation. Patterns that fail to
// compile are reported as warnings on w and skipped; a broken rule never
// aborts a run.
func Compile(p Profile, w io.Writer) *Compiled {
	c := &Compiled{
		include:         compilePatterns(p.Keywords.Include, "include", w),
		exclude:         compilePatterns(p.Keywords.Exclude, "exclude", w),
		maxPoints:       p.MaxPoints,
		amountBands:     p.AmountBands,
		amountMaxPoints: p.AmountMaxPoints,
		displayMax:      p.Thresholds.DisplayMaxScore,
		gate:            true,
		showMin:         p.Thresholds.ShowMinScore,
	}

	if c.maxPoints <= 0 {
		c.maxPoints = DefaultMaxPoints
	}
	if c.amountMaxPoints <= 0 {
		c.amountMaxPoints = DefaultAmountMaxPoints
	}
	if c.displayMax <= 0 {
		c.displayMax = DefaultDisplayMax
	}
	if p.Thresholds.GateOnKeywords != nil {
		c.gate = *p.Thresholds.GateOnKeywords
	}

	sum := p.Weights.Keywords + p.Weights.Amount
	if sum > 0 {
		c.wKeywords = p.Weights.Keywords / sum
		c.wAmount = p.Weights.Amount / sum
	} else {
		c.wKeywords = defaultKeywordWeight
		c.wAmount = defaultAmountWeight
	}

	return c
}

func compilePatterns(patterns []Pattern, kind string, w io.Writer) []compiledPattern {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			if w != nil {
				fmt.Fprintf(w, "warning: skipping %s pattern %q: %v\n", kind, p.Pattern, err)
			}
			continue
		}
		compiled = append(compiled, compiledPattern{
			re:      re,
			pattern: p.Pattern,
			weight:  p.Weight,
			note:    p.Note,
		})
	}
	return compiled
}

// KeywordScore holds the keyword sub-score with its audit trail.
type KeywordScore struct {
	Raw         float64
	Score       float64 // normalized 0-10
	IncludeHits []types.PatternHit
	ExcludeHits []types.PatternHit
}

// ScoreKeywords evaluates every pattern against text. Each include pattern
// contributes its weight at most once no matter how often it matches; each
// matching exclude pattern subtracts its weight. The normalized score is
// clamped to [0, 10], so pure-exclude texts score 0 rather than negative.
func (c *Compiled) ScoreKeywords(text string) KeywordScore {
	lowered := strings.ToLower(text)

	var ks KeywordScore
	for _, p := range c.include {
		if p.re.MatchString(lowered) {
			ks.Raw += p.weight
			ks.IncludeHits = append(ks.IncludeHits, types.PatternHit{
				Pattern: p.pattern, Weight: p.weight, Note: p.note,
			})
		}
	}
	for _, p := range c.exclude {
		if p.re.MatchString(lowered) {
			ks.Raw -= p.weight
			ks.ExcludeHits = append(ks.ExcludeHits, types.PatternHit{
				Pattern: p.pattern, Weight: p.weight, Note: p.note,
			})
		}
	}

	ks.Score = clamp(ks.Raw/c.maxPoints*10, 0, 10)
	return ks
}

// AmountScore holds the amount sub-score with its audit trail.
type AmountScore struct {
	Amount *float64
	Band   string  // label of the selected band, "" when amount is unknown
	Points float64 // raw band points
	Score  float64 // normalized 0-10
}

// ScoreAmount maps an amount into its configured band. Bands are scanned in
// configured order and the first [min, max) match wins; a nil bound is open
// on that side. With no match the last band applies as the catch-all. A nil
// amount scores 0 with no band.
func (c *Compiled) ScoreAmount(amount *float64) AmountScore {
	if amount == nil || len(c.amountBands) == 0 {
		return AmountScore{Amount: amount}
	}

	a := *amount
	band := c.amountBands[len(c.amountBands)-1]
	for _, b := range c.amountBands {
		if (b.Min == nil || a >= *b.Min) && (b.Max == nil || a < *b.Max) {
			band = b
			break
		}
	}

	return AmountScore{
		Amount: amount,
		Band:   band.Label,
		Points: band.Points,
		Score:  clamp(band.Points/c.amountMaxPoints*10, 0, 10),
	}
}

// Blend combines the two sub-scores with the normalized weights. When the
// keyword gate is enabled and the keyword sub-score is zero or below, the
// total is forced to 0: a large amount alone never rescues an item with no
// keyword signal. The second return reports whether the gate fired.
func (c *Compiled) Blend(kwScore, amtScore float64) (float64, bool) {
	if c.gate && kwScore <= 0 {
		return 0, true
	}
	return c.wKeywords*kwScore + c.wAmount*amtScore, false
}

// Display projects a 0-10 total onto the integer display range. The
// two-stage scaling (0-10 internal, then the configurable display ceiling)
// is the contract downstream filters depend on.
func (c *Compiled) Display(total float64) int {
	d := math.Round(total / 10 * c.displayMax)
	return int(clamp(d, 0, c.displayMax))
}

// ShowMin returns the minimum display score an item needs to be shown.
func (c *Compiled) ShowMin() int {
	return c.showMin
}

// Score runs the full evaluation for one text/amount pair and returns the
// audit record.
func (c *Compiled) Score(text string, amount *float64) types.ScoreDetail {
	kw := c.ScoreKeywords(text)
	amt := c.ScoreAmount(amount)
	total, gated := c.Blend(kw.Score, amt.Score)

	return types.ScoreDetail{
		IncludeHits:  kw.IncludeHits,
		ExcludeHits:  kw.ExcludeHits,
		KeywordRaw:   kw.Raw,
		KeywordScore: kw.Score,
		AmountScore:  amt.Score,
		AmountBand:   amt.Band,
		Gated:        gated,
		Total:        total,
		Display:      c.Display(total),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

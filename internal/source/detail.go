// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/tender-radar/internal/fetchcache"
	"github.com/pdiddy/tender-radar/internal/money"
	"github.com/pdiddy/tender-radar/pkg/types"
)

// Detail-specific alias tables. The detail payload nests its timestamps
// under a Fechas object; top-level spellings are kept as fallbacks.
var (
	descriptionKeys = []string{"Descripcion", "DescripcionLicitacion", "descripcion"}
	questionsKeys   = []string{"FechaFinalPreguntas", "FechaPreguntas"}
)

// DetailClient fetches and normalizes per-tender detail records. Raw
// responses are cached verbatim keyed by code, so a re-run parses from disk
// without touching the network.
type DetailClient struct {
	Fetcher *fetchcache.Fetcher
	Ticket  string
}

// Fetch returns the detail record for one tender code.
func (c *DetailClient) Fetch(ctx context.Context, code string) (*types.DetailRecord, error) {
	u := fmt.Sprintf("%s?codigo=%s&ticket=%s", LicitacionesAPIBase, url.QueryEscape(code), url.QueryEscape(c.Ticket))
	body, err := c.Fetcher.Fetch(ctx, "detail:"+code, u, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching detail %s: %w", code, err)
	}

	rec, err := ParseDetail(body)
	if err != nil {
		return nil, fmt.Errorf("parsing detail %s: %w", code, err)
	}
	return rec, nil
}

// ParseDetail normalizes the first row of a detail payload. The endpoint
// returns the same Listado envelope as the listing feed, with richer fields.
func ParseDetail(data []byte) (*types.DetailRecord, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parsing detail payload: %w", err)
	}

	rows := listadoRows(payload)
	if len(rows) == 0 {
		return nil, fmt.Errorf("detail payload has no rows")
	}
	item, ok := rows[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("detail row has unexpected shape")
	}

	rec := &types.DetailRecord{
		ID:          FirstString(item, codeKeys...),
		Buyer:       detailBuyer(item),
		Status:      FirstString(item, statusKeys...),
		Amount:      money.FromAny(First(item, amountKeys...)),
		Description: CleanHTML(FirstString(item, descriptionKeys...)),
	}

	fechas, _ := item["Fechas"].(map[string]any)
	rec.PublishedAt = nestedDate(item, fechas, publishedKeys)
	rec.CloseAt = nestedDate(item, fechas, closeKeys)
	rec.QuestionsCloseAt = nestedDate(item, fechas, questionsKeys)
	return rec, nil
}

// detailBuyer handles the detail payload's Comprador object; listings carry
// the organism as a flat string instead.
func detailBuyer(item Item) string {
	if comprador, ok := item["Comprador"].(map[string]any); ok {
		if s := FirstString(comprador, "NombreOrganismo", "NombreUnidad"); s != "" {
			return s
		}
	}
	return FirstString(item, buyerKeys...)
}

func nestedDate(item, fechas Item, keys []string) string {
	if fechas != nil {
		if s := FirstString(fechas, keys...); s != "" {
			return s
		}
	}
	return FirstString(item, keys...)
}

// CleanHTML flattens HTML-laden description fields to plain text: tags
// removed, entities decoded, whitespace collapsed. Plain text passes
// through with only whitespace normalization. Tags are padded with a space
// before parsing so words separated only by markup ("<p>a</p><p>b</p>",
// "a<br>b") do not fuse.
func CleanHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpaces(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(strings.ReplaceAll(s, "<", " <")))
	if err != nil {
		return collapseSpaces(s)
	}
	return collapseSpaces(doc.Text())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

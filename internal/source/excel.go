// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pdiddy/tender-radar/internal/httputil"
	"github.com/pdiddy/tender-radar/internal/money"
	"github.com/pdiddy/tender-radar/pkg/types"
)

// CompraAgilAPIBase is the search endpoint that issues presigned download
// URLs for the spreadsheet export. Tests point it at a local server.
var CompraAgilAPIBase = "https://api.buscador.mercadopublico.cl/compra-agil"

// CompraAgilPageURL is the public browsing page used as the opportunity URL
// for spreadsheet rows (the export carries no per-row links).
const CompraAgilPageURL = "https://buscador.mercadopublico.cl/compra-agil"

const defaultBrowserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122 Safari/537.36"

// minWorkbookSize rejects truncated or error-page downloads; a real export
// is never this small.
const minWorkbookSize = 50_000

// presignedKeys lists the JSON field aliases that may carry the download URL.
var presignedKeys = []string{"presigned_url", "url", "download_url", "downloadUrl"}

// ExcelDownloader fetches the Compra Ágil spreadsheet export.
type ExcelDownloader struct {
	Client     *http.Client
	APIKey     string
	UserAgent  string
	MaxRetries int
}

// Download fetches the export covering [dateFrom, dateTo] (YYYY-MM-DD) and
// writes it to outPath. The endpoint normally answers with JSON containing a
// presigned URL to the actual file; a direct binary response is accepted
// too. The result must carry the ZIP magic and a plausible size before it is
// written.
func (d *ExcelDownloader) Download(ctx context.Context, dateFrom, dateTo, outPath string) error {
	params := url.Values{
		"action":    {"download-excel"},
		"date_from": {dateFrom},
		"date_to":   {dateTo},
		"order_by":  {"recent"},
		"status":    {"2"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, CompraAgilAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Origin", "https://buscador.mercadopublico.cl")
	req.Header.Set("Referer", "https://buscador.mercadopublico.cl/")
	req.Header.Set("User-Agent", d.userAgent())
	req.Header.Set("X-Api-Key", d.APIKey)

	resp, err := httputil.DoWithRetry(ctx, d.client(), req, d.MaxRetries)
	if err != nil {
		return fmt.Errorf("requesting download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download request returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading download response: %w", err)
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		// Some deployments return the workbook directly.
		if !isWorkbook(body) {
			return fmt.Errorf("unexpected response: content-type %q is neither JSON nor a workbook", ct)
		}
		return writeWorkbook(outPath, body)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("parsing download response: %w", err)
	}
	var presigned string
	for _, k := range presignedKeys {
		if s, ok := payload[k].(string); ok && s != "" {
			presigned = s
			break
		}
	}
	if presigned == "" {
		return fmt.Errorf("download response carries no presigned URL")
	}

	// The presigned URL embeds its own token; no extra headers needed.
	req2, err := http.NewRequestWithContext(ctx, http.MethodGet, presigned, nil)
	if err != nil {
		return fmt.Errorf("creating presigned request: %w", err)
	}
	resp2, err := httputil.DoWithRetry(ctx, d.client(), req2, d.MaxRetries)
	if err != nil {
		return fmt.Errorf("downloading workbook: %w", err)
	}
	defer resp2.Body.Close()

	if resp2.StatusCode != http.StatusOK {
		return fmt.Errorf("presigned download returned HTTP %d", resp2.StatusCode)
	}
	content, err := io.ReadAll(resp2.Body)
	if err != nil {
		return fmt.Errorf("reading workbook: %w", err)
	}
	if !isWorkbook(content) {
		preview := content
		if len(preview) > 80 {
			preview = preview[:80]
		}
		return fmt.Errorf("presigned download is not a workbook: %q", preview)
	}
	return writeWorkbook(outPath, content)
}

func (d *ExcelDownloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *ExcelDownloader) userAgent() string {
	if d.UserAgent != "" {
		return d.UserAgent
	}
	return defaultBrowserUA
}

// isWorkbook checks the ZIP magic; an XLSX file is a ZIP container.
func isWorkbook(b []byte) bool {
	return len(b) > 4 && b[0] == 'P' && b[1] == 'K'
}

func writeWorkbook(path string, data []byte) error {
	if len(data) < minWorkbookSize {
		return fmt.Errorf("workbook suspiciously small (%d bytes)", len(data))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".xlsx-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing workbook: %w", writeErr)
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

// excelAliases maps each logical column to the header spellings seen in the
// export. Headers are matched after lowercasing, accent stripping, and
// whitespace collapsing.
var excelAliases = map[string][]string{
	"id":        {"numero", "n de compra", "numero de compra", "codigo", "id"},
	"title":     {"nombre", "nombre de la compra", "titulo"},
	"published": {"fecha de publicacion", "fecha publicacion", "publicada el"},
	"close":     {"fecha de cierre", "fecha cierre", "cierre"},
	"buyer":     {"organismo", "comprador", "institucion"},
	"unit":      {"unidad de compra", "unidad"},
	"amount":    {"monto disponible", "monto", "presupuesto"},
	"currency":  {"moneda"},
	"status":    {"estado"},
}

var headerReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n", "ü", "u",
	"°", "", "º", "", ".", "", ":", "",
)

func normalizeHeader(s string) string {
	s = headerReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
	return strings.Join(strings.Fields(s), " ")
}

// ExcelFeed reads a downloaded Compra Ágil workbook as a listing source.
type ExcelFeed struct {
	Path string
}

// Load converts the first sheet's rows into listings. The header row is
// located by scanning the first few rows for a recognizable id column
// (exports sometimes lead with banner rows). Fully empty rows are skipped
// silently; non-empty rows without an id are dropped and counted.
func (f *ExcelFeed) Load() ([]types.Listing, int, error) {
	wb, err := excelize.OpenFile(f.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening workbook %s: %w", f.Path, err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, 0, fmt.Errorf("workbook %s has no sheets", f.Path)
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, 0, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}

	headerIdx, cols := findHeader(rows)
	if cols == nil {
		return nil, 0, fmt.Errorf("workbook %s has no recognizable header row", f.Path)
	}

	var listings []types.Listing
	var failed int
	for _, row := range rows[headerIdx+1:] {
		if emptyRow(row) {
			continue
		}
		l, ok := listingFromRow(row, cols)
		if !ok {
			failed++
			continue
		}
		listings = append(listings, l)
	}
	return listings, failed, nil
}

func findHeader(rows [][]string) (int, map[string]int) {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		cols := matchHeader(rows[i])
		if _, ok := cols["id"]; ok {
			return i, cols
		}
	}
	return 0, nil
}

func matchHeader(row []string) map[string]int {
	cols := make(map[string]int)
	for idx, cell := range row {
		h := normalizeHeader(cell)
		if h == "" {
			continue
		}
		for field, aliases := range excelAliases {
			if _, done := cols[field]; done {
				continue
			}
			for _, a := range aliases {
				if h == a {
					cols[field] = idx
					break
				}
			}
		}
	}
	return cols
}

func listingFromRow(row []string, cols map[string]int) (types.Listing, bool) {
	get := func(field string) string {
		idx, ok := cols[field]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	id := get("id")
	if id == "" {
		return types.Listing{}, false
	}
	title := get("title")
	if title == "" {
		title = id
	}
	buyer := get("buyer")
	if buyer == "" {
		buyer = get("unit")
	}

	return types.Listing{
		Source:       types.SourceCompraAgil,
		ID:           id,
		Title:        title,
		Buyer:        buyer,
		PublishedRaw: get("published"),
		CloseRaw:     get("close"),
		Amount:       rowAmount(get("amount"), get("currency")),
		Status:       get("status"),
		URL:          CompraAgilPageURL,
	}, true
}

// rowAmount parses the amount column. Amounts quoted in UF or foreign
// currency are not comparable to the CLP bands and are dropped.
func rowAmount(raw, currency string) *float64 {
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "", "CLP", "CLP$", "$", "PESO", "PESOS":
		return money.Parse(raw)
	default:
		return nil
	}
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/pdiddy/tender-radar/internal/fetchcache"
	"github.com/pdiddy/tender-radar/internal/money"
	"github.com/pdiddy/tender-radar/pkg/types"
)

// LicitacionesAPIBase is the public tender endpoint. Tests point it at a
// local server.
var LicitacionesAPIBase = "https://api.mercadopublico.cl/servicios/v1/publico/licitaciones.json"

// DetailPageBase is the human-facing tender page, used as the canonical
// opportunity URL.
const DetailPageBase = "https://www.mercadopublico.cl/Procurement/Modules/RFB/DetailsAcquisition.aspx?qs="

// Alias tables for the listing payload.
var (
	listKeys      = []string{"Listado", "licitaciones", "ListadoLicitaciones"}
	codeKeys      = []string{"CodigoExterno", "Codigo", "codigo"}
	titleKeys     = []string{"Nombre", "NombreLicitacion", "nombre"}
	buyerKeys     = []string{"NombreOrganismo", "Comprador", "Organismo"}
	publishedKeys = []string{"FechaPublicacion", "FechaCreacion"}
	closeKeys     = []string{"FechaCierre", "FechaCierreLicitacion"}
	amountKeys    = []string{"MontoEstimado", "Monto", "monto"}
	statusKeys    = []string{"Estado", "CodigoEstado"}
)

// LicitacionesClient fetches the active-tender listing.
type LicitacionesClient struct {
	Fetcher *fetchcache.Fetcher
	Ticket  string
}

// FetchActive retrieves all currently active tenders. The listing itself is
// never cached (each run wants the live set), but the fetch still goes
// through the retry layer. A final failure here is fatal to the run.
//
// The second return counts rows dropped because they could not be parsed
// into a usable listing (no external code).
func (c *LicitacionesClient) FetchActive(ctx context.Context) ([]types.Listing, int, error) {
	u := fmt.Sprintf("%s?estado=activas&ticket=%s", LicitacionesAPIBase, url.QueryEscape(c.Ticket))
	body, err := c.Fetcher.Fetch(ctx, "", u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching active tenders: %w", err)
	}
	return ParseListado(body)
}

// ParseListado decodes a listing payload and extracts one Listing per row.
// The row array may appear under any of the known list keys; the first
// non-empty one wins. Rows without an external code are dropped and counted.
func ParseListado(data []byte) ([]types.Listing, int, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, 0, fmt.Errorf("parsing listing payload: %w", err)
	}

	rows := listadoRows(payload)
	listings := make([]types.Listing, 0, len(rows))
	var failed int
	for _, row := range rows {
		item, ok := row.(map[string]any)
		if !ok {
			failed++
			continue
		}
		l, ok := listingFromItem(item)
		if !ok {
			failed++
			continue
		}
		listings = append(listings, l)
	}
	return listings, failed, nil
}

func listadoRows(payload map[string]any) []any {
	for _, k := range listKeys {
		if rows, ok := payload[k].([]any); ok && len(rows) > 0 {
			return rows
		}
	}
	return nil
}

func listingFromItem(item Item) (types.Listing, bool) {
	code := FirstString(item, codeKeys...)
	if code == "" {
		return types.Listing{}, false
	}
	title := FirstString(item, titleKeys...)
	if title == "" {
		title = code
	}

	return types.Listing{
		Source:       types.SourceLicitaciones,
		ID:           code,
		Title:        title,
		Buyer:        FirstString(item, buyerKeys...),
		PublishedRaw: FirstString(item, publishedKeys...),
		CloseRaw:     FirstString(item, closeKeys...),
		Amount:       money.FromAny(First(item, amountKeys...)),
		Status:       FirstString(item, statusKeys...),
		URL:          DetailPageBase + url.QueryEscape(code),
	}, true
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetchcache

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/tender-radar/internal/httputil"
)

// StatusError reports a non-2xx response. Callers that treat some statuses
// as soft failures (the reviewed-set fetcher, detail enrichment) match on it
// with errors.As.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// Fetcher performs GET requests with retry and optional write-through
// caching. A cache hit returns the stored bytes without any network call.
type Fetcher struct {
	Client     *http.Client
	Cache      *Cache // nil disables caching
	UserAgent  string
	MaxRetries int
	Warnings   io.Writer // nil discards cache-write warnings
}

// Fetch returns the body at url, consulting the cache under key first.
// An empty key bypasses the cache in both directions. Transient failures are
// retried per httputil.DoWithRetry; a non-2xx final status yields a
// *StatusError and nothing is cached. Cache write failures are reported on
// Warnings and do not fail the fetch.
func (f *Fetcher) Fetch(ctx context.Context, key, url string, header http.Header) ([]byte, error) {
	if f.Cache != nil && key != "" {
		if data, ok := f.Cache.Get(key); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, f.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}

	if f.Cache != nil && key != "" {
		if err := f.Cache.Put(key, data); err != nil && f.Warnings != nil {
			fmt.Fprintf(f.Warnings, "warning: caching %s: %v\n", key, err)
		}
	}
	return data, nil
}

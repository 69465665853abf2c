// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reviewed loads the set of tender codes a human has already looked
// at, sourced from a GitHub issue tracker. The set is an annotation only:
// loading it must never fail the pipeline, so every failure path degrades to
// a partial or empty set with a warning.
package reviewed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
)

// GitHubAPIBase is the issue-tracker API root. Tests point it at a local
// server.
var GitHubAPIBase = "https://api.github.com"

const (
	reviewedLabel = "revisado"
	pageSize      = 100
)

// codePattern matches Mercado Público tender codes in issue titles,
// e.g. "1057-5-LE26".
var codePattern = regexp.MustCompile(`[0-9]{1,7}-[0-9]{1,5}-[A-Z]{1,4}[0-9]{2}`)

type issue struct {
	Title       string          `json:"title"`
	PullRequest json.RawMessage `json:"pull_request"`
}

// Loader fetches reviewed codes from one repository's issues.
type Loader struct {
	Client *http.Client
	Repo   string // "owner/name"
	Token  string
}

// Load returns every tender code mentioned in the repository's issue titles.
// It paginates the issue list twice, once filtered to the "revisado" label
// and once unfiltered, and unions the results, since labeling is not
// guaranteed upstream. Pull requests are skipped. A non-2xx page or a network
// error stops that pass and keeps whatever was collected; Load itself never
// fails.
func (l *Loader) Load(ctx context.Context, w io.Writer) map[string]bool {
	if w == nil {
		w = io.Discard
	}

	codes := make(map[string]bool)
	if l.Repo == "" {
		return codes
	}
	l.collect(ctx, reviewedLabel, codes, w)
	l.collect(ctx, "", codes, w)
	return codes
}

func (l *Loader) collect(ctx context.Context, label string, into map[string]bool, w io.Writer) {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	for page := 1; ; page++ {
		params := url.Values{
			"state":    {"all"},
			"per_page": {strconv.Itoa(pageSize)},
			"page":     {strconv.Itoa(page)},
		}
		if label != "" {
			params.Set("labels", label)
		}
		reqURL := fmt.Sprintf("%s/repos/%s/issues?%s", GitHubAPIBase, l.Repo, params.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			fmt.Fprintf(w, "warning: reviewed-set request: %v\n", err)
			return
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if l.Token != "" {
			req.Header.Set("Authorization", "Bearer "+l.Token)
		}

		resp, err := client.Do(req)
		if err != nil {
			fmt.Fprintf(w, "warning: reviewed-set fetch: %v\n", err)
			return
		}

		if resp.StatusCode != http.StatusOK {
			// Auth or rate-limit trouble; keep what was collected.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			fmt.Fprintf(w, "warning: reviewed-set fetch returned HTTP %d\n", resp.StatusCode)
			return
		}

		var issues []issue
		err = json.NewDecoder(resp.Body).Decode(&issues)
		resp.Body.Close()
		if err != nil {
			fmt.Fprintf(w, "warning: parsing reviewed-set page %d: %v\n", page, err)
			return
		}
		if len(issues) == 0 {
			return
		}

		for _, is := range issues {
			if is.PullRequest != nil {
				continue
			}
			for _, code := range codePattern.FindAllString(is.Title, -1) {
				into[code] = true
			}
		}
	}
}

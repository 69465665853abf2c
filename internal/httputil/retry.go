// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across feeds.
package httputil

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// transient failures. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

const defaultMaxRetries = 5

// DoWithRetry executes an HTTP request and retries transient failures with
// exponential backoff: HTTP 429, HTTP 5xx, and transport timeouts. The delay
// starts at RetryBaseDelay (2 s) and doubles each attempt: 2 s, 4 s, 8 s,
// 16 s, 32 s.
//
// When maxRetries is 0 the default (5) is used. On each retryable status the
// response body is drained and closed before sleeping. Transport errors that
// are not timeouts return immediately. If the context is cancelled during a
// backoff wait the function returns ctx.Err(). After exhausting retries the
// last response (or last timeout error) is returned so the caller can
// inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !isTimeout(err) || attempt >= maxRetries {
				return nil, err
			}
		} else {
			if !RetryableStatus(resp.StatusCode) {
				return resp, nil
			}

			// Exhausted retries — return the last response as-is.
			if attempt >= maxRetries {
				return resp, nil
			}

			// Drain and close the body before retrying.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// RetryableStatus reports whether a status code is transient: HTTP 429 or
// any 5xx.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

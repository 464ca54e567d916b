// Package fetch provides the two page-fetch strategies: Lite (plain HTTP with
// static HTML parsing) and Rich (headless browser).
package fetch

import (
	"context"
	"time"
)

// Outcome is the result of fetching one URL.
type Outcome struct {
	// URL is the address that was requested.
	URL string
	// FinalURL is the address after redirects.
	FinalURL string
	// StatusCode is the final status, after soft-error correction.
	StatusCode int
	// ContentType is the response Content-Type header value.
	ContentType string
	// Body is the response body as text.
	Body string
	// LocationHint is a Location header observed on a non-redirect response.
	LocationHint string
	// RawLinks are candidate URL strings extracted from the page.
	RawLinks []string
	// JSONURLs are URL strings pulled out of a JSON response body.
	JSONURLs []string
	// Duration is the wall time the fetch took.
	Duration time.Duration
}

// Strategy fetches one URL and extracts its outbound links.
type Strategy interface {
	Fetch(ctx context.Context, rawURL string) (*Outcome, error)
	Close() error
}

// bodyLimit caps how much of a response body is read.
const bodyLimit = 5 << 20

// DefaultUserAgent mimics a desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// defaultHeaders are browser-like headers sent with every request unless
// overridden by the operator.
var defaultHeaders = map[string]string{
	"User-Agent":      DefaultUserAgent,
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

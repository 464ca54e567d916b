package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/probeworks/sitescan/internal/extract"
)

// maxRedirects bounds redirect chains in the Lite strategy.
const maxRedirects = 10

// LiteConfig configures the HTTP fetch strategy.
type LiteConfig struct {
	Timeout time.Duration
	// Headers are merged over the browser-like defaults; custom wins.
	Headers map[string]string
	// Cookies are serialized into the Cookie header on every request.
	Cookies map[string]string
	// RequestsPerSecond enables a client-side limiter when positive.
	RequestsPerSecond float64
	// SkipTLSVerify disables certificate verification.
	SkipTLSVerify bool
	// DetectSoftErrors enables 200-with-error-body status correction.
	DetectSoftErrors bool
	// ExtractOptions gates the static extraction rules.
	ExtractOptions extract.Options
}

// Lite fetches pages over plain HTTP and parses the returned HTML statically.
type Lite struct {
	client  *http.Client
	cfg     LiteConfig
	limiter *rate.Limiter
}

// NewLite creates the Lite strategy.
func NewLite(cfg LiteConfig) *Lite {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     30 * time.Second,
	}
	if cfg.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	l := &Lite{client: client, cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return l
}

// Fetch issues a GET following redirects and extracts links from the body.
func (l *Lite) Fetch(ctx context.Context, rawURL string) (*Outcome, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", rawURL, err)
	}

	for name, value := range defaultHeaders {
		req.Header.Set(name, value)
	}
	for name, value := range l.cfg.Headers {
		req.Header.Set(name, value)
	}
	if cookie := serializeCookies(l.cfg.Cookies); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, bodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", rawURL, err)
	}

	out := &Outcome{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(bodyBytes),
		Duration:    time.Since(start),
	}

	if loc := resp.Header.Get("Location"); loc != "" && (resp.StatusCode < 300 || resp.StatusCode >= 400) {
		out.LocationHint = loc
	}

	if l.cfg.DetectSoftErrors {
		out.StatusCode = CorrectSoftError(out.StatusCode, out.Body)
	}

	if strings.Contains(strings.ToLower(out.ContentType), "application/json") {
		out.JSONURLs = extract.JSONURLs(bodyBytes)
	} else if finalURL, err := url.Parse(out.FinalURL); err == nil {
		out.RawLinks = extract.Static(out.Body, finalURL, l.cfg.ExtractOptions)
	}

	return out, nil
}

// Close releases idle connections.
func (l *Lite) Close() error {
	l.client.CloseIdleConnections()
	return nil
}

// serializeCookies renders a name to value map as a Cookie header.
func serializeCookies(cookies map[string]string) string {
	if len(cookies) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(cookies))
	for name, value := range cookies {
		pairs = append(pairs, name+"="+value)
	}
	return strings.Join(pairs, "; ")
}

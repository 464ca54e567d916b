package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/probeworks/sitescan/internal/extract"
)

// RichConfig configures the headless-browser fetch strategy.
type RichConfig struct {
	Timeout time.Duration
	// Headers are installed on every page via the devtools protocol.
	Headers map[string]string
	// Cookies are installed on every page before navigation.
	Cookies map[string]string
	// CookieDomain scopes installed cookies; usually the seed hostname.
	CookieDomain string
	// DynamicContentWait is the settle delay after navigation completes.
	DynamicContentWait time.Duration
	// DetectSoftErrors enables 200-with-error-body status correction.
	DetectSoftErrors bool
	// ExtractOptions gates the extraction rules.
	ExtractOptions extract.Options
}

// Rich fetches pages through a headless browser. One browser process serves
// the whole scan; each Fetch opens its own page context so concurrent workers
// do not interfere.
type Rich struct {
	browser *rod.Browser
	cfg     RichConfig
}

// NewRich launches a headless browser and returns the Rich strategy. Callers
// should fall back to Lite when this fails.
func NewRich(cfg RichConfig) (*Rich, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DynamicContentWait <= 0 {
		cfg.DynamicContentWait = 1800 * time.Millisecond
	}

	l := launcher.New().
		Headless(true).
		Set("ignore-certificate-errors", "true")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &Rich{browser: browser, cfg: cfg}, nil
}

// Browser exposes the underlying browser so the login preamble can drive a
// form through the same process.
func (r *Rich) Browser() *rod.Browser {
	return r.browser
}

// SetCookies replaces the cookies installed on each new page. Call before the
// crawl starts; pages already open keep theirs.
func (r *Rich) SetCookies(cookies map[string]string) {
	r.cfg.Cookies = cookies
}

// Fetch navigates a fresh page to rawURL, performs interactive reveal, and
// extracts links from the live DOM.
func (r *Rich) Fetch(ctx context.Context, rawURL string) (*Outcome, error) {
	start := time.Now()

	page, err := r.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	page = page.Context(navCtx)

	r.installHeaders(page)
	r.installCookies(page)

	// The last response whose URL matches the navigation target is the
	// authoritative final status; it wins over the initial goto result.
	var respMu sync.Mutex
	finalStatus := 0
	finalContentType := ""
	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Response == nil {
			return false
		}
		if sameFetchTarget(e.Response.URL, rawURL) {
			respMu.Lock()
			finalStatus = e.Response.Status
			for key, value := range e.Response.Headers {
				if strings.EqualFold(key, "content-type") {
					finalContentType = value.Str()
				}
			}
			respMu.Unlock()
		}
		return false
	})
	go wait()

	timedOut := false
	if err := page.Navigate(rawURL); err != nil {
		if navCtx.Err() != nil {
			timedOut = true
		} else {
			return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
		}
	}
	if !timedOut {
		if err := page.WaitLoad(); err != nil && navCtx.Err() != nil {
			timedOut = true
		}
	}

	// Detach the navigation deadline: reveal and extraction work against
	// whatever content made it into the page.
	page = page.Context(ctx)

	info, infoErr := page.Info()
	finalURL := rawURL
	if infoErr == nil && info != nil && info.URL != "" && info.URL != "about:blank" {
		finalURL = info.URL
	}

	respMu.Lock()
	status := finalStatus
	contentType := finalContentType
	respMu.Unlock()
	if status == 0 || timedOut {
		// Timed-out navigations salvage partial content as a 200.
		status = 200
	}

	out := &Outcome{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  status,
		ContentType: contentType,
	}

	parsedFinal, parseErr := url.Parse(finalURL)
	if parseErr != nil {
		parsedFinal, _ = url.Parse(rawURL)
	}

	if strings.Contains(strings.ToLower(contentType), "application/json") {
		if body, err := page.HTML(); err == nil {
			out.Body = body
			out.JSONURLs = extract.JSONURLs([]byte(stripDocumentWrapper(body)))
		}
	} else {
		out.RawLinks = extract.Dynamic(page, parsedFinal, r.cfg.ExtractOptions, r.cfg.DynamicContentWait)
		if body, err := page.HTML(); err == nil {
			out.Body = body
		}
	}

	if r.cfg.DetectSoftErrors {
		out.StatusCode = CorrectSoftError(out.StatusCode, out.Body)
	}

	out.Duration = time.Since(start)
	return out, nil
}

// Close shuts down the browser process.
func (r *Rich) Close() error {
	return r.browser.Close()
}

func (r *Rich) installHeaders(page *rod.Page) {
	if len(r.cfg.Headers) == 0 {
		return
	}
	networkHeaders := make(proto.NetworkHeaders)
	for name, value := range r.cfg.Headers {
		networkHeaders[name] = gson.New(value)
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}.Call(page)
}

func (r *Rich) installCookies(page *rod.Page) {
	if len(r.cfg.Cookies) == 0 {
		return
	}
	params := make([]*proto.NetworkCookieParam, 0, len(r.cfg.Cookies))
	for name, value := range r.cfg.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:   name,
			Value:  value,
			Domain: r.cfg.CookieDomain,
			Path:   "/",
		})
	}
	_ = page.SetCookies(params)
}

// sameFetchTarget compares response and navigation URLs, ignoring a trailing
// slash difference.
func sameFetchTarget(respURL, navURL string) bool {
	return respURL == navURL ||
		strings.TrimSuffix(respURL, "/") == strings.TrimSuffix(navURL, "/")
}

// stripDocumentWrapper undoes the <pre> wrapping browsers apply when
// rendering a JSON response as a document.
func stripDocumentWrapper(body string) string {
	start := strings.Index(body, "<pre")
	if start == -1 {
		return body
	}
	open := strings.Index(body[start:], ">")
	if open == -1 {
		return body
	}
	rest := body[start+open+1:]
	end := strings.Index(rest, "</pre>")
	if end == -1 {
		return rest
	}
	return rest[:end]
}

// Package discovery mines sitemaps and robots.txt for crawl seeds.
package discovery

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/probeworks/sitescan/internal/logger"
	"github.com/probeworks/sitescan/internal/urlutil"
)

// sitemapPaths are probed in order; the first parseable 2xx response wins.
var sitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap1.xml",
	"/sitemap-index.xml",
	"/sitemaps.xml",
}

const sitemapBodyLimit = 10 << 20

// sitemapDoc covers both <urlset> and <sitemapindex> documents; only the
// fields the crawler cares about are decoded.
type sitemapDoc struct {
	URLs     []sitemapLoc `xml:"url"`
	Children []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// Config carries the request settings the miner shares with the crawl.
type Config struct {
	Timeout time.Duration
	Headers map[string]string
	Cookies map[string]string
}

// Miner probes well-known sitemap locations and robots.txt on a target
// origin. Child sitemaps referenced by an index are fetched in background
// goroutines; Wait joins them before the crawl shuts down.
type Miner struct {
	client *http.Client
	cfg    Config
	log    *logger.Logger

	wg sync.WaitGroup

	mu     sync.Mutex
	seen   map[string]bool
	warned bool
}

// NewMiner builds a miner. A nil logger is replaced with a no-op one.
func NewMiner(cfg Config, log *logger.Logger) *Miner {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Miner{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		log:    log,
		seen:   make(map[string]bool),
	}
}

// Seeds returns the same-origin URLs mined from the start URL's origin:
// entries of the first responding sitemap plus robots.txt sitemap references
// and disallowed paths. Entries of child sitemaps arrive asynchronously
// through emit; callers must Wait before discarding results.
func (m *Miner) Seeds(ctx context.Context, startURL string, emit func(string)) []string {
	base, err := url.Parse(startURL)
	if err != nil || base.Host == "" {
		return nil
	}
	origin := base.Scheme + "://" + base.Host
	if emit == nil {
		emit = func(string) {}
	}

	var sitemapSeeds, robotsSeeds []string
	// Child-sitemap fetches outlive this call, so they run on ctx rather than
	// on a group context that ends when Wait returns.
	var group errgroup.Group
	group.Go(func() error {
		sitemapSeeds = m.probeSitemaps(ctx, base, origin, emit)
		return nil
	})
	group.Go(func() error {
		robotsSeeds = m.mineRobots(ctx, base, origin, emit)
		return nil
	})
	group.Wait()

	merged := make([]string, 0, len(sitemapSeeds)+len(robotsSeeds))
	dedup := make(map[string]bool, len(sitemapSeeds)+len(robotsSeeds))
	for _, u := range append(sitemapSeeds, robotsSeeds...) {
		if !dedup[u] {
			dedup[u] = true
			merged = append(merged, u)
		}
	}
	return merged
}

// Wait joins the background child-sitemap fetches.
func (m *Miner) Wait() {
	m.wg.Wait()
}

func (m *Miner) probeSitemaps(ctx context.Context, base *url.URL, origin string, emit func(string)) []string {
	for _, path := range sitemapPaths {
		seeds, ok := m.fetchSitemap(ctx, base, origin+path, emit)
		if ok {
			return seeds
		}
	}
	return nil
}

// fetchSitemap returns the same-origin page URLs of one sitemap document and
// spawns background fetches for any child sitemaps it indexes. The second
// return reports whether the document was usable at all.
func (m *Miner) fetchSitemap(ctx context.Context, base *url.URL, sitemapURL string, emit func(string)) ([]string, bool) {
	m.mu.Lock()
	if m.seen[sitemapURL] {
		m.mu.Unlock()
		return nil, false
	}
	m.seen[sitemapURL] = true
	m.mu.Unlock()

	body, ok := m.get(ctx, sitemapURL)
	if !ok {
		return nil, false
	}

	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, false
	}
	if len(doc.URLs) == 0 && len(doc.Children) == 0 {
		return nil, false
	}

	for _, child := range doc.Children {
		loc := strings.TrimSpace(child.Loc)
		if loc == "" {
			continue
		}
		m.wg.Add(1)
		go func(loc string) {
			defer m.wg.Done()
			urls, _ := m.fetchSitemap(ctx, base, loc, emit)
			for _, u := range urls {
				emit(u)
			}
		}(loc)
	}

	seeds := make([]string, 0, len(doc.URLs))
	for _, entry := range doc.URLs {
		if u, ok := m.sameOriginSeed(entry.Loc, base); ok {
			seeds = append(seeds, u)
		}
	}
	return seeds, true
}

// mineRobots collects Sitemap: references and Disallow: paths from
// robots.txt. Referenced sitemaps are mined in the background since the
// well-known probe already supplies the synchronous seed set.
func (m *Miner) mineRobots(ctx context.Context, base *url.URL, origin string, emit func(string)) []string {
	body, ok := m.get(ctx, origin+"/robots.txt")
	if !ok {
		return nil
	}

	var seeds []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		directive, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		directive = strings.ToLower(strings.TrimSpace(directive))
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		switch directive {
		case "sitemap":
			m.wg.Add(1)
			go func(loc string) {
				defer m.wg.Done()
				urls, _ := m.fetchSitemap(ctx, base, loc, emit)
				for _, u := range urls {
					emit(u)
				}
			}(value)
		case "disallow":
			path := strings.TrimSuffix(strings.TrimSuffix(value, "$"), "*")
			if path == "" || path == "/" || !strings.HasPrefix(path, "/") {
				continue
			}
			if u, ok := m.sameOriginSeed(origin+path, base); ok {
				seeds = append(seeds, u)
			}
		}
	}
	return seeds
}

func (m *Miner) sameOriginSeed(raw string, base *url.URL) (string, bool) {
	u, ok := urlutil.Normalize(strings.TrimSpace(raw), base)
	if !ok || !urlutil.SameOrigin(u, base) {
		return "", false
	}
	return u.String(), true
}

// get fetches one URL and returns its body on a 2xx response. Timeouts are
// expected against hosts without discovery endpoints and stay silent; any
// other failure logs a single warning for the whole mining run.
func (m *Miner) get(ctx context.Context, rawURL string) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	for name, value := range m.cfg.Headers {
		req.Header.Set(name, value)
	}
	if len(m.cfg.Cookies) > 0 {
		pairs := make([]string, 0, len(m.cfg.Cookies))
		for name, value := range m.cfg.Cookies {
			pairs = append(pairs, name+"="+value)
		}
		req.Header.Set("Cookie", strings.Join(pairs, "; "))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if !isTimeout(err) {
			m.warnOnce(rawURL, err)
		}
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, sitemapBodyLimit))
	if err != nil {
		m.warnOnce(rawURL, err)
		return nil, false
	}
	return body, true
}

func (m *Miner) warnOnce(rawURL string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warned {
		return
	}
	m.warned = true
	m.log.WithURL(rawURL).WithError(err).Warn("seed discovery request failed")
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

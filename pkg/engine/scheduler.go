package engine

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/probeworks/sitescan/internal/control"
	"github.com/probeworks/sitescan/internal/errclass"
	"github.com/probeworks/sitescan/internal/fetch"
	"github.com/probeworks/sitescan/internal/frontier"
	"github.com/probeworks/sitescan/internal/logger"
	"github.com/probeworks/sitescan/internal/session"
	"github.com/probeworks/sitescan/internal/urlutil"
)

// antiStallWait bounds how long the coordinator waits for a worker when free
// slots remain; it re-checks the frontier afterwards in case background seed
// discovery delivered work.
const antiStallWait = 2 * time.Second

// stuckQueueIterations is the number of consecutive no-progress iterations
// after which the stuck-queue warning fires (on the next one past it).
const stuckQueueIterations = 10

const errorBodyLimit = 1000

// scheduler drives one crawl: a coordinator loop hands frontier entries to at
// most MaxConcurrent workers and collects their completions.
type scheduler struct {
	cfg      Config
	base     *url.URL
	excluded []string
	filter   *urlutil.PathFilter
	strategy fetch.Strategy
	frontier *frontier.Frontier
	store    *session.Store
	control  *control.Registry
	log      *logger.Logger
}

// run loops until the frontier drains, the page cap is reached, or the scan
// is stopped. It returns control.ErrStopped on operator stop.
func (s *scheduler) run(ctx context.Context) error {
	done := make(chan struct{}, s.cfg.MaxConcurrent)
	inflight := 0
	stale := 0
	lastQueueLen := -1

	drain := func() {
		for inflight > 0 {
			<-done
			inflight--
		}
	}

	for {
		if err := s.control.WaitIfPaused(ctx, s.cfg.ScanID); err != nil {
			drain()
			return err
		}
		if err := ctx.Err(); err != nil {
			drain()
			return err
		}
		if s.store.CapReached() {
			drain()
			return nil
		}

		if inflight < s.cfg.MaxConcurrent {
			if entry, ok := s.frontier.Claim(); ok {
				stale = 0
				if u, err := url.Parse(entry.URL); err == nil && urlutil.IsStaticAsset(u) {
					// Claim already marked it visited; discard with no result.
					continue
				}
				inflight++
				go func(entry frontier.Entry) {
					defer func() { done <- struct{}{} }()
					s.scanOne(ctx, entry)
				}(entry)
				continue
			}
		}

		if inflight == s.cfg.MaxConcurrent {
			<-done
			inflight--
			continue
		}

		if inflight > 0 {
			qlen := s.frontier.Len()
			if qlen == lastQueueLen {
				stale++
				if stale > stuckQueueIterations {
					s.log.Warnf("queue stuck at %d entries with %d workers in flight", qlen, inflight)
					stale = 0
				}
			} else {
				stale = 0
			}
			lastQueueLen = qlen

			select {
			case <-done:
				inflight--
			case <-time.After(antiStallWait):
			}
			continue
		}

		if s.frontier.Len() == 0 {
			return nil
		}
	}
}

// scanOne fetches a single URL, extracts and filters its links, enqueues the
// novel ones, and appends the result. All failures stay inside this worker.
func (s *scheduler) scanOne(ctx context.Context, entry frontier.Entry) {
	defer func() {
		if r := recover(); r != nil {
			s.recordFailure(entry, fmt.Errorf("worker panic: %v", r), nil)
		}
	}()

	out, err := s.strategy.Fetch(ctx, entry.URL)
	if err != nil {
		s.recordFailure(entry, err, out)
		return
	}

	s.store.ObserveResponseTime(out.Duration)

	links := s.filterLinks(out, entry.Depth)

	result := session.Result{
		URL:        entry.URL,
		StatusCode: out.StatusCode,
		Links:      links,
		Timestamp:  time.Now().Format(time.RFC3339),
		Depth:      entry.Depth,
	}
	if out.StatusCode >= 200 && out.StatusCode < 300 {
		result.Status = session.StatusSuccess
	} else {
		result.Status = session.StatusError
		c := errclass.Classify(nil, out.StatusCode, out.Body)
		result.Error = fmt.Sprintf("HTTP %d", out.StatusCode)
		result.ErrorKind = string(c.Kind)
		result.ErrorSeverity = string(c.Severity)
		result.ErrorRetryable = c.Retryable
		result.SuggestedAction = c.Suggestion
		if out.StatusCode >= 400 && out.StatusCode < 600 {
			result.ResponseBody = truncate(out.Body, errorBodyLimit)
		}
		s.store.RecordError(entry.URL, result.Error, c, out.StatusCode)
	}

	if !s.store.AppendResult(result) {
		return
	}

	logType := session.LogSuccess
	message := fmt.Sprintf("Scanned %s (%d)", entry.URL, out.StatusCode)
	if result.Status == session.StatusError {
		logType = session.LogError
		if result.ErrorSeverity == string(errclass.SeverityCritical) {
			logType = session.LogCritical
		}
	}
	s.store.Emit(session.EmitParams{
		Type:         logType,
		Message:      message,
		URL:          entry.URL,
		QueueSize:    s.frontier.Len(),
		VisitedCount: s.frontier.VisitedCount(),
		ResponseTime: out.Duration,
	})
	s.log.RequestEvent("GET", entry.URL, out.StatusCode, out.Duration)
}

// filterLinks normalizes every extracted URL, keeps the same-origin
// non-static regex-passing set in first-seen order, and enqueues each at
// depth+1 when the depth limit allows.
func (s *scheduler) filterLinks(out *fetch.Outcome, depth int) []string {
	pageBase := s.base
	if out.FinalURL != "" {
		if u, err := url.Parse(out.FinalURL); err == nil && u.Host != "" {
			pageBase = u
		}
	}

	raw := make([]string, 0, len(out.RawLinks)+len(out.JSONURLs)+1)
	raw = append(raw, out.RawLinks...)
	raw = append(raw, out.JSONURLs...)
	if out.LocationHint != "" {
		raw = append(raw, out.LocationHint)
	}

	links := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, href := range raw {
		u, ok := urlutil.NormalizeWith(href, pageBase, s.excluded)
		if !ok || !urlutil.SameOrigin(u, s.base) || urlutil.IsStaticAsset(u) || !s.filter.Matches(u) {
			continue
		}
		canonical := u.String()
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		links = append(links, canonical)

		if depth+1 < s.cfg.MaxDepth {
			s.frontier.Push(canonical, depth+1)
		}
	}
	return links
}

// recordFailure turns a transport error or panic into an error ScanResult.
func (s *scheduler) recordFailure(entry frontier.Entry, err error, out *fetch.Outcome) {
	body := ""
	status := 0
	if out != nil {
		body = out.Body
		status = out.StatusCode
	}

	c := errclass.Classify(err, status, body)
	if status == 0 {
		status = errclass.SyntheticStatus(c)
	}

	result := session.Result{
		URL:             entry.URL,
		Status:          session.StatusError,
		StatusCode:      status,
		Links:           []string{},
		Error:           err.Error(),
		ErrorKind:       string(c.Kind),
		ErrorSeverity:   string(c.Severity),
		ErrorRetryable:  c.Retryable,
		SuggestedAction: c.Suggestion,
		Timestamp:       time.Now().Format(time.RFC3339),
		Depth:           entry.Depth,
	}
	if status >= 400 && status < 600 && body != "" {
		result.ResponseBody = truncate(body, errorBodyLimit)
	}

	s.store.RecordError(entry.URL, err.Error(), c, status)
	s.store.AppendResult(result)

	logType := session.LogError
	if c.Severity == errclass.SeverityCritical {
		logType = session.LogCritical
	}
	s.store.Emit(session.EmitParams{
		Type:         logType,
		Message:      fmt.Sprintf("Failed %s: %v", entry.URL, err),
		URL:          entry.URL,
		QueueSize:    s.frontier.Len(),
		VisitedCount: s.frontier.VisitedCount(),
	})
	s.log.WithURL(entry.URL).WithError(err).Error("scan failed")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

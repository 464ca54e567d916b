// Package engine is the public surface of the crawl engine: configuration,
// the six scan operations, and the scheduler behind them.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/probeworks/sitescan/internal/archive"
	"github.com/probeworks/sitescan/internal/auth"
	"github.com/probeworks/sitescan/internal/control"
	"github.com/probeworks/sitescan/internal/discovery"
	"github.com/probeworks/sitescan/internal/fetch"
	"github.com/probeworks/sitescan/internal/frontier"
	"github.com/probeworks/sitescan/internal/logger"
	"github.com/probeworks/sitescan/internal/session"
	"github.com/probeworks/sitescan/internal/urlutil"
)

// Engine owns the process-wide scan state: the control-flag registry and the
// per-scan session stores. One Engine serves many concurrent scans.
type Engine struct {
	log      *logger.Logger
	control  *control.Registry
	sessions *session.Manager
}

// New creates an engine. A nil logger is replaced with a no-op one.
func New(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		log:      log.WithComponent("engine"),
		control:  control.NewRegistry(),
		sessions: session.NewManager(),
	}
}

// ScanWebsite runs one crawl to completion and returns the accumulated
// result document. It is long-running; observers stream progress through
// GetScanLogs and GetScanResults while it runs.
func (e *Engine) ScanWebsite(ctx context.Context, cfg Config) (*ScanReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	seed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse seed URL: %w", err)
	}

	scanID := cfg.ScanID
	log := e.log.WithScan(scanID)
	store := e.sessions.Create(scanID, cfg.MaxLogEntries, cfg.MaxPages)
	e.control.Initialize(scanID)
	startedAt := time.Now()

	store.Emit(session.EmitParams{
		Type:    session.LogInfo,
		Message: "Scan started",
		URL:     cfg.URL,
	})
	log.WithURL(cfg.URL).Info("scan started")

	excluded := cfg.ExcludeProtocols
	if len(excluded) == 0 {
		excluded = urlutil.DefaultExcludedSchemes
	}
	filter := urlutil.NewPathFilter(cfg.PathRegexFilter)

	var rich *fetch.Rich
	if cfg.UseHeadlessBrowser {
		rich, err = fetch.NewRich(fetch.RichConfig{
			Timeout:            cfg.timeout(),
			Headers:            cfg.CustomHeaders,
			CookieDomain:       seed.Hostname(),
			DynamicContentWait: cfg.dynamicContentWait(),
			DetectSoftErrors:   cfg.DetectSoftErrors,
			ExtractOptions:     cfg.extractOptions(),
		})
		if err != nil {
			log.WithError(err).Warn("headless browser unavailable, using HTTP fetcher")
			rich = nil
		}
	}

	cookies, startURL := e.authenticate(ctx, cfg, rich, store, log)

	var strategy fetch.Strategy
	if rich != nil {
		rich.SetCookies(cookies)
		strategy = rich
	} else {
		strategy = fetch.NewLite(fetch.LiteConfig{
			Timeout:           cfg.timeout(),
			Headers:           cfg.CustomHeaders,
			Cookies:           cookies,
			RequestsPerSecond: cfg.RequestsPerSecond,
			DetectSoftErrors:  cfg.DetectSoftErrors,
			ExtractOptions:    cfg.extractOptions(),
		})
	}

	front := frontier.New(uint(cfg.MaxPages) * 4)

	base, ok := urlutil.NormalizeWith(startURL, seed, excluded)
	if !ok {
		base, _ = urlutil.NormalizeWith(cfg.URL, seed, excluded)
	}
	if base == nil {
		strategy.Close()
		return nil, fmt.Errorf("seed URL %q did not survive normalization", cfg.URL)
	}
	front.PushSeed(base.String())

	pushSeed := func(raw string) {
		u, ok := urlutil.NormalizeWith(raw, base, excluded)
		if !ok || !urlutil.SameOrigin(u, base) || urlutil.IsStaticAsset(u) || !filter.Matches(u) {
			return
		}
		front.PushSeed(u.String())
	}
	miner := discovery.NewMiner(discovery.Config{
		Timeout: cfg.timeout(),
		Headers: cfg.CustomHeaders,
		Cookies: cookies,
	}, log.WithComponent("discovery"))
	for _, s := range miner.Seeds(ctx, base.String(), pushSeed) {
		pushSeed(s)
	}

	sched := &scheduler{
		cfg:      cfg,
		base:     base,
		excluded: excluded,
		filter:   filter,
		strategy: strategy,
		frontier: front,
		store:    store,
		control:  e.control,
		log:      log.WithComponent("scheduler"),
	}
	runErr := sched.run(ctx)

	miner.Wait()
	if err := strategy.Close(); err != nil {
		log.WithError(err).Warn("fetch strategy close failed")
	}

	message := "Scan completed"
	logType := session.LogSuccess
	switch {
	case runErr == control.ErrStopped:
		message = "Scan stopped by user"
		logType = session.LogWarning
	case runErr != nil:
		message = "Scan aborted: " + runErr.Error()
		logType = session.LogError
	}
	store.Emit(session.EmitParams{
		Type:         logType,
		Message:      message,
		QueueSize:    front.Len(),
		VisitedCount: front.VisitedCount(),
	})
	log.Infof("%s: %d results, %d errors", message, store.ResultCount(), store.ErrorCount())

	report := &ScanReport{
		ScanID:       scanID,
		Results:      store.Results(),
		Logs:         store.Logs(),
		ErrorSummary: store.ErrorSummary(),
	}

	if cfg.ArchivePath != "" {
		e.archiveSummary(cfg, report, startedAt, log)
	}

	e.sessions.ScheduleEviction(scanID, cfg.retention(), func(id string) {
		e.control.Cleanup(id)
	})

	if runErr != nil && runErr != control.ErrStopped {
		return report, runErr
	}
	return report, nil
}

// authenticate runs the login preamble when credentials are configured. Its
// failures never abort the scan; they produce a single warning and the crawl
// proceeds unauthenticated from the operator seed.
func (e *Engine) authenticate(ctx context.Context, cfg Config, rich *fetch.Rich, store *session.Store, log *logger.Logger) (map[string]string, string) {
	if cfg.LoginURL == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, cfg.URL
	}

	opts := auth.Options{
		LoginURL:      cfg.LoginURL,
		Username:      cfg.Username,
		Password:      cfg.Password,
		UsernameField: cfg.UsernameField,
		PasswordField: cfg.PasswordField,
		StartURL:      cfg.URL,
		Timeout:       cfg.timeout(),
		Headers:       cfg.CustomHeaders,
	}

	authLog := log.WithComponent("auth")
	var sess *auth.Session
	var err error
	if rich != nil {
		sess, err = auth.BrowserLogin(ctx, rich.Browser(), opts, authLog)
	} else {
		sess, err = auth.Login(ctx, opts, authLog)
	}
	if err != nil {
		authLog.WithError(err).Warn("login failed, crawling unauthenticated")
		store.Emit(session.EmitParams{
			Type:    session.LogWarning,
			Message: "Login failed, crawling unauthenticated",
			Details: err.Error(),
		})
		return nil, cfg.URL
	}

	if sess.Verified {
		store.Emit(session.EmitParams{
			Type:    session.LogSuccess,
			Message: "Login succeeded",
			URL:     sess.StartURL,
		})
	} else {
		store.Emit(session.EmitParams{
			Type:    session.LogWarning,
			Message: "Login could not be verified",
			Details: sess.Warning,
		})
	}
	return sess.Cookies, sess.StartURL
}

func (e *Engine) archiveSummary(cfg Config, report *ScanReport, startedAt time.Time, log *logger.Logger) {
	arch, err := archive.Open(cfg.ArchivePath)
	if err != nil {
		log.WithError(err).Warn("scan archive unavailable")
		return
	}
	defer arch.Close()

	sum := archive.Summary{
		ScanID:       report.ScanID,
		URL:          cfg.URL,
		StartedAt:    startedAt,
		DurationMs:   time.Since(startedAt).Milliseconds(),
		ResultCount:  len(report.Results),
		ErrorCount:   report.ErrorSummary.Total,
		ErrorSummary: report.ErrorSummary,
	}
	if err := arch.SaveSummary(sum); err != nil {
		log.WithError(err).Warn("scan summary not archived")
	}
}

// GetScanLogs returns a copy of the scan's current log buffer; empty once the
// session store has been evicted.
func (e *Engine) GetScanLogs(scanID string) []ScanLog {
	store, ok := e.sessions.Get(scanID)
	if !ok {
		return []ScanLog{}
	}
	return store.Logs()
}

// GetScanResults returns a copy of the scan's current results snapshot.
func (e *Engine) GetScanResults(scanID string) []ScanResult {
	store, ok := e.sessions.Get(scanID)
	if !ok {
		return []ScanResult{}
	}
	return store.Results()
}

// PauseScan suspends new work for a running scan.
func (e *Engine) PauseScan(scanID string) OpStatus {
	if !e.control.Pause(scanID) {
		return OpStatus{Success: false, Message: "unknown scan: " + scanID}
	}
	return OpStatus{Success: true, Message: "scan paused"}
}

// ResumeScan lifts a pause.
func (e *Engine) ResumeScan(scanID string) OpStatus {
	if !e.control.Resume(scanID) {
		return OpStatus{Success: false, Message: "unknown scan: " + scanID}
	}
	return OpStatus{Success: true, Message: "scan resumed"}
}

// StopScan requests crawl termination. Stop is sticky; a stopped scan cannot
// be resumed.
func (e *Engine) StopScan(scanID string) OpStatus {
	if !e.control.Stop(scanID) {
		return OpStatus{Success: false, Message: "unknown scan: " + scanID}
	}
	return OpStatus{Success: true, Message: "scan stopping"}
}

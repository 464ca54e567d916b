package session

import (
	"sync"
	"time"

	"github.com/probeworks/sitescan/internal/errclass"
)

// Store accumulates logs and results for one scan. Safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	scanID        string
	maxLogEntries int
	maxPages      int
	startTime     time.Time

	logs    []Log
	results []Result

	summary *errclass.Summary

	linksFound        int
	responseTimeSum   int64
	responseTimeCount int64
}

// NewStore creates a store for scanID. maxLogEntries bounds the log ring
// buffer; maxPages bounds the results list.
func NewStore(scanID string, maxLogEntries, maxPages int) *Store {
	return &Store{
		scanID:        scanID,
		maxLogEntries: maxLogEntries,
		maxPages:      maxPages,
		startTime:     time.Now(),
		summary:       errclass.NewSummary(),
	}
}

// ScanID returns the scan identifier this store belongs to.
func (s *Store) ScanID() string {
	return s.scanID
}

// AppendLog adds one log entry, dropping the oldest entry on overflow.
func (s *Store) AppendLog(entry Log) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > s.maxLogEntries {
		s.logs = s.logs[len(s.logs)-s.maxLogEntries:]
	}
}

// AppendResult appends r unless the page cap has been reached. Returns false
// once the cap is hit.
func (s *Store) AppendResult(r Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxPages > 0 && len(s.results) >= s.maxPages {
		return false
	}
	s.results = append(s.results, r)
	s.linksFound += len(r.Links)
	return true
}

// SetResults replaces the results list wholesale.
func (s *Store) SetResults(results []Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append([]Result(nil), results...)
	s.linksFound = 0
	for _, r := range results {
		s.linksFound += len(r.Links)
	}
}

// ResultCount returns the number of appended results.
func (s *Store) ResultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// CapReached reports whether the results list is at the page cap.
func (s *Store) CapReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPages > 0 && len(s.results) >= s.maxPages
}

// Logs returns a copy of the current log buffer.
func (s *Store) Logs() []Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Log, len(s.logs))
	copy(out, s.logs)
	return out
}

// Results returns a copy of the current results list.
func (s *Store) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// RecordError feeds one error into the aggregate summary.
func (s *Store) RecordError(url, message string, c errclass.Classification, statusCode int) {
	s.summary.Record(url, message, c, statusCode)
}

// ErrorSummary returns the aggregate error report.
func (s *Store) ErrorSummary() errclass.Report {
	return s.summary.Snapshot()
}

// ErrorCount returns the number of recorded errors.
func (s *Store) ErrorCount() int {
	return s.summary.Total()
}

// ObserveResponseTime folds one response duration into the running average.
func (s *Store) ObserveResponseTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseTimeSum += d.Milliseconds()
	s.responseTimeCount++
}

// LinksFound returns the cumulative number of links reported on results.
func (s *Store) LinksFound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linksFound
}

// EmitParams carries the per-event inputs for Emit; queue and visited counts
// come from the frontier at emit time.
type EmitParams struct {
	Type         string
	Message      string
	URL          string
	Details      string
	QueueSize    int
	VisitedCount int
	ResponseTime time.Duration
}

// Emit builds a Log carrying snapshots of statistics, progress, and
// performance, and appends it to the buffer.
func (s *Store) Emit(p EmitParams) Log {
	s.mu.Lock()

	current := len(s.results)
	total := p.VisitedCount + p.QueueSize
	percentage := 0.0
	if total > 0 {
		percentage = float64(current) / float64(total) * 100
	}

	avg := 0.0
	if s.responseTimeCount > 0 {
		avg = float64(s.responseTimeSum) / float64(s.responseTimeCount)
	}

	entry := Log{
		Type:      p.Type,
		Message:   p.Message,
		Timestamp: time.Now().Format(time.RFC3339),
		URL:       p.URL,
		Details:   p.Details,
		Stats: Stats{
			URLsScanned:  current,
			LinksFound:   s.linksFound,
			Errors:       s.summary.Total(),
			QueueSize:    p.QueueSize,
			VisitedCount: p.VisitedCount,
		},
		Progress: Progress{
			Current:    current,
			Total:      total,
			Percentage: percentage,
		},
		Performance: Performance{
			ResponseTimeMs:        p.ResponseTime.Milliseconds(),
			ElapsedMs:             time.Since(s.startTime).Milliseconds(),
			AverageResponseTimeMs: avg,
		},
	}

	s.logs = append(s.logs, entry)
	if len(s.logs) > s.maxLogEntries {
		s.logs = s.logs[len(s.logs)-s.maxLogEntries:]
	}
	s.mu.Unlock()

	return entry
}

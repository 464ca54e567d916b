// Package session holds per-scan state: the log ring buffer, the results
// snapshot, the error summary, and response-time statistics.
package session

import "github.com/probeworks/sitescan/internal/errclass"

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Log event types.
const (
	LogInfo     = "info"
	LogSuccess  = "success"
	LogWarning  = "warning"
	LogError    = "error"
	LogCritical = "critical"
)

// Result records the outcome of scanning one URL.
type Result struct {
	URL             string   `json:"url"`
	Status          string   `json:"status"`
	StatusCode      int      `json:"statusCode,omitempty"`
	Links           []string `json:"links"`
	ResponseBody    string   `json:"responseBody,omitempty"`
	Error           string   `json:"error,omitempty"`
	ErrorKind       string   `json:"errorKind,omitempty"`
	ErrorSeverity   string   `json:"errorSeverity,omitempty"`
	ErrorRetryable  bool     `json:"errorRetryable,omitempty"`
	SuggestedAction string   `json:"suggestedAction,omitempty"`
	Timestamp       string   `json:"timestamp"`
	Depth           int      `json:"depth"`
}

// Stats is the counter snapshot attached to each log event.
type Stats struct {
	URLsScanned  int `json:"urlsScanned"`
	LinksFound   int `json:"linksFound"`
	Errors       int `json:"errors"`
	QueueSize    int `json:"queueSize"`
	VisitedCount int `json:"visitedCount"`
}

// Progress is the completion snapshot attached to each log event.
type Progress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Performance is the timing snapshot attached to each log event.
type Performance struct {
	ResponseTimeMs        int64   `json:"responseTime,omitempty"`
	ElapsedMs             int64   `json:"elapsedTime"`
	AverageResponseTimeMs float64 `json:"averageResponseTime"`
}

// Log is one emitted scan event.
type Log struct {
	Type        string      `json:"type"`
	Message     string      `json:"message"`
	Timestamp   string      `json:"timestamp"`
	URL         string      `json:"url,omitempty"`
	Details     string      `json:"details,omitempty"`
	Stats       Stats       `json:"stats"`
	Progress    Progress    `json:"progress"`
	Performance Performance `json:"performance"`
}

// ErrorReport re-exports the classifier's aggregate report type.
type ErrorReport = errclass.Report

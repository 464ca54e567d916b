package engine

import (
	"github.com/probeworks/sitescan/internal/errclass"
	"github.com/probeworks/sitescan/internal/session"
)

// ScanResult is the per-URL outcome record.
type ScanResult = session.Result

// ScanLog is one emitted scan event.
type ScanLog = session.Log

// ErrorSummary aggregates classified errors for a scan.
type ErrorSummary = errclass.Report

// ScanReport is the completed-crawl result document.
type ScanReport struct {
	ScanID       string       `json:"scanId"`
	Results      []ScanResult `json:"results"`
	Logs         []ScanLog    `json:"logs"`
	ErrorSummary ErrorSummary `json:"errorSummary"`
}

// OpStatus is the acknowledgement returned by the control operations.
type OpStatus struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

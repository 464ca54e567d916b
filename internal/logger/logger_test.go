package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func newBufferLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Pretty = false
	cfg.Output = &buf
	return New(cfg), &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line %q is not JSON: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLevels(t *testing.T) {
	log, buf := newBufferLogger()

	log.Debug("debug msg")
	log.Info("info msg")
	log.Warn("warn msg")
	log.Error("error msg")

	entries := decodeLines(t, buf)
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3 (debug filtered at info level)", len(entries))
	}

	wantLevels := []string{"info", "warn", "error"}
	for i, entry := range entries {
		if entry["level"] != wantLevels[i] {
			t.Errorf("entry %d level = %v, want %s", i, entry["level"], wantLevels[i])
		}
	}
}

func TestSetLevel(t *testing.T) {
	log, buf := newBufferLogger()

	log.SetLevel(DebugLevel)
	log.Debugf("worker %d claimed", 3)

	entries := decodeLines(t, buf)
	if len(entries) != 1 || entries[0]["message"] != "worker 3 claimed" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name    string
		derive  func(*Logger) *Logger
		wantKey string
		wantVal string
	}{
		{"component", func(l *Logger) *Logger { return l.WithComponent("scheduler") }, "component", "scheduler"},
		{"scan", func(l *Logger) *Logger { return l.WithScan("scan-7") }, "scan_id", "scan-7"},
		{"url", func(l *Logger) *Logger { return l.WithURL("https://example.test/a") }, "url", "https://example.test/a"},
		{"field", func(l *Logger) *Logger { return l.WithField("depth", "2") }, "depth", "2"},
		{"error", func(l *Logger) *Logger { return l.WithError(errors.New("dial refused")) }, "error", "dial refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufferLogger()
			tt.derive(log).Info("event")

			entries := decodeLines(t, buf)
			if len(entries) != 1 {
				t.Fatalf("entries = %d, want 1", len(entries))
			}
			if entries[0][tt.wantKey] != tt.wantVal {
				t.Errorf("%s = %v, want %q", tt.wantKey, entries[0][tt.wantKey], tt.wantVal)
			}
		})
	}
}

func TestDerivedLoggerDoesNotMutateParent(t *testing.T) {
	log, buf := newBufferLogger()

	log.WithScan("scan-1").Info("tagged")
	log.Info("untagged")

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0]["scan_id"] != "scan-1" {
		t.Errorf("tagged entry = %+v", entries[0])
	}
	if _, ok := entries[1]["scan_id"]; ok {
		t.Errorf("parent logger leaked scan_id: %+v", entries[1])
	}
}

func TestRequestEvent(t *testing.T) {
	log, buf := newBufferLogger()

	log.RequestEvent("GET", "https://example.test/login", 302, 120*time.Millisecond)

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry["message"] != "HTTP request" || entry["method"] != "GET" {
		t.Errorf("entry = %+v", entry)
	}
	if entry["url"] != "https://example.test/login" {
		t.Errorf("url = %v", entry["url"])
	}
	if code, ok := entry["status_code"].(float64); !ok || int(code) != 302 {
		t.Errorf("status_code = %v", entry["status_code"])
	}
}

func TestComponentFromConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Pretty = false
	cfg.Output = &buf
	cfg.Component = "fetch"

	New(cfg).Warnf("retrying %s", "https://example.test/")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["component"] != "fetch" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestNopDiscards(t *testing.T) {
	log := Nop()

	// Must be safe through the full helper surface.
	log.WithComponent("engine").WithScan("s").WithURL("u").WithError(errors.New("x")).Error("dropped")
	log.RequestEvent("GET", "https://example.test/", 200, time.Millisecond)
	log.Infof("dropped %d", 1)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"info", InfoLevel, false},
		{"warn", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"shout", InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %t", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

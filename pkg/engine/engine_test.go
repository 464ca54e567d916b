package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testConfig(serverURL string) Config {
	cfg := DefaultConfig()
	cfg.URL = serverURL + "/"
	cfg.TimeoutMs = 5000
	return cfg
}

func findResult(results []ScanResult, suffix string) *ScanResult {
	for i := range results {
		if strings.HasSuffix(results[i].URL, suffix) {
			return &results[i]
		}
	}
	return nil
}

func TestScanSingleStaticPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/about">a</a><a href="https://other.test/">x</a>`))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<p>about us</p>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e := New(nil)
	report, err := e.ScanWebsite(context.Background(), testConfig(server.URL))
	if err != nil {
		t.Fatalf("ScanWebsite: %v", err)
	}

	if len(report.Results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(report.Results), report.Results)
	}
	root := findResult(report.Results, server.URL[len("http://"):]+"/")
	if root == nil {
		root = findResult(report.Results, ":"+strings.Split(server.URL, ":")[2]+"/")
	}
	for i := range report.Results {
		if report.Results[i].Status != "success" {
			t.Errorf("result %s status = %s", report.Results[i].URL, report.Results[i].Status)
		}
		if strings.Contains(report.Results[i].URL, "other.test") {
			t.Errorf("cross-origin URL scanned: %s", report.Results[i].URL)
		}
	}
	about := findResult(report.Results, "/about")
	if about == nil {
		t.Fatal("missing /about result")
	}
	if len(about.Links) != 0 {
		t.Errorf("/about links = %v, want none", about.Links)
	}
	if root := findResult(report.Results, "/"); root != nil && report.Results[0].Depth != 0 {
		t.Errorf("seed depth = %d, want 0", report.Results[0].Depth)
	}
	if about.Depth != 1 {
		t.Errorf("/about depth = %d, want 1", about.Depth)
	}
}

func TestScanSoft404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<h1>404 Not Found</h1>`))
	}))
	defer server.Close()

	e := New(nil)
	cfg := testConfig(server.URL)
	cfg.URL = server.URL + "/missing"
	report, err := e.ScanWebsite(context.Background(), cfg)
	if err != nil {
		t.Fatalf("ScanWebsite: %v", err)
	}

	if len(report.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(report.Results))
	}
	r := report.Results[0]
	if r.StatusCode != 404 {
		t.Errorf("statusCode = %d, want corrected 404", r.StatusCode)
	}
	if r.Status != "error" {
		t.Errorf("status = %s, want error", r.Status)
	}
	if r.ResponseBody == "" || !strings.Contains(r.ResponseBody, "404 Not Found") {
		t.Errorf("responseBody = %q", r.ResponseBody)
	}
	if r.ErrorKind != "client" || r.ErrorSeverity != "medium" {
		t.Errorf("classification = %s/%s", r.ErrorKind, r.ErrorSeverity)
	}
	if report.ErrorSummary.Total != 1 {
		t.Errorf("errorSummary total = %d", report.ErrorSummary.Total)
	}
}

func TestScanStaticAssetFilter(t *testing.T) {
	var cssRequested bool
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/x.css">c</a><a href="/p">p</a>`))
	})
	mux.HandleFunc("/p", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page"))
	})
	mux.HandleFunc("/x.css", func(w http.ResponseWriter, r *http.Request) {
		cssRequested = true
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e := New(nil)
	report, err := e.ScanWebsite(context.Background(), testConfig(server.URL))
	if err != nil {
		t.Fatalf("ScanWebsite: %v", err)
	}

	if findResult(report.Results, "/p") == nil {
		t.Error("/p was not scanned")
	}
	if findResult(report.Results, "/x.css") != nil {
		t.Error("static asset /x.css produced a result")
	}
	if cssRequested {
		t.Error("static asset /x.css was fetched")
	}
	for _, r := range report.Results {
		for _, l := range r.Links {
			if strings.HasSuffix(l, ".css") {
				t.Errorf("static asset leaked into links of %s: %v", r.URL, r.Links)
			}
		}
	}
}

func TestScanPathRegexFilter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/admin/x">a</a><a href="/public/y">b</a><a href="/api/v1/z">c</a>`))
	})
	mux.HandleFunc("/admin/x", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("a")) })
	mux.HandleFunc("/public/y", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("b")) })
	mux.HandleFunc("/api/v1/z", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("c")) })
	server := httptest.NewServer(mux)
	defer server.Close()

	e := New(nil)
	cfg := testConfig(server.URL)
	cfg.PathRegexFilter = "/admin|/api"
	report, err := e.ScanWebsite(context.Background(), cfg)
	if err != nil {
		t.Fatalf("ScanWebsite: %v", err)
	}

	if findResult(report.Results, "/admin/x") == nil || findResult(report.Results, "/api/v1/z") == nil {
		t.Errorf("matching paths missing from results: %+v", report.Results)
	}
	if findResult(report.Results, "/public/y") != nil {
		t.Error("/public/y should have been filtered out")
	}
	if findResult(report.Results, server.URL+"/") == nil && len(report.Results) < 3 {
		t.Error("seed itself should be scanned regardless of filter")
	}
}

func TestScanInvalidRegexBlocksDiscovery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/next">n</a>`))
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("n")) })
	server := httptest.NewServer(mux)
	defer server.Close()

	e := New(nil)
	cfg := testConfig(server.URL)
	cfg.PathRegexFilter = "[unclosed"
	report, err := e.ScanWebsite(context.Background(), cfg)
	if err != nil {
		t.Fatalf("ScanWebsite: %v", err)
	}

	if len(report.Results) != 1 {
		t.Errorf("got %d results, want only the seed", len(report.Results))
	}
}

func TestScanMaxPagesOne(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/a">a</a><a href="/b">b</a>`))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("a")) })
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("b")) })
	server := httptest.NewServer(mux)
	defer server.Close()

	e := New(nil)
	cfg := testConfig(server.URL)
	cfg.MaxPages = 1
	report, err := e.ScanWebsite(context.Background(), cfg)
	if err != nil {
		t.Fatalf("ScanWebsite: %v", err)
	}
	if len(report.Results) != 1 {
		t.Errorf("got %d results, want exactly 1", len(report.Results))
	}
}

func TestScanMaxDepth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/d1">1</a>`))
	})
	mux.HandleFunc("/d1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/d2">2</a>`))
	})
	mux.HandleFunc("/d2", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("2")) })
	server := httptest.NewServer(mux)
	defer server.Close()

	e := New(nil)
	cfg := testConfig(server.URL)
	cfg.MaxDepth = 2
	report, err := e.ScanWebsite(context.Background(), cfg)
	if err != nil {
		t.Fatalf("ScanWebsite: %v", err)
	}

	if findResult(report.Results, "/d1") == nil {
		t.Error("/d1 (depth 1) should be scanned")
	}
	if findResult(report.Results, "/d2") != nil {
		t.Error("/d2 (depth 2) should not be enqueued with maxDepth 2")
	}
}

func TestScanFailFastOnEmptySeed(t *testing.T) {
	e := New(nil)
	if _, err := e.ScanWebsite(context.Background(), Config{}); err == nil {
		t.Error("expected validation error for empty seed")
	}
	if logs := e.GetScanLogs("never-created"); len(logs) != 0 {
		t.Errorf("no session state should exist, got %d logs", len(logs))
	}
}

func TestScanStop(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		var b strings.Builder
		for i := 0; i < 50; i++ {
			fmt.Fprintf(&b, `<a href="/page/%d">p</a>`, i)
		}
		w.Write([]byte(b.String()))
	})
	mux.HandleFunc("/page/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		w.Write([]byte("page"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e := New(nil)
	cfg := testConfig(server.URL)
	cfg.ScanID = "stop-test"
	cfg.MaxConcurrent = 2

	reportCh := make(chan *ScanReport, 1)
	go func() {
		report, _ := e.ScanWebsite(context.Background(), cfg)
		reportCh <- report
	}()

	deadline := time.Now().Add(10 * time.Second)
	for len(e.GetScanResults("stop-test")) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("scan produced no results in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st := e.StopScan("stop-test"); !st.Success {
		t.Fatalf("StopScan: %+v", st)
	}

	var report *ScanReport
	select {
	case report = <-reportCh:
	case <-time.After(10 * time.Second):
		t.Fatal("scan did not terminate after stop")
	}

	if len(report.Results) >= 51 {
		t.Errorf("stop did not cut the crawl short: %d results", len(report.Results))
	}
	last := report.Logs[len(report.Logs)-1]
	if last.Message != "Scan stopped by user" {
		t.Errorf("terminal log = %q, want stop notice", last.Message)
	}
}

func TestScanPauseResume(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		var b strings.Builder
		for i := 0; i < 12; i++ {
			fmt.Fprintf(&b, `<a href="/page/%d">p</a>`, i)
		}
		w.Write([]byte(b.String()))
	})
	mux.HandleFunc("/page/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte("page"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e := New(nil)
	cfg := testConfig(server.URL)
	cfg.ScanID = "pause-test"
	cfg.MaxConcurrent = 2

	reportCh := make(chan *ScanReport, 1)
	go func() {
		report, _ := e.ScanWebsite(context.Background(), cfg)
		reportCh <- report
	}()

	deadline := time.Now().Add(10 * time.Second)
	for len(e.GetScanResults("pause-test")) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("scan produced no results in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st := e.PauseScan("pause-test"); !st.Success {
		t.Fatalf("PauseScan: %+v", st)
	}

	// Let in-flight workers land, then verify nothing new starts.
	time.Sleep(300 * time.Millisecond)
	before := len(e.GetScanResults("pause-test"))
	time.Sleep(500 * time.Millisecond)
	after := len(e.GetScanResults("pause-test"))
	if after != before {
		t.Errorf("results grew from %d to %d while paused", before, after)
	}

	if st := e.ResumeScan("pause-test"); !st.Success {
		t.Fatalf("ResumeScan: %+v", st)
	}

	select {
	case report := <-reportCh:
		if len(report.Results) != 13 {
			t.Errorf("got %d results after resume, want 13", len(report.Results))
		}
	case <-time.After(15 * time.Second):
		t.Fatal("scan did not finish after resume")
	}
}

func TestControlOpsUnknownScan(t *testing.T) {
	e := New(nil)
	if st := e.PauseScan("ghost"); st.Success {
		t.Error("pause of unknown scan should fail")
	}
	if st := e.ResumeScan("ghost"); st.Success {
		t.Error("resume of unknown scan should fail")
	}
	if st := e.StopScan("ghost"); st.Success {
		t.Error("stop of unknown scan should fail")
	}
}

func TestScanObserversSeeProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	e := New(nil)
	cfg := testConfig(server.URL)
	cfg.ScanID = "observer-test"
	report, err := e.ScanWebsite(context.Background(), cfg)
	if err != nil {
		t.Fatalf("ScanWebsite: %v", err)
	}

	// The store survives for the retention window after completion.
	logs := e.GetScanLogs("observer-test")
	if len(logs) == 0 {
		t.Fatal("no logs visible after completion")
	}
	if logs[0].Message != "Scan started" {
		t.Errorf("first log = %q", logs[0].Message)
	}
	results := e.GetScanResults("observer-test")
	if len(results) != len(report.Results) {
		t.Errorf("observer results = %d, report results = %d", len(results), len(report.Results))
	}
}

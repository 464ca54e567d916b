package archive

import (
	"path/filepath"
	"testing"
	"time"
)

func TestArchiveRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "scans.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	first := Summary{
		ScanID:      "scan-a",
		URL:         "https://example.test/",
		StartedAt:   time.Now().UTC().Truncate(time.Second),
		DurationMs:  1234,
		ResultCount: 42,
		ErrorCount:  3,
	}
	if err := store.SaveSummary(first); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}
	if err := store.SaveSummary(Summary{ScanID: "scan-b", URL: "https://other.test/"}); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}

	sums, err := store.ListSummaries()
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("got %d summaries, want 2", len(sums))
	}
	if sums[0].ScanID != "scan-a" || sums[0].ResultCount != 42 || sums[0].ErrorCount != 3 {
		t.Errorf("first summary = %+v", sums[0])
	}
}

func TestArchiveOverwriteByScanID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "scans.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	store.SaveSummary(Summary{ScanID: "scan-a", ResultCount: 1})
	store.SaveSummary(Summary{ScanID: "scan-a", ResultCount: 2})

	sums, err := store.ListSummaries()
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	if len(sums) != 1 || sums[0].ResultCount != 2 {
		t.Errorf("summaries = %+v, want single overwritten record", sums)
	}
}

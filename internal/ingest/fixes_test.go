package ingest

import (
	"strings"
	"testing"
	"time"
)

const fixesCSV = `time,lat_deg,lon_deg,alt_m
2024-06-01T10:00:00Z,52.5,13.4,35.0
2024-06-01T10:02:00Z,52.6,13.5,36.0
2024-06-01T10:01:00Z,52.55,13.45,35.5
`

func TestReadFixesSortsByTime(t *testing.T) {
	fixes, err := ReadFixes(strings.NewReader(fixesCSV))
	if err != nil {
		t.Fatalf("ReadFixes: %v", err)
	}
	if fixes.Len() != 3 {
		t.Fatalf("Len = %d, want 3", fixes.Len())
	}

	at := time.Date(2024, time.June, 1, 10, 1, 10, 0, time.UTC)
	fix := fixes.Nearest(at, time.Minute)
	if fix == nil {
		t.Fatal("Nearest returned nil inside the window")
	}
	// The out-of-order middle row is the closest once sorted.
	if fix.LatDeg != 52.55 {
		t.Errorf("nearest fix lat = %v, want 52.55", fix.LatDeg)
	}
}

func TestNearestRespectsWindow(t *testing.T) {
	fixes, err := ReadFixes(strings.NewReader(fixesCSV))
	if err != nil {
		t.Fatalf("ReadFixes: %v", err)
	}

	at := time.Date(2024, time.June, 1, 11, 0, 0, 0, time.UTC)
	if fix := fixes.Nearest(at, time.Minute); fix != nil {
		t.Errorf("Nearest = %+v outside the window, want nil", fix)
	}
	if fix := fixes.Nearest(at, 2*time.Hour); fix == nil {
		t.Error("Nearest = nil with a wide window")
	}
}

func TestNearestOnEmptySet(t *testing.T) {
	fixes, err := ReadFixes(strings.NewReader("time,lat_deg,lon_deg,alt_m\n"))
	if err != nil {
		t.Fatalf("ReadFixes: %v", err)
	}
	if fix := fixes.Nearest(time.Now(), time.Hour); fix != nil {
		t.Errorf("Nearest on empty set = %+v, want nil", fix)
	}
}

func TestReadFixesRejectsBadRow(t *testing.T) {
	bad := "time,lat_deg,lon_deg,alt_m\nnot-a-time,52.5,13.4,35.0\n"
	if _, err := ReadFixes(strings.NewReader(bad)); err == nil {
		t.Error("bad timestamp accepted")
	}
}

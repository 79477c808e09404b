package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteKML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.kml")
	if err := WriteKML(path, "test run", sampleResults()); err != nil {
		t.Fatalf("WriteKML: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	doc := string(data)

	if !strings.Contains(doc, "<kml xmlns=\"http://www.opengis.net/kml/2.2\">") {
		t.Error("missing kml namespace")
	}
	// Two solved epochs produce two placemarks; the skipped one is
	// dropped.
	if got := strings.Count(doc, "<Placemark>"); got != 2 {
		t.Errorf("got %d placemarks, want 2", got)
	}
	if !strings.Contains(doc, "#clean") || !strings.Contains(doc, "#spoofed") {
		t.Error("verdict styles not applied")
	}
	if !strings.Contains(doc, "spoofed: [high RMS]") {
		t.Error("spoofed description missing reasons")
	}
}

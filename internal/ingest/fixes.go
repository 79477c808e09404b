package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// FixSet holds a time-ordered sequence of external fixes and answers
// nearest-in-time lookups for the classifier's cross-check rule.
type FixSet struct {
	fixes []model.ExternalFix
}

// ReadFixes reads `time,lat_deg,lon_deg,alt_m` rows (RFC3339
// timestamps, header required) and returns them sorted by time.
func ReadFixes(r io.Reader) (*FixSet, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("reading fixes header: %w", err)
	}

	var fixes []model.ExternalFix
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading fix row %d: %w", line, err)
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("fix row %d: want 4 columns, got %d", line, len(rec))
		}
		t, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("fix row %d: bad timestamp: %w", line, err)
		}
		lat, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("fix row %d: bad latitude: %w", line, err)
		}
		lon, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("fix row %d: bad longitude: %w", line, err)
		}
		alt, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("fix row %d: bad altitude: %w", line, err)
		}
		fixes = append(fixes, model.ExternalFix{Time: t, LatDeg: lat, LonDeg: lon, AltM: alt})
	}

	sort.Slice(fixes, func(i, j int) bool { return fixes[i].Time.Before(fixes[j].Time) })
	return &FixSet{fixes: fixes}, nil
}

// ReadFixesFile is ReadFixes over a file path.
func ReadFixesFile(path string) (*FixSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening fixes: %w", err)
	}
	defer f.Close()
	return ReadFixes(f)
}

// Len returns the number of fixes.
func (s *FixSet) Len() int { return len(s.fixes) }

// Nearest returns the fix closest in time to at, or nil when none
// falls within the window.
func (s *FixSet) Nearest(at time.Time, window time.Duration) *model.ExternalFix {
	if s == nil || len(s.fixes) == 0 {
		return nil
	}
	i := sort.Search(len(s.fixes), func(i int) bool {
		return !s.fixes[i].Time.Before(at)
	})

	best := -1
	var bestDiff time.Duration
	for _, cand := range []int{i - 1, i} {
		if cand < 0 || cand >= len(s.fixes) {
			continue
		}
		diff := absDuration(s.fixes[cand].Time.Sub(at))
		if best == -1 || diff < bestDiff {
			best, bestDiff = cand, diff
		}
	}
	if best == -1 || bestDiff > window {
		return nil
	}
	fix := s.fixes[best]
	return &fix
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Package export writes pipeline results to review-friendly formats.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

var resultsHeader = []string{
	"epoch_key", "week", "tow_sec", "skipped", "skip_reason",
	"x_m", "y_m", "z_m", "clock_bias_m", "rms_m",
	"lat_deg", "lon_deg", "alt_m",
	"flagged_sat_ids", "excluded_sat_ids", "reasons",
}

// CSVWriter streams epoch results into a CSV file, one row per epoch.
type CSVWriter struct {
	f *os.File
	w *csv.Writer
}

// NewCSVWriter creates (truncating) the output file and writes the header.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating results csv: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(resultsHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	return &CSVWriter{f: f, w: w}, nil
}

// Write appends one epoch result row.
func (c *CSVWriter) Write(r model.EpochResult) error {
	row := []string{
		strconv.FormatInt(r.EpochKey, 10),
		strconv.Itoa(r.Week),
		formatFloat(r.TowSec),
		strconv.FormatBool(r.Skipped()),
		r.SkipReason,
	}
	if r.Skipped() {
		row = append(row, "", "", "", "", "", "", "", "", "", "", "")
	} else {
		est, verdict := r.Estimate, r.Verdict
		row = append(row,
			formatFloat(est.X), formatFloat(est.Y), formatFloat(est.Z),
			formatFloat(est.ClockBiasM), formatFloat(est.RMS),
			formatFloat(est.Geodetic.LatDeg), formatFloat(est.Geodetic.LonDeg),
			formatFloat(est.Geodetic.AltM),
			strings.Join(verdict.FlaggedSatIDs, " "),
			strings.Join(est.ExcludedSatIDs, " "),
			strings.Join(verdict.Reasons, ";"),
		)
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("writing epoch %d: %w", r.EpochKey, err)
	}
	return nil
}

// Close flushes buffered rows and closes the file.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.f.Close()
		return fmt.Errorf("flushing results csv: %w", err)
	}
	return c.f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

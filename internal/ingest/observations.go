// Package ingest reads parsed observation and fix files into the model
// types the pipeline consumes. Raw receiver-log parsing happens
// upstream; these readers only load its already-extracted output.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// observation CSV column layout. A header row naming these columns is
// required; column order is free.
var obsColumns = []string{
	"week", "tow_sec", "sat_id", "constellation",
	"pseudorange_m", "cn0_dbhz", "doppler_ms", "band", "transmit_sec",
}

// ReadEpochs reads observation rows from r and groups consecutive rows
// sharing a reception time into epochs, keyed in file order. Rows are
// expected in time order; a backwards step in reception time is a
// malformed input and is rejected.
func ReadEpochs(r io.Reader) ([]*model.Epoch, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading observation header: %w", err)
	}
	col, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var (
		epochs  []*model.Epoch
		current *model.Epoch
		lastTow = math.Inf(-1)
		lastWk  = -1
		key     int64
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading observation row %d: %w", line, err)
		}

		week, err := strconv.Atoi(rec[col["week"]])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad week: %w", line, err)
		}
		tow, err := strconv.ParseFloat(rec[col["tow_sec"]], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad tow_sec: %w", line, err)
		}
		if week < lastWk || (week == lastWk && tow < lastTow) {
			return nil, fmt.Errorf("row %d: reception time goes backwards", line)
		}

		obs := model.Observation{
			SatID:         rec[col["sat_id"]],
			Constellation: model.Constellation(rec[col["constellation"]]),
			PseudorangeM:  parseFloatOrNaN(rec[col["pseudorange_m"]]),
			CN0DbHz:       parseFloatOrNaN(rec[col["cn0_dbhz"]]),
			DopplerMS:     parseFloatOrNaN(rec[col["doppler_ms"]]),
			Band:          rec[col["band"]],
			TransmitSec:   parseFloatOrNaN(rec[col["transmit_sec"]]),
		}

		if current == nil || week != lastWk || tow != lastTow {
			current = &model.Epoch{
				Key:    key,
				Week:   week,
				TowSec: tow,
				Time:   timeOfWeek(week, tow),
			}
			epochs = append(epochs, current)
			key++
		}
		current.Observations = append(current.Observations, obs)
		lastWk, lastTow = week, tow
	}
	return epochs, nil
}

// ReadEpochsFile is ReadEpochs over a file path.
func ReadEpochsFile(path string) ([]*model.Epoch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening observations: %w", err)
	}
	defer f.Close()
	return ReadEpochs(f)
}

func columnIndex(header []string) (map[string]int, error) {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range obsColumns {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("observation CSV missing column %q", want)
		}
	}
	return col, nil
}

// parseFloatOrNaN maps empty or unparseable numeric fields to NaN,
// leaving it to the core's absent-value handling instead of failing
// the whole file.
func parseFloatOrNaN(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func timeOfWeek(week int, tow float64) time.Time {
	return gpsEpoch.
		Add(time.Duration(week) * 7 * 24 * time.Hour).
		Add(time.Duration(tow * float64(time.Second)))
}

package ingest

import (
	"math"
	"strings"
	"testing"
)

const obsCSV = `week,tow_sec,sat_id,constellation,pseudorange_m,cn0_dbhz,doppler_ms,band,transmit_sec
2200,100000.0,G01,G,21000000.5,45.0,300.2,L1,99999.93
2200,100000.0,G07,G,22500000.1,41.5,,L1,99999.92
2200,100001.0,G01,G,21000100.5,45.1,299.8,L1,100000.93
`

func TestReadEpochsGroupsByReceptionTime(t *testing.T) {
	epochs, err := ReadEpochs(strings.NewReader(obsCSV))
	if err != nil {
		t.Fatalf("ReadEpochs: %v", err)
	}
	if len(epochs) != 2 {
		t.Fatalf("got %d epochs, want 2", len(epochs))
	}

	first := epochs[0]
	if first.Key != 0 || first.Week != 2200 || first.TowSec != 100000.0 {
		t.Errorf("first epoch = key %d week %d tow %v", first.Key, first.Week, first.TowSec)
	}
	if len(first.Observations) != 2 {
		t.Fatalf("first epoch has %d observations, want 2", len(first.Observations))
	}
	if first.Observations[0].SatID != "G01" || first.Observations[1].SatID != "G07" {
		t.Errorf("observation order wrong: %+v", first.Observations)
	}
	// Empty doppler field maps to NaN rather than failing the file.
	if !math.IsNaN(first.Observations[1].DopplerMS) {
		t.Errorf("missing doppler = %v, want NaN", first.Observations[1].DopplerMS)
	}
	if first.Observations[1].HasDoppler() {
		t.Error("HasDoppler = true for missing doppler")
	}

	second := epochs[1]
	if second.Key != 1 || len(second.Observations) != 1 {
		t.Errorf("second epoch = key %d with %d observations", second.Key, len(second.Observations))
	}
	if !second.Time.After(first.Time) {
		t.Errorf("epoch times not increasing: %v then %v", first.Time, second.Time)
	}
}

func TestReadEpochsColumnOrderIsFree(t *testing.T) {
	reordered := `sat_id,week,tow_sec,constellation,band,pseudorange_m,cn0_dbhz,doppler_ms,transmit_sec
G01,2200,100000.0,G,L1,21000000.5,45.0,300.2,99999.93
`
	epochs, err := ReadEpochs(strings.NewReader(reordered))
	if err != nil {
		t.Fatalf("ReadEpochs: %v", err)
	}
	if len(epochs) != 1 || epochs[0].Observations[0].PseudorangeM != 21000000.5 {
		t.Errorf("reordered columns misparsed: %+v", epochs)
	}
}

func TestReadEpochsRejectsMissingColumn(t *testing.T) {
	_, err := ReadEpochs(strings.NewReader("week,tow_sec,sat_id\n"))
	if err == nil || !strings.Contains(err.Error(), "missing column") {
		t.Errorf("err = %v, want missing column", err)
	}
}

func TestReadEpochsRejectsBackwardsTime(t *testing.T) {
	backwards := `week,tow_sec,sat_id,constellation,pseudorange_m,cn0_dbhz,doppler_ms,band,transmit_sec
2200,100001.0,G01,G,21000000.5,45.0,300.2,L1,100000.93
2200,100000.0,G01,G,21000000.5,45.0,300.2,L1,99999.93
`
	if _, err := ReadEpochs(strings.NewReader(backwards)); err == nil {
		t.Error("backwards reception time accepted")
	}
}

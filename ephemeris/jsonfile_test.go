package ephemeris

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

const elementsJSON = `{
  "satellites": [
    {
      "sat_id": "G07",
      "constellation": "G",
      "sqrt_a": 5153.65,
      "e": 0.0123,
      "m_0": 1.2,
      "omega": -2.1,
      "omega_0": 0.5,
      "omega_dot": -8.1e-9,
      "i_0": 0.96,
      "i_dot": 3.0e-10,
      "delta_n": 4.5e-9,
      "c_uc": 1.1e-6,
      "c_us": 8.0e-6,
      "c_rc": 200.5,
      "c_rs": 20.4,
      "c_ic": -7.5e-8,
      "c_is": 1.3e-7,
      "t_oe": 252000,
      "sv_clock_bias": 1.5e-4,
      "sv_clock_drift": 2.3e-11,
      "sv_clock_drift_rate": 0,
      "t_oc": 252000,
      "valid_from": "2024-06-01T10:00:00Z",
      "valid_until": "2024-06-01T14:00:00Z"
    },
    {
      "sat_id": "R12",
      "constellation": "R",
      "pos": [19123456.0, -5123456.0, 14123456.0],
      "vel": [1234.5, -2345.6, 345.7],
      "frame_time": 45000,
      "rel_freq_bias": 1.8e-12,
      "sv_clock_bias": -6.4e-5
    }
  ]
}`

func TestLoadParsesKeplerianSet(t *testing.T) {
	p, err := Load(strings.NewReader(elementsJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	eph, err := p.Elements(context.Background(), "G07", time.Now())
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	if eph.Constellation != model.ConstellationGPS {
		t.Errorf("constellation = %q, want G", eph.Constellation)
	}
	if !eph.HasKeplerian() {
		t.Error("HasKeplerian = false")
	}
	if eph.SqrtA != 5153.65 || eph.Ecc != 0.0123 || eph.Toe != 252000 {
		t.Errorf("keplerian fields wrong: %+v", eph)
	}
	if eph.ClockBias != 1.5e-4 || eph.ClockDrift != 2.3e-11 {
		t.Errorf("clock fields wrong: bias %v drift %v", eph.ClockBias, eph.ClockDrift)
	}
	wantFrom := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	if !eph.FetchedFor.Equal(wantFrom) {
		t.Errorf("FetchedFor = %v, want %v", eph.FetchedFor, wantFrom)
	}
}

func TestLoadParsesStateVectorSet(t *testing.T) {
	p, err := Load(strings.NewReader(elementsJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	eph, err := p.Elements(context.Background(), "R12", time.Now())
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	if eph.Constellation != model.ConstellationGLONASS {
		t.Errorf("constellation = %q, want R", eph.Constellation)
	}
	if !eph.HasStateVector() {
		t.Error("HasStateVector = false")
	}
	if eph.PosX != 19123456.0 || eph.VelY != -2345.6 || eph.FrameTime != 45000 {
		t.Errorf("state-vector fields wrong: %+v", eph)
	}
}

func TestElementsNotFound(t *testing.T) {
	p, err := Load(strings.NewReader(elementsJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := p.Elements(context.Background(), "E31", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadRejectsMalformedDocument(t *testing.T) {
	if _, err := Load(strings.NewReader("{not json")); err == nil {
		t.Error("malformed document accepted")
	}
}

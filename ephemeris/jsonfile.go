package ephemeris

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// FileProvider serves orbital elements from a JSON document loaded once
// at startup. It backs offline runs and tests; online acquisition from
// a navigation-data service is an external concern and plugs in behind
// the same Provider interface.
type FileProvider struct {
	elements map[string]*model.OrbitalElements
}

// internal JSON shapes - unexported so the on-disk format can evolve.
type elementsFileJSON struct {
	Satellites []elementJSON `json:"satellites"`
}

type elementJSON struct {
	SatID         string  `json:"sat_id"`
	Constellation string  `json:"constellation"`
	SqrtA         float64 `json:"sqrt_a"`
	Ecc           float64 `json:"e"`
	M0            float64 `json:"m_0"`
	Omega         float64 `json:"omega"`
	Omega0        float64 `json:"omega_0"`
	OmegaDot      float64 `json:"omega_dot"`
	I0            float64 `json:"i_0"`
	IDot          float64 `json:"i_dot"`
	DeltaN        float64 `json:"delta_n"`
	Cuc           float64 `json:"c_uc"`
	Cus           float64 `json:"c_us"`
	Crc           float64 `json:"c_rc"`
	Crs           float64 `json:"c_rs"`
	Cic           float64 `json:"c_ic"`
	Cis           float64 `json:"c_is"`
	Toe           float64 `json:"t_oe"`
	ClockBias     float64 `json:"sv_clock_bias"`
	ClockDrift    float64 `json:"sv_clock_drift"`
	ClockDriftRt  float64 `json:"sv_clock_drift_rate"`
	Toc           float64 `json:"t_oc"`

	Pos       [3]float64 `json:"pos,omitempty"`
	Vel       [3]float64 `json:"vel,omitempty"`
	FrameTime float64    `json:"frame_time,omitempty"`
	RelFreqB  float64    `json:"rel_freq_bias,omitempty"`

	TLELine1 string `json:"tle_line1,omitempty"`
	TLELine2 string `json:"tle_line2,omitempty"`

	ValidFrom  string `json:"valid_from,omitempty"`
	ValidUntil string `json:"valid_until,omitempty"`
}

// LoadFile reads a JSON elements document from path.
func LoadFile(path string) (*FileProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening elements file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a JSON elements document from r.
func Load(r io.Reader) (*FileProvider, error) {
	var payload elementsFileJSON
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding elements file: %w", err)
	}

	p := &FileProvider{elements: make(map[string]*model.OrbitalElements, len(payload.Satellites))}
	for _, e := range payload.Satellites {
		eph := &model.OrbitalElements{
			SatID:          e.SatID,
			Constellation:  model.Constellation(e.Constellation),
			SqrtA:          e.SqrtA,
			Ecc:            e.Ecc,
			M0:             e.M0,
			Omega:          e.Omega,
			Omega0:         e.Omega0,
			OmegaD:         e.OmegaDot,
			I0:             e.I0,
			IDot:           e.IDot,
			DeltaN:         e.DeltaN,
			Cuc:            e.Cuc,
			Cus:            e.Cus,
			Crc:            e.Crc,
			Crs:            e.Crs,
			Cic:            e.Cic,
			Cis:            e.Cis,
			Toe:            e.Toe,
			ClockBias:      e.ClockBias,
			ClockDrift:     e.ClockDrift,
			ClockDriftRate: e.ClockDriftRt,
			Toc:            e.Toc,
			PosX:           e.Pos[0],
			PosY:           e.Pos[1],
			PosZ:           e.Pos[2],
			VelX:           e.Vel[0],
			VelY:           e.Vel[1],
			VelZ:           e.Vel[2],
			FrameTime:      e.FrameTime,
			RelFreqBias:    e.RelFreqB,
			TLELine1:       e.TLELine1,
			TLELine2:       e.TLELine2,
		}
		if t, err := time.Parse(time.RFC3339, e.ValidFrom); err == nil {
			eph.FetchedFor = t
		}
		if t, err := time.Parse(time.RFC3339, e.ValidUntil); err == nil {
			eph.ValidUntil = t
		}
		p.elements[e.SatID] = eph
	}
	return p, nil
}

// Elements implements Provider. The file either has a satellite or it
// does not; the requested time only matters through the validity
// window recorded per entry.
func (p *FileProvider) Elements(_ context.Context, satID string, _ time.Time) (*model.OrbitalElements, error) {
	eph, ok := p.elements[satID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, satID)
	}
	return eph, nil
}

package core

import (
	"math"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// Screening constants. Receiver-dependent; the CN0 floor in particular
// should be tuned per device.
const (
	minHealthyCN0DbHz = 30.0

	// maxSatelliteRangeM is roughly the greatest distance to a
	// medium-Earth-orbit navigation satellite.
	maxSatelliteRangeM = 26600000.0
	rangeSlackM        = 1000.0
)

// ScreenObservations runs cheap plausibility checks on an epoch before
// the solve: CN0 below the healthy floor, duplicated satellite IDs
// within the epoch, and propagated satellite positions at impossible
// ranges from the reference point. Hits are reported, not removed; the
// verdict surfaces them as pre-solve suspicion.
//
// reference is the best position known before solving (the previous
// epoch's estimate, or the origin when there is none); satPos entries
// align with obs and may be unusable.
func ScreenObservations(obs []model.Observation, satPos []model.SatellitePositionResult, reference Vec3) []string {
	seen := make(map[string]int, len(obs))
	suspicious := make(map[string]bool)

	for _, o := range obs {
		seen[o.SatID]++
		if o.CN0DbHz < minHealthyCN0DbHz || math.IsNaN(o.CN0DbHz) {
			suspicious[o.SatID] = true
		}
	}
	for id, count := range seen {
		if count > 1 {
			suspicious[id] = true
		}
	}

	for i, sp := range satPos {
		if i >= len(obs) || !sp.Usable() {
			continue
		}
		d := reference.DistanceTo(Vec3{X: sp.X, Y: sp.Y, Z: sp.Z})
		if d > maxSatelliteRangeM+rangeSlackM || d < rangeSlackM {
			suspicious[obs[i].SatID] = true
		}
	}

	ids := make([]string, 0, len(suspicious))
	for _, o := range obs {
		if suspicious[o.SatID] {
			ids = append(ids, o.SatID)
			suspicious[o.SatID] = false
		}
	}
	return ids
}

package core

import (
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// gpsEpoch is the origin of GPS time (no leap-second handling here; the
// TLE fallback is metre-level at best anyway).
var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// TLEPropagator propagates a satellite with SGP4 from a two-line
// element set. It is the fallback variant for satellites that carry no
// usable broadcast ephemeris; accuracy is far below the broadcast
// models and positions derived from it should only anchor coarse
// plausibility checks.
type TLEPropagator struct {
	sat satellite.Satellite
}

// NewTLEPropagator parses the TLE lines once and reuses the resulting
// SGP4 state for every propagation.
func NewTLEPropagator(line1, line2 string) *TLEPropagator {
	return &TLEPropagator{sat: satellite.TLEToSat(line1, line2, satellite.GravityWGS72)}
}

// Propagate runs SGP4 at the UTC instant corresponding to transmitSec
// within the GPS week of the ephemeris fetch time, then rotates the ECI
// result into ECEF. go-satellite works in kilometres; results are
// returned in metres.
func (p *TLEPropagator) Propagate(eph *model.OrbitalElements, transmitSec float64) model.SatellitePositionResult {
	t := timeOfWeek(eph.FetchedFor, transmitSec)
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	const kmToM = 1000.0
	return model.SatellitePositionResult{
		SatID:     eph.SatID,
		X:         posECEF.X * kmToM,
		Y:         posECEF.Y * kmToM,
		Z:         posECEF.Z * kmToM,
		ClockBias: eph.ClockBias,
	}
}

// timeOfWeek resolves a seconds-of-week value to an absolute UTC time,
// anchored to the GPS week containing ref.
func timeOfWeek(ref time.Time, towSec float64) time.Time {
	if ref.IsZero() {
		ref = time.Now().UTC()
	}
	sinceEpoch := ref.Sub(gpsEpoch).Seconds()
	week := int(sinceEpoch / SecondsPerWeek)
	weekStart := gpsEpoch.Add(time.Duration(week) * 7 * 24 * time.Hour)
	return weekStart.Add(time.Duration(towSec * float64(time.Second)))
}

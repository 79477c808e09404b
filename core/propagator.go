package core

import (
	"math"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

const (
	// SecondsPerWeek is the length of a GPS week.
	SecondsPerWeek = 604800.0

	// glonassTimeOffset is the fixed GLONASS-to-GPS time-system offset
	// (UTC+3h broadcast frame time), in seconds. Leap seconds are not
	// modelled here.
	glonassTimeOffset = 3 * 3600.0

	keplerMaxIter = 10
	keplerTol     = 1e-8
)

// Propagator computes a satellite's ECEF position and clock bias at a
// signal-transmission time (seconds of GPS week). Implementations are
// pure and safe to call concurrently across satellites.
//
// A non-finite result marks the satellite unusable for the epoch; it is
// never an error the caller should abort on.
type Propagator interface {
	Propagate(eph *model.OrbitalElements, transmitSec float64) model.SatellitePositionResult
}

// PropagatorFor selects the propagation variant for an ephemeris
// record: Keplerian broadcast when present, state-vector for GLONASS,
// SGP4 when only a TLE is attached.
func PropagatorFor(eph *model.OrbitalElements) Propagator {
	switch {
	case eph.Constellation == model.ConstellationGLONASS && eph.HasStateVector():
		return StateVectorPropagator{}
	case eph.HasKeplerian():
		return KeplerPropagator{}
	case eph.HasTLE():
		return NewTLEPropagator(eph.TLELine1, eph.TLELine2)
	default:
		return unusablePropagator{}
	}
}

// KeplerPropagator implements the Keplerian plus second-harmonic
// perturbation broadcast model used by GPS, Galileo and BeiDou
// medium-Earth-orbit satellites.
type KeplerPropagator struct{}

// Propagate evaluates the broadcast model at transmitSec. Correctness
// degrades outside the ephemeris validity window (a few hours around
// Toe); no bound is enforced here.
func (KeplerPropagator) Propagate(eph *model.OrbitalElements, transmitSec float64) model.SatellitePositionResult {
	if !finiteKeplerian(eph) || math.IsNaN(transmitSec) || math.IsInf(transmitSec, 0) {
		return unusableResult(eph.SatID)
	}

	tk := weekCrossover(transmitSec - eph.Toe)

	a := eph.SqrtA * eph.SqrtA
	n := math.Sqrt(EarthMu/(a*a*a)) + eph.DeltaN
	mk := eph.M0 + n*tk

	ek := solveKepler(mk, eph.Ecc)
	sinE, cosE := math.Sincos(ek)

	// True anomaly and argument of latitude.
	vk := math.Atan2(math.Sqrt(1.0-eph.Ecc*eph.Ecc)*sinE, cosE-eph.Ecc)
	phik := vk + eph.Omega

	sin2Phi, cos2Phi := math.Sincos(2.0 * phik)

	duk := eph.Cus*sin2Phi + eph.Cuc*cos2Phi
	drk := eph.Crs*sin2Phi + eph.Crc*cos2Phi
	dik := eph.Cis*sin2Phi + eph.Cic*cos2Phi

	uk := phik + duk
	rk := a*(1.0-eph.Ecc*cosE) + drk
	ik := eph.I0 + dik + eph.IDot*tk

	sinU, cosU := math.Sincos(uk)
	xp := rk * cosU
	yp := rk * sinU

	omegak := eph.Omega0 + (eph.OmegaD-EarthRotationRate)*tk - EarthRotationRate*eph.Toe
	sinOm, cosOm := math.Sincos(omegak)
	sinI, cosI := math.Sincos(ik)

	return model.SatellitePositionResult{
		SatID:     eph.SatID,
		X:         xp*cosOm - yp*cosI*sinOm,
		Y:         xp*sinOm + yp*cosI*cosOm,
		Z:         yp * sinI,
		ClockBias: clockCorrection(eph, transmitSec),
	}
}

// solveKepler solves E - e*sin(E) = M by fixed-point iteration seeded
// at M. The iteration is not guaranteed to converge for every input,
// so it is capped at keplerMaxIter rounds rather than looping until
// the update falls below keplerTol.
func solveKepler(mk, ecc float64) float64 {
	ek := mk
	for i := 0; i < keplerMaxIter; i++ {
		next := mk + ecc*math.Sin(ek)
		if math.Abs(next-ek) < keplerTol {
			return next
		}
		ek = next
	}
	return ek
}

// clockCorrection evaluates the broadcast clock polynomial at
// transmitSec against the clock reference time Toc.
func clockCorrection(eph *model.OrbitalElements, transmitSec float64) float64 {
	dt := weekCrossover(transmitSec - eph.Toc)
	return eph.ClockBias + eph.ClockDrift*dt + eph.ClockDriftRate*dt*dt
}

// weekCrossover maps a seconds-of-week difference into [-half, +half]
// week, so an ephemeris broadcast just before a week rollover still
// matches transmit times just after it.
func weekCrossover(dt float64) float64 {
	if dt > SecondsPerWeek/2 {
		return dt - SecondsPerWeek
	}
	if dt < -SecondsPerWeek/2 {
		return dt + SecondsPerWeek
	}
	return dt
}

// StateVectorPropagator implements the constant-velocity broadcast
// model used by constellations that transmit ECEF state vectors
// (GLONASS). The short extrapolation from the frame time is rotated by
// the Earth rotation accumulated over the interval.
type StateVectorPropagator struct{}

// Propagate extrapolates the broadcast state vector to transmitSec.
func (StateVectorPropagator) Propagate(eph *model.OrbitalElements, transmitSec float64) model.SatellitePositionResult {
	if !finiteStateVector(eph) || math.IsNaN(transmitSec) || math.IsInf(transmitSec, 0) {
		return unusableResult(eph.SatID)
	}

	adjusted := transmitSec + glonassTimeOffset
	tk := adjusted - eph.FrameTime

	x := eph.PosX + eph.VelX*tk
	y := eph.PosY + eph.VelY*tk
	z := eph.PosZ + eph.VelZ*tk

	angle := EarthRotationRate * tk
	sinA, cosA := math.Sincos(angle)

	return model.SatellitePositionResult{
		SatID:     eph.SatID,
		X:         x*cosA + y*sinA,
		Y:         -x*sinA + y*cosA,
		Z:         z,
		ClockBias: eph.ClockBias + eph.RelFreqBias*(adjusted-eph.Toc),
	}
}

type unusablePropagator struct{}

func (unusablePropagator) Propagate(eph *model.OrbitalElements, _ float64) model.SatellitePositionResult {
	return unusableResult(eph.SatID)
}

func unusableResult(satID string) model.SatellitePositionResult {
	nan := math.NaN()
	return model.SatellitePositionResult{SatID: satID, X: nan, Y: nan, Z: nan, ClockBias: nan}
}

func finiteKeplerian(eph *model.OrbitalElements) bool {
	for _, v := range []float64{
		eph.SqrtA, eph.Ecc, eph.M0, eph.Omega, eph.Omega0, eph.OmegaD,
		eph.I0, eph.IDot, eph.DeltaN,
		eph.Cuc, eph.Cus, eph.Crc, eph.Crs, eph.Cic, eph.Cis,
		eph.Toe, eph.ClockBias, eph.ClockDrift, eph.ClockDriftRate, eph.Toc,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func finiteStateVector(eph *model.OrbitalElements) bool {
	for _, v := range []float64{
		eph.PosX, eph.PosY, eph.PosZ,
		eph.VelX, eph.VelY, eph.VelZ,
		eph.FrameTime, eph.ClockBias, eph.RelFreqBias, eph.Toc,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

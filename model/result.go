package model

import "math"

// SatellitePositionResult is the propagator output for one satellite at
// one transmit time: ECEF position in metres and clock bias in seconds.
// NaN fields mark the satellite unusable for that epoch.
type SatellitePositionResult struct {
	SatID     string
	X, Y, Z   float64
	ClockBias float64 // s
}

// Usable reports whether all components are finite.
func (r SatellitePositionResult) Usable() bool {
	for _, v := range []float64{r.X, r.Y, r.Z, r.ClockBias} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Geodetic is a WGS84 latitude/longitude/altitude triple.
type Geodetic struct {
	LatDeg float64
	LonDeg float64
	AltM   float64
}

// PositionEstimate is the per-epoch solver output. Immutable after
// creation. Clock bias is carried in metres (additive in the residual
// equation); ClockBiasSec derives the seconds-equivalent.
type PositionEstimate struct {
	X, Y, Z    float64
	ClockBiasM float64
	RMS        float64 // root-mean-square of unweighted residuals, metres
	Geodetic   Geodetic

	// ExcludedSatIDs lists satellites downweighted or excluded by the
	// solver's fault-detection step.
	ExcludedSatIDs []string
}

// SpeedOfLight is the vacuum speed of light in m/s.
const SpeedOfLight = 2.99792458e8

// ClockBiasSec returns the receiver clock bias in seconds.
func (p PositionEstimate) ClockBiasSec() float64 {
	return p.ClockBiasM / SpeedOfLight
}

// SpoofingVerdict classifies one epoch. Reasons accumulate: several
// rules may fire for the same epoch.
type SpoofingVerdict struct {
	FlaggedSatIDs    []string
	NonFlaggedSatIDs []string
	Reasons          []string

	// SuspiciousSatIDs carries pre-solve screening hits (low CN0,
	// duplicate IDs, implausible range); informational, not flags.
	SuspiciousSatIDs []string
}

// Spoofed reports whether any satellite was flagged.
func (v SpoofingVerdict) Spoofed() bool {
	return len(v.FlaggedSatIDs) > 0
}

// EpochResult is what the pipeline emits per submitted epoch: either a
// solved epoch (Estimate + Verdict) or a skipped one (SkipReason set).
type EpochResult struct {
	EpochKey   int64
	Week       int
	TowSec     float64
	Estimate   *PositionEstimate
	Verdict    *SpoofingVerdict
	SkipReason string
}

// Skipped reports whether the epoch was skipped rather than solved.
func (r EpochResult) Skipped() bool {
	return r.SkipReason != ""
}

package model

import "time"

// Constellation identifies the satellite system an observation or
// ephemeris record belongs to. The tag selects the propagation variant.
type Constellation string

const (
	ConstellationGPS     Constellation = "G"
	ConstellationGLONASS Constellation = "R"
	ConstellationGalileo Constellation = "E"
	ConstellationBeiDou  Constellation = "C"
	ConstellationUnknown Constellation = "?"
)

// OrbitalElements is one satellite's broadcast ephemeris, valid over a
// short window around Toe. Records are immutable once fetched; the
// ephemeris cache hands out read-only views.
//
// Keplerian fields are populated for GPS/Galileo/BeiDou. GLONASS
// broadcasts an ECEF state vector instead, carried in the StateVector
// fields. TLE lines, when present, enable SGP4 propagation as a
// fallback for satellites without a usable broadcast set.
type OrbitalElements struct {
	SatID         string
	Constellation Constellation

	// Keplerian broadcast parameters.
	SqrtA  float64 // square root of semi-major axis (sqrt(m))
	Ecc    float64 // eccentricity
	M0     float64 // mean anomaly at reference epoch (rad)
	Omega  float64 // argument of perigee (rad)
	Omega0 float64 // longitude of ascending node (rad)
	OmegaD float64 // rate of node longitude (rad/s)
	I0     float64 // inclination (rad)
	IDot   float64 // inclination rate (rad/s)
	DeltaN float64 // mean motion correction (rad/s)

	// Second-harmonic correction coefficients.
	Cuc, Cus float64 // argument of latitude (rad)
	Crc, Crs float64 // orbital radius (m)
	Cic, Cis float64 // inclination (rad)

	Toe float64 // time of ephemeris, seconds of GPS week

	// Satellite clock model.
	ClockBias      float64 // s
	ClockDrift     float64 // s/s
	ClockDriftRate float64 // s/s^2
	Toc            float64 // clock reference time, seconds of GPS week

	// State-vector broadcast (GLONASS). Position in metres, velocity in
	// m/s, both ECEF at FrameTime (seconds of day, constellation time).
	PosX, PosY, PosZ float64
	VelX, VelY, VelZ float64
	FrameTime        float64
	RelFreqBias      float64

	// Optional two-line element set for SGP4 propagation.
	TLELine1 string
	TLELine2 string

	// Validity window. The cache refreshes an entry once the requested
	// time falls outside [FetchedFor, ValidUntil].
	FetchedFor time.Time
	ValidUntil time.Time
}

// HasKeplerian reports whether the Keplerian broadcast set is usable.
func (e *OrbitalElements) HasKeplerian() bool {
	return e.SqrtA > 0
}

// HasStateVector reports whether the state-vector broadcast is usable.
func (e *OrbitalElements) HasStateVector() bool {
	return e.PosX != 0 || e.PosY != 0 || e.PosZ != 0
}

// HasTLE reports whether a two-line element set is attached.
func (e *OrbitalElements) HasTLE() bool {
	return e.TLELine1 != "" && e.TLELine2 != ""
}

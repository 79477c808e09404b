package core

import (
	"math"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// WGS84 ellipsoid parameters.
const (
	WGS84SemiMajorM = 6378137.0
	WGS84Flattening = 1.0 / 298.257223563
	wgs84Ecc2       = WGS84Flattening * (2.0 - WGS84Flattening)
)

// EarthRotationRate is the WGS84 Earth rotation rate (rad/s).
const EarthRotationRate = 7.2921151467e-5

// EarthMu is the Earth gravitational parameter (m^3/s^2) of the GPS
// interface specification.
const EarthMu = 3.986005e14

// Vec3 is an ECEF vector in metres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Finite reports whether all components are finite.
func (v Vec3) Finite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// ECEFToGeodetic converts an ECEF position to WGS84 latitude, longitude
// and ellipsoidal height. Latitude is solved iteratively; the loop
// converges in a handful of rounds away from the poles and is capped
// rather than unbounded.
func ECEFToGeodetic(p Vec3) model.Geodetic {
	r2 := p.X*p.X + p.Y*p.Y
	z := p.Z
	zk := math.Inf(1)
	v := WGS84SemiMajorM
	for i := 0; i < 16 && math.Abs(z-zk) >= 1e-4; i++ {
		zk = z
		sinLat := z / math.Sqrt(r2+z*z)
		v = WGS84SemiMajorM / math.Sqrt(1.0-wgs84Ecc2*sinLat*sinLat)
		z = p.Z + v*wgs84Ecc2*sinLat
	}

	var lat, alt float64
	if r2 > 1e-12 {
		lat = math.Atan(z / math.Sqrt(r2))
		alt = math.Sqrt(r2+z*z) - v
	} else {
		// On the polar axis.
		if p.Z > 0 {
			lat = math.Pi / 2
		} else {
			lat = -math.Pi / 2
		}
		alt = math.Abs(p.Z) - v*(1.0-wgs84Ecc2)
	}
	lon := math.Atan2(p.Y, p.X)

	return model.Geodetic{
		LatDeg: lat * 180.0 / math.Pi,
		LonDeg: lon * 180.0 / math.Pi,
		AltM:   alt,
	}
}

// GeodeticToECEF converts WGS84 latitude/longitude/height to ECEF metres.
func GeodeticToECEF(g model.Geodetic) Vec3 {
	lat := g.LatDeg * math.Pi / 180.0
	lon := g.LonDeg * math.Pi / 180.0
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	v := WGS84SemiMajorM / math.Sqrt(1.0-wgs84Ecc2*sinLat*sinLat)
	return Vec3{
		X: (v + g.AltM) * cosLat * cosLon,
		Y: (v + g.AltM) * cosLat * sinLon,
		Z: (v*(1.0-wgs84Ecc2) + g.AltM) * sinLat,
	}
}

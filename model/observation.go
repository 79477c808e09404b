package model

import (
	"math"
	"time"
)

// Observation is one satellite's measurement within one epoch. Created
// by upstream parsing; consumed read-only by the core.
type Observation struct {
	SatID         string
	Constellation Constellation

	PseudorangeM float64 // apparent range, metres
	CN0DbHz      float64 // carrier-to-noise density ratio
	DopplerMS    float64 // Doppler-derived range rate, m/s; NaN when absent
	Band         string  // signal band tag, e.g. "L1", "L5"; may be empty

	// TransmitSec is the signal transmission time in seconds of GPS
	// week, used to propagate the satellite to its emission instant.
	TransmitSec float64
}

// HasDoppler reports whether a finite Doppler measurement is present.
func (o Observation) HasDoppler() bool {
	return !math.IsNaN(o.DopplerMS) && !math.IsInf(o.DopplerMS, 0)
}

// Epoch is a set of simultaneous observations sharing one reception
// instant. Key increases monotonically with time; an epoch is usable
// for positioning only when it carries more than four usable
// observations (3D position + clock bias unknowns).
type Epoch struct {
	Key          int64
	Time         time.Time
	Week         int     // GPS week number
	TowSec       float64 // reception time, seconds of GPS week
	Observations []Observation
}

// MinObservations is the smallest usable epoch size: strictly more
// observations than the four solved-for unknowns.
const MinObservations = 5

// ExternalFix is an independently obtained position (e.g. a network
// location), used only for cross-checking solved ranges.
type ExternalFix struct {
	Time   time.Time
	LatDeg float64
	LonDeg float64
	AltM   float64
}

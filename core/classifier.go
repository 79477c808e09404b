package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// Reason tags attached to spoofing verdicts.
const (
	ReasonHighRMS          = "high RMS"
	ReasonUnreasonableAlt  = "unreasonable altitude"
	ReasonSatelliteAnomaly = "individual satellite anomaly"
	ReasonInconsistentFix  = "inconsistent with external fix"
	ReasonPositionJump     = "sudden position jump"
)

// ClassifierThresholds are the tuning constants of the spoofing rules.
// They are operational settings, not statistically derived quantities;
// none of the rules has a known false-positive rate.
type ClassifierThresholds struct {
	RMSMeters      float64 // rule 1
	MinAltitudeM   float64 // rule 2
	MaxAltitudeM   float64 // rule 2
	ResidualZScore float64 // rule 3
	FixDeviationM  float64 // rule 4
	FixWindow      time.Duration
	PositionJumpM  float64 // rule 5
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() ClassifierThresholds {
	return ClassifierThresholds{
		RMSMeters:      2000,
		MinAltitudeM:   -1000,
		MaxAltitudeM:   100000,
		ResidualZScore: 3.0,
		FixDeviationM:  1000,
		FixWindow:      60 * time.Second,
		PositionJumpM:  1000,
	}
}

// Classifier flags suspicious satellites and epochs from solver output
// and epoch-to-epoch continuity. It is a heuristic multi-signal
// detector: several rules may fire for the same epoch and each adds its
// own reason tag.
type Classifier struct {
	Thresholds ClassifierThresholds
}

// NewClassifier builds a classifier with the given thresholds; a zero
// value falls back to defaults.
func NewClassifier(t ClassifierThresholds) *Classifier {
	if t == (ClassifierThresholds{}) {
		t = DefaultThresholds()
	}
	return &Classifier{Thresholds: t}
}

// EpochContext is everything rule evaluation needs for one epoch.
type EpochContext struct {
	Observations []model.Observation
	SatPositions []model.SatellitePositionResult // aligned with Observations
	Residuals    []float64                       // aligned with Observations
	Estimate     *model.PositionEstimate

	// Previous is the immediately preceding epoch's estimate; nil for
	// the first epoch.
	Previous *model.PositionEstimate

	// Fix is an independent position within the fix window of the
	// epoch; nil when none is available (rule 4 is skipped then).
	Fix *model.ExternalFix

	// Suspicious carries pre-solve screening hits, copied through to
	// the verdict.
	Suspicious []string
}

// Classify applies the rules in order. A sudden position jump (rule 5)
// flags the whole epoch and supersedes per-satellite flags from rule 3.
func (c *Classifier) Classify(ectx EpochContext) *model.SpoofingVerdict {
	t := c.Thresholds
	flagged := make(map[string]bool)
	var reasons []string
	var ruleThreeFlags []string

	allIDs := make([]string, len(ectx.Observations))
	for i, o := range ectx.Observations {
		allIDs[i] = o.SatID
	}

	// Rule 1: epoch-wide residual RMS.
	if ectx.Estimate.RMS > t.RMSMeters {
		for _, id := range allIDs {
			flagged[id] = true
		}
		reasons = append(reasons, ReasonHighRMS)
	}

	// Rule 2: implausible solved altitude.
	alt := ectx.Estimate.Geodetic.AltM
	if alt < t.MinAltitudeM || alt > t.MaxAltitudeM {
		for _, id := range allIDs {
			flagged[id] = true
		}
		reasons = append(reasons, ReasonUnreasonableAlt)
	}

	// Rule 5 is decided up front because it supersedes rule 3's
	// per-satellite flags; its tag is still appended last to keep the
	// rule order visible in the output.
	jumped := false
	if ectx.Previous != nil {
		cur := Vec3{X: ectx.Estimate.X, Y: ectx.Estimate.Y, Z: ectx.Estimate.Z}
		prev := Vec3{X: ectx.Previous.X, Y: ectx.Previous.Y, Z: ectx.Previous.Z}
		jumped = cur.DistanceTo(prev) > t.PositionJumpM
	}

	// Rule 3: per-satellite residual outliers.
	if z := zScores(ectx.Residuals); len(z) == len(allIDs) {
		for i, id := range allIDs {
			if z[i] > t.ResidualZScore {
				ruleThreeFlags = append(ruleThreeFlags, id)
			}
		}
	}
	if !jumped && len(ruleThreeFlags) > 0 {
		for _, id := range ruleThreeFlags {
			flagged[id] = true
		}
		reasons = append(reasons, ReasonSatelliteAnomaly)
	}

	// Rule 4: cross-check solved ranges against an independent fix.
	if ectx.Fix != nil {
		fixECEF := GeodeticToECEF(model.Geodetic{
			LatDeg: ectx.Fix.LatDeg,
			LonDeg: ectx.Fix.LonDeg,
			AltM:   ectx.Fix.AltM,
		})
		hit := false
		for i, sp := range ectx.SatPositions {
			if !sp.Usable() || i >= len(ectx.Observations) {
				continue
			}
			implied := fixECEF.DistanceTo(Vec3{X: sp.X, Y: sp.Y, Z: sp.Z}) + ectx.Estimate.ClockBiasM
			if math.Abs(implied-ectx.Observations[i].PseudorangeM) > t.FixDeviationM {
				flagged[ectx.Observations[i].SatID] = true
				hit = true
			}
		}
		if hit {
			reasons = append(reasons, ReasonInconsistentFix)
		}
	}

	// Rule 5: continuity against the previous epoch.
	if jumped {
		for _, id := range allIDs {
			flagged[id] = true
		}
		reasons = append(reasons, ReasonPositionJump)
	}

	verdict := &model.SpoofingVerdict{
		Reasons:          reasons,
		SuspiciousSatIDs: append([]string(nil), ectx.Suspicious...),
	}
	for _, id := range allIDs {
		if flagged[id] {
			verdict.FlaggedSatIDs = append(verdict.FlaggedSatIDs, id)
		} else {
			verdict.NonFlaggedSatIDs = append(verdict.NonFlaggedSatIDs, id)
		}
	}
	return verdict
}

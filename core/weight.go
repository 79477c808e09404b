package core

import (
	"math"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// weightEpsilon guards the divisions in the weighting heuristic.
const weightEpsilon = 1e-6

// ObservationWeight converts signal-quality indicators into a relative
// reliability weight. With a finite Doppler the weight is
// cn0/(|doppler|+eps); without one it degrades to 1/(cn0+eps).
//
// This is a heuristic, not a calibrated error model: it only decides
// which satellites dominate the least-squares solve. Non-finite CN0
// falls back to the non-Doppler branch with a zero CN0, which yields a
// small, finite weight rather than an error.
func ObservationWeight(cn0, doppler float64) float64 {
	if math.IsNaN(cn0) || math.IsInf(cn0, 0) {
		cn0 = 0
	}
	if !math.IsNaN(doppler) && !math.IsInf(doppler, 0) {
		return cn0 / (math.Abs(doppler) + weightEpsilon)
	}
	return 1.0 / (cn0 + weightEpsilon)
}

// EpochWeights computes normalized weights for one epoch's
// observations; the result always sums to 1 when any weight is
// positive.
func EpochWeights(obs []model.Observation) []float64 {
	weights := make([]float64, len(obs))
	sum := 0.0
	for i, o := range obs {
		weights[i] = ObservationWeight(o.CN0DbHz, o.DopplerMS)
		sum += weights[i]
	}
	if sum <= 0 {
		// Degenerate epoch: fall back to uniform weights.
		for i := range weights {
			weights[i] = 1.0 / float64(len(weights))
		}
		return weights
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

package core

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// Input-contract violations reported by Solve.
var (
	ErrTooFewSatellites = errors.New("fewer than four observations")
	ErrNonFiniteInput   = errors.New("non-finite satellite position or pseudorange")
)

// SolverMode selects the fault-detection strategy layered on top of the
// weighted non-linear least-squares solve.
type SolverMode int

const (
	// ModeSoftDownweight runs a fixed number of solve/reweight rounds,
	// multiplying the weight of any observation whose residual z-score
	// exceeds the threshold by 0.1. Outliers stay in the system with
	// reduced influence. This is the default.
	ModeSoftDownweight SolverMode = iota

	// ModeHardExclusion is classical leave-one-out RAIM: the weighted
	// residual sum of squares is tested against a chi-squared threshold
	// with n-4 degrees of freedom, and the single exclusion that most
	// reduces the test statistic is kept.
	ModeHardExclusion
)

const (
	softRounds       = 5
	zScoreThreshold  = 3.0
	downweightFactor = 0.1

	gaussNewtonMaxIter = 20
	gaussNewtonTol     = 1e-9
)

// Solver estimates receiver position and clock bias from one epoch of
// satellite positions, corrected pseudoranges and weights.
type Solver struct {
	Mode SolverMode

	// Confidence is the chi-squared confidence level for
	// ModeHardExclusion. Zero means 0.95.
	Confidence float64
}

// Solution is the solver output for one epoch. Residuals are unweighted
// and indexed like the inputs; RMS is computed over the non-excluded
// residuals so a downweighted outlier does not dominate the quality
// figure.
type Solution struct {
	Position   Vec3
	ClockBiasM float64
	RMS        float64
	Residuals  []float64
	Excluded   []int
}

// Solve runs the weighted non-linear least-squares estimate with the
// configured fault-detection mode. The residual model is
//
//	r_i = ||s_i - x|| + b - rho_i
//
// with receiver position x and clock bias b in metres. At least four
// finite observations are required; violations return an error and no
// solution.
func (s Solver) Solve(satPos []Vec3, pseudoranges, weights []float64) (*Solution, error) {
	n := len(satPos)
	if len(pseudoranges) != n || len(weights) != n {
		return nil, fmt.Errorf("mismatched input lengths: %d positions, %d pseudoranges, %d weights",
			n, len(pseudoranges), len(weights))
	}
	if n < 4 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewSatellites, n)
	}
	for i := 0; i < n; i++ {
		if !satPos[i].Finite() || math.IsNaN(pseudoranges[i]) || math.IsInf(pseudoranges[i], 0) {
			return nil, fmt.Errorf("%w: index %d", ErrNonFiniteInput, i)
		}
	}

	switch s.Mode {
	case ModeHardExclusion:
		return s.solveHardExclusion(satPos, pseudoranges, weights)
	default:
		return s.solveSoftDownweight(satPos, pseudoranges, weights)
	}
}

func (s Solver) solveSoftDownweight(satPos []Vec3, pseudoranges, weights []float64) (*Solution, error) {
	w := append([]float64(nil), weights...)
	guess := initialGuess(satPos, w)

	var residuals []float64
	outliers := make([]bool, len(satPos))

	for round := 0; round < softRounds; round++ {
		guess = gaussNewton(satPos, pseudoranges, w, guess)
		residuals = computeResiduals(satPos, pseudoranges, guess)

		z := zScores(residuals)
		for i := range outliers {
			outliers[i] = z[i] > zScoreThreshold
			if outliers[i] {
				w[i] *= downweightFactor
			}
		}
	}

	var excluded []int
	for i, out := range outliers {
		if out {
			excluded = append(excluded, i)
		}
	}

	return &Solution{
		Position:   Vec3{X: guess[0], Y: guess[1], Z: guess[2]},
		ClockBiasM: guess[3],
		RMS:        rmsExcluding(residuals, excluded),
		Residuals:  residuals,
		Excluded:   excluded,
	}, nil
}

func (s Solver) solveHardExclusion(satPos []Vec3, pseudoranges, weights []float64) (*Solution, error) {
	guess := initialGuess(satPos, weights)
	best := gaussNewton(satPos, pseudoranges, weights, guess)
	testStat := weightedSSE(satPos, pseudoranges, weights, best)

	var excluded []int
	n := len(satPos)
	// With exactly four satellites there is no redundancy to test.
	if n > 4 {
		confidence := s.Confidence
		if confidence == 0 {
			confidence = 0.95
		}
		threshold := distuv.ChiSquared{K: float64(n - 4)}.Quantile(confidence)

		if testStat >= threshold {
			for i := 0; i < n; i++ {
				sp := dropVec3(satPos, i)
				pr := dropFloat(pseudoranges, i)
				wt := dropFloat(weights, i)
				cand := gaussNewton(sp, pr, wt, guess)
				if candStat := weightedSSE(sp, pr, wt, cand); candStat < testStat {
					best = cand
					testStat = candStat
					excluded = []int{i}
				}
			}
		}
	}

	residuals := computeResiduals(satPos, pseudoranges, best)
	return &Solution{
		Position:   Vec3{X: best[0], Y: best[1], Z: best[2]},
		ClockBiasM: best[3],
		RMS:        rmsExcluding(residuals, excluded),
		Residuals:  residuals,
		Excluded:   excluded,
	}, nil
}

// initialGuess seeds the solve at the weighted mean of the satellite
// positions with a zero clock bias.
func initialGuess(satPos []Vec3, weights []float64) [4]float64 {
	var sum Vec3
	var wsum float64
	for i, p := range satPos {
		w := weights[i]
		sum.X += w * p.X
		sum.Y += w * p.Y
		sum.Z += w * p.Z
		wsum += w
	}
	if wsum == 0 {
		wsum = float64(len(satPos))
		sum = Vec3{}
		for _, p := range satPos {
			sum.X += p.X
			sum.Y += p.Y
			sum.Z += p.Z
		}
	}
	return [4]float64{sum.X / wsum, sum.Y / wsum, sum.Z / wsum, 0}
}

// gaussNewton minimises the weighted residual sum of squares starting
// from guess. The iteration count is capped; malformed geometry ends
// with the best state reached rather than looping unbounded.
func gaussNewton(satPos []Vec3, pseudoranges, weights []float64, guess [4]float64) [4]float64 {
	n := len(satPos)
	jac := mat.NewDense(n, 4, nil)
	rhs := mat.NewVecDense(n, nil)
	x := guess

	for iter := 0; iter < gaussNewtonMaxIter; iter++ {
		for i := 0; i < n; i++ {
			d := Vec3{X: x[0], Y: x[1], Z: x[2]}.Sub(satPos[i])
			rng := d.Norm()
			if rng < 1e-6 {
				rng = 1e-6
			}
			sw := math.Sqrt(weights[i])
			jac.Set(i, 0, sw*d.X/rng)
			jac.Set(i, 1, sw*d.Y/rng)
			jac.Set(i, 2, sw*d.Z/rng)
			jac.Set(i, 3, sw)
			rhs.SetVec(i, -sw*(rng+x[3]-pseudoranges[i]))
		}

		var qr mat.QR
		qr.Factorize(jac)
		var delta mat.VecDense
		if err := qr.SolveVecTo(&delta, false, rhs); err != nil {
			// Singular geometry; keep the current state.
			return x
		}

		step := 0.0
		for k := 0; k < 4; k++ {
			x[k] += delta.AtVec(k)
			step += delta.AtVec(k) * delta.AtVec(k)
		}
		if math.Sqrt(step) < gaussNewtonTol {
			break
		}
	}
	return x
}

func computeResiduals(satPos []Vec3, pseudoranges []float64, x [4]float64) []float64 {
	res := make([]float64, len(satPos))
	pos := Vec3{X: x[0], Y: x[1], Z: x[2]}
	for i, p := range satPos {
		res[i] = pos.DistanceTo(p) + x[3] - pseudoranges[i]
	}
	return res
}

func weightedSSE(satPos []Vec3, pseudoranges, weights []float64, x [4]float64) float64 {
	res := computeResiduals(satPos, pseudoranges, x)
	sum := 0.0
	for i, r := range res {
		wr := weights[i] * r
		sum += wr * wr
	}
	return sum
}

// zScores returns |r_i - mean| / stddev for each residual, or zeros
// when the spread is degenerate.
func zScores(residuals []float64) []float64 {
	z := make([]float64, len(residuals))
	mean := stat.Mean(residuals, nil)
	sd := stat.StdDev(residuals, nil)
	if sd == 0 || math.IsNaN(sd) {
		return z
	}
	for i, r := range residuals {
		z[i] = math.Abs(r-mean) / sd
	}
	return z
}

func rmsExcluding(residuals []float64, excluded []int) float64 {
	skip := make(map[int]bool, len(excluded))
	for _, i := range excluded {
		skip[i] = true
	}
	sum, count := 0.0, 0
	for i, r := range residuals {
		if skip[i] {
			continue
		}
		sum += r * r
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(count))
}

func dropVec3(s []Vec3, i int) []Vec3 {
	out := make([]Vec3, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

func dropFloat(s []float64, i int) []float64 {
	out := make([]float64, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// SolutionEstimate packages a Solution with its geodetic conversion and
// the satellite IDs behind the excluded indices.
func SolutionEstimate(sol *Solution, satIDs []string) *model.PositionEstimate {
	est := &model.PositionEstimate{
		X:          sol.Position.X,
		Y:          sol.Position.Y,
		Z:          sol.Position.Z,
		ClockBiasM: sol.ClockBiasM,
		RMS:        sol.RMS,
		Geodetic:   ECEFToGeodetic(sol.Position),
	}
	for _, i := range sol.Excluded {
		if i >= 0 && i < len(satIDs) {
			est.ExcludedSatIDs = append(est.ExcludedSatIDs, satIDs[i])
		}
	}
	return est
}

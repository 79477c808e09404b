package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/gnss-sentinel/internal/logging"
	"github.com/signalsfoundry/gnss-sentinel/model"
)

// ElementsSource resolves broadcast ephemerides. Implementations own
// caching; the pipeline calls it repeatedly for the same satellite
// across epochs. Any lookup error degrades to dropping the satellite
// from the epoch.
type ElementsSource interface {
	Elements(ctx context.Context, satID string, at time.Time) (*model.OrbitalElements, error)
}

// FixSource yields an independent external fix near a given instant,
// or nil when none is available within the window.
type FixSource interface {
	Nearest(at time.Time, window time.Duration) *model.ExternalFix
}

// MetricsRecorder receives pipeline telemetry. A nil recorder is valid
// and drops everything.
type MetricsRecorder interface {
	EpochProcessed(outcome string, d time.Duration)
	SatellitesFlagged(reason string, n int)
	ObserveSolution(rms float64, satellites int)
}

// ErrOutOfOrder reports an epoch submitted behind one already
// processed. The continuity rule makes ordering a correctness
// requirement, not a preference.
var ErrOutOfOrder = errors.New("epoch submitted out of order")

// Pipeline runs the per-epoch chain: ephemeris resolution, satellite
// propagation, pseudorange correction, robust solve, geodetic
// conversion, spoofing classification. It is inherently sequential
// across epochs; the previous estimate feeds the continuity rule.
type Pipeline struct {
	elements   ElementsSource
	fixes      FixSource
	solver     Solver
	classifier *Classifier

	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer

	prev    *model.PositionEstimate
	lastKey int64
	started bool

	listeners []func(model.EpochResult)
}

// PipelineOption mutates pipeline construction.
type PipelineOption func(*Pipeline)

// WithFixSource attaches an external-fix source for classifier rule 4.
func WithFixSource(src FixSource) PipelineOption {
	return func(p *Pipeline) { p.fixes = src }
}

// WithSolver overrides the default soft-downweight solver.
func WithSolver(s Solver) PipelineOption {
	return func(p *Pipeline) { p.solver = s }
}

// WithThresholds overrides the classifier thresholds.
func WithThresholds(t ClassifierThresholds) PipelineOption {
	return func(p *Pipeline) { p.classifier = NewClassifier(t) }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer attaches a tracer; one span is produced per epoch.
func WithTracer(t trace.Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = t }
}

// NewPipeline constructs a pipeline over an ephemeris source.
func NewPipeline(elements ElementsSource, log logging.Logger, opts ...PipelineOption) *Pipeline {
	if log == nil {
		log = logging.Noop()
	}
	p := &Pipeline{
		elements:   elements,
		solver:     Solver{},
		classifier: NewClassifier(DefaultThresholds()),
		log:        log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RegisterResultListener adds a callback invoked for every emitted
// result, solved or skipped, in epoch order.
func (p *Pipeline) RegisterResultListener(fn func(model.EpochResult)) {
	p.listeners = append(p.listeners, fn)
}

// Previous returns the most recent solved estimate, or nil.
func (p *Pipeline) Previous() *model.PositionEstimate { return p.prev }

// Process runs one epoch through the chain. Epochs must arrive in
// non-decreasing key order; a regression returns ErrOutOfOrder and the
// epoch is not processed. All per-epoch data problems (too few usable
// satellites, non-finite inputs) are reported inside the EpochResult
// as a skip, never as an error.
func (p *Pipeline) Process(ctx context.Context, epoch *model.Epoch) (model.EpochResult, error) {
	if p.started && epoch.Key <= p.lastKey {
		return model.EpochResult{}, fmt.Errorf("%w: key %d after %d", ErrOutOfOrder, epoch.Key, p.lastKey)
	}
	p.started = true
	p.lastKey = epoch.Key

	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "pipeline.Process",
			trace.WithAttributes(
				attribute.Int64("epoch.key", epoch.Key),
				attribute.Int("epoch.observations", len(epoch.Observations)),
			))
		defer span.End()
	}

	start := time.Now()
	result := p.process(ctx, epoch)
	outcome := "solved"
	if result.Skipped() {
		outcome = "skipped"
	}
	if p.metrics != nil {
		p.metrics.EpochProcessed(outcome, time.Since(start))
	}
	for _, fn := range p.listeners {
		fn(result)
	}
	return result, nil
}

func (p *Pipeline) process(ctx context.Context, epoch *model.Epoch) model.EpochResult {
	log := p.log.With(logging.Int64("epoch", epoch.Key))
	result := model.EpochResult{EpochKey: epoch.Key, Week: epoch.Week, TowSec: epoch.TowSec}

	// Resolve ephemerides and propagate each satellite to its own
	// transmit time. Satellites without elements or with non-finite
	// propagation results are dropped, never fatal.
	var (
		usable    []model.Observation
		satPos    []model.SatellitePositionResult
		positions []Vec3
		ranges    []float64
		satIDs    []string
	)
	for _, obs := range epoch.Observations {
		eph, err := p.elements.Elements(ctx, obs.SatID, epoch.Time)
		if err != nil {
			log.Debug(ctx, "no usable ephemeris, dropping satellite",
				logging.String("sat", obs.SatID), logging.Any("error", err))
			continue
		}

		sp := PropagatorFor(eph).Propagate(eph, obs.TransmitSec)
		if !sp.Usable() {
			log.Debug(ctx, "unusable propagation, dropping satellite", logging.String("sat", obs.SatID))
			continue
		}

		corrected := obs.PseudorangeM + model.SpeedOfLight*sp.ClockBias
		if math.IsNaN(corrected) || math.IsInf(corrected, 0) {
			log.Debug(ctx, "non-finite corrected pseudorange, dropping satellite",
				logging.String("sat", obs.SatID))
			continue
		}

		usable = append(usable, obs)
		satPos = append(satPos, sp)
		positions = append(positions, Vec3{X: sp.X, Y: sp.Y, Z: sp.Z})
		ranges = append(ranges, corrected)
		satIDs = append(satIDs, obs.SatID)
	}

	if len(usable) < model.MinObservations {
		result.SkipReason = fmt.Sprintf("only %d usable observations, need more than 4", len(usable))
		log.Warn(ctx, "skipping epoch", logging.String("reason", result.SkipReason))
		return result
	}

	reference := Vec3{}
	if p.prev != nil {
		reference = Vec3{X: p.prev.X, Y: p.prev.Y, Z: p.prev.Z}
	}
	suspicious := ScreenObservations(usable, satPos, reference)

	weights := EpochWeights(usable)
	sol, err := p.solver.Solve(positions, ranges, weights)
	if err != nil {
		result.SkipReason = fmt.Sprintf("solve failed: %v", err)
		log.Warn(ctx, "skipping epoch", logging.String("reason", result.SkipReason))
		return result
	}

	estimate := SolutionEstimate(sol, satIDs)

	var fix *model.ExternalFix
	if p.fixes != nil {
		fix = p.fixes.Nearest(epoch.Time, p.classifier.Thresholds.FixWindow)
	}

	verdict := p.classifier.Classify(EpochContext{
		Observations: usable,
		SatPositions: satPos,
		Residuals:    sol.Residuals,
		Estimate:     estimate,
		Previous:     p.prev,
		Fix:          fix,
		Suspicious:   suspicious,
	})

	if p.metrics != nil {
		p.metrics.ObserveSolution(estimate.RMS, len(usable))
		for _, reason := range verdict.Reasons {
			p.metrics.SatellitesFlagged(reason, len(verdict.FlaggedSatIDs))
		}
	}
	log.Info(ctx, "epoch solved",
		logging.Int("satellites", len(usable)),
		logging.Float64("rms_m", estimate.RMS),
		logging.Int("flagged", len(verdict.FlaggedSatIDs)),
		logging.Int("excluded", len(estimate.ExcludedSatIDs)))

	p.prev = estimate
	result.Estimate = estimate
	result.Verdict = verdict
	return result
}

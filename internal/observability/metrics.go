package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineCollector bundles Prometheus metrics for the positioning
// pipeline and exposes a ready-made /metrics handler. It satisfies the
// pipeline's MetricsRecorder interface.
type PipelineCollector struct {
	gatherer prometheus.Gatherer

	EpochsProcessed *prometheus.CounterVec
	EpochDurations  *prometheus.HistogramVec
	FlaggedSats     *prometheus.CounterVec

	PositionRMS      prometheus.Gauge
	SatellitesInView prometheus.Gauge
}

// NewPipelineCollector registers pipeline Prometheus metrics against
// the provided registerer, defaulting to the global Prometheus registry
// when nil.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	epochs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_epochs_processed_total",
		Help: "Total number of epochs run through the pipeline, labeled by outcome (solved or skipped).",
	}, []string{"outcome"})
	epochs, err := registerCounterVec(reg, epochs, "sentinel_epochs_processed_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_epoch_duration_seconds",
		Help:    "Wall-clock time per processed epoch.",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"outcome"})
	durations, err = registerHistogramVec(reg, durations, "sentinel_epoch_duration_seconds")
	if err != nil {
		return nil, err
	}

	flagged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_flagged_satellites_total",
		Help: "Satellites flagged by the spoofing classifier, labeled by reason tag.",
	}, []string{"reason"})
	flagged, err = registerCounterVec(reg, flagged, "sentinel_flagged_satellites_total")
	if err != nil {
		return nil, err
	}

	rms, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_position_rms_meters",
		Help: "Residual RMS of the most recent solved epoch.",
	}), "sentinel_position_rms_meters")
	if err != nil {
		return nil, err
	}
	inView, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_satellites_in_view",
		Help: "Usable satellites in the most recent solved epoch.",
	}), "sentinel_satellites_in_view")
	if err != nil {
		return nil, err
	}

	return &PipelineCollector{
		gatherer:         gatherer,
		EpochsProcessed:  epochs,
		EpochDurations:   durations,
		FlaggedSats:      flagged,
		PositionRMS:      rms,
		SatellitesInView: inView,
	}, nil
}

// EpochProcessed records one pipeline pass and its duration.
func (c *PipelineCollector) EpochProcessed(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.EpochsProcessed != nil {
		c.EpochsProcessed.WithLabelValues(outcome).Inc()
	}
	if c.EpochDurations != nil {
		c.EpochDurations.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

// SatellitesFlagged accumulates classifier flags by reason tag.
func (c *PipelineCollector) SatellitesFlagged(reason string, n int) {
	if c == nil || c.FlaggedSats == nil {
		return
	}
	c.FlaggedSats.WithLabelValues(reason).Add(float64(n))
}

// ObserveSolution records last-epoch solution quality gauges.
func (c *PipelineCollector) ObserveSolution(rms float64, satellites int) {
	if c == nil {
		return
	}
	if c.PositionRMS != nil {
		c.PositionRMS.Set(rms)
	}
	if c.SatellitesInView != nil {
		c.SatellitesInView.Set(float64(satellites))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PipelineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

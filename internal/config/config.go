package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for the "30s" / "5m"
// notation.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level sentinel configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Solver     SolverConfig     `yaml:"solver"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Input      InputConfig      `yaml:"input"`
	Output     OutputConfig     `yaml:"output"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SolverConfig selects the fault-detection strategy. Mode is "soft"
// (iterative downweighting, the default) or "hard" (leave-one-out
// chi-squared exclusion).
type SolverConfig struct {
	Mode       string  `yaml:"mode"`
	Confidence float64 `yaml:"confidence"`
}

// ClassifierConfig carries the spoofing rule thresholds. These are
// operational tuning constants, not calibrated detector parameters.
type ClassifierConfig struct {
	RMSMeters      float64  `yaml:"rms_meters"`
	MinAltitudeM   float64  `yaml:"min_altitude_m"`
	MaxAltitudeM   float64  `yaml:"max_altitude_m"`
	ResidualZScore float64  `yaml:"residual_z_score"`
	FixDeviationM  float64  `yaml:"fix_deviation_m"`
	FixWindow      Duration `yaml:"fix_window"`
	PositionJumpM  float64  `yaml:"position_jump_m"`
}

type InputConfig struct {
	ObservationsCSV string   `yaml:"observations_csv"`
	ElementsJSON    string   `yaml:"elements_json"`
	FixesCSV        string   `yaml:"fixes_csv"`
	Follow          bool     `yaml:"follow"`
	PollInterval    Duration `yaml:"poll_interval"`
}

type OutputConfig struct {
	ResultsCSV string `yaml:"results_csv"`
	KML        string `yaml:"kml"`
	SqliteDB   string `yaml:"sqlite_db"`
}

type MetricsConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Solver:  SolverConfig{Mode: "soft", Confidence: 0.95},
		Classifier: ClassifierConfig{
			RMSMeters:      2000,
			MinAltitudeM:   -1000,
			MaxAltitudeM:   100000,
			ResidualZScore: 3.0,
			FixDeviationM:  1000,
			FixWindow:      Duration(60 * time.Second),
			PositionJumpM:  1000,
		},
		Input:   InputConfig{PollInterval: Duration(5 * time.Second)},
		Metrics: MetricsConfig{Listen: ":9465"},
	}
}

// Load reads a YAML configuration file, filling unset fields from the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.Solver.Mode {
	case "soft", "hard":
	default:
		return fmt.Errorf("solver.mode must be \"soft\" or \"hard\", got %q", c.Solver.Mode)
	}
	if c.Solver.Confidence <= 0 || c.Solver.Confidence >= 1 {
		return fmt.Errorf("solver.confidence must be in (0, 1), got %v", c.Solver.Confidence)
	}
	if c.Classifier.MaxAltitudeM <= c.Classifier.MinAltitudeM {
		return fmt.Errorf("classifier altitude bounds inverted: min %v, max %v",
			c.Classifier.MinAltitudeM, c.Classifier.MaxAltitudeM)
	}
	if c.Classifier.FixWindow < 0 || c.Input.PollInterval < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

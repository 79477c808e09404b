// Command sentinel replays recorded GNSS observations through the
// positioning pipeline and reports spoofing verdicts.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/signalsfoundry/gnss-sentinel/core"
	"github.com/signalsfoundry/gnss-sentinel/ephemeris"
	"github.com/signalsfoundry/gnss-sentinel/internal/config"
	"github.com/signalsfoundry/gnss-sentinel/internal/export"
	"github.com/signalsfoundry/gnss-sentinel/internal/ingest"
	"github.com/signalsfoundry/gnss-sentinel/internal/logging"
	"github.com/signalsfoundry/gnss-sentinel/internal/observability"
	"github.com/signalsfoundry/gnss-sentinel/internal/replay"
	"github.com/signalsfoundry/gnss-sentinel/internal/storage"
	"github.com/signalsfoundry/gnss-sentinel/model"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	observations := flag.String("observations", "", "Observation CSV path (overrides config)")
	elements := flag.String("elements", "", "Broadcast elements JSON path (overrides config)")
	follow := flag.Bool("follow", false, "Tail the observation file for appended epochs")
	paced := flag.Bool("paced", false, "Replay at the recorded cadence instead of as fast as possible")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logging.NewFromEnv().Error(context.Background(), "failed to load config",
				logging.String("path", *configPath), logging.String("error", err.Error()))
			os.Exit(1)
		}
	}
	if *observations != "" {
		cfg.Input.ObservationsCSV = *observations
	}
	if *elements != "" {
		cfg.Input.ElementsJSON = *elements
	}
	if *follow {
		cfg.Input.Follow = true
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.Input.ObservationsCSV == "" || cfg.Input.ElementsJSON == "" {
		log.Error(ctx, "observations and elements inputs are required")
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	opts := []core.PipelineOption{
		core.WithSolver(solverFromConfig(cfg.Solver)),
		core.WithThresholds(thresholdsFromConfig(cfg.Classifier)),
		core.WithTracer(otel.Tracer("gnss-sentinel/pipeline")),
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enable {
		collector, err := observability.NewPipelineCollector(nil)
		if err != nil {
			log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
			os.Exit(1)
		}
		metricsSrv = serveMetrics(cfg.Metrics.Listen, collector, log)
		opts = append(opts, core.WithMetrics(collector))
	}

	if cfg.Input.FixesCSV != "" {
		fixes, err := ingest.ReadFixesFile(cfg.Input.FixesCSV)
		if err != nil {
			log.Error(ctx, "failed to load external fixes",
				logging.String("path", cfg.Input.FixesCSV), logging.String("error", err.Error()))
			os.Exit(1)
		}
		opts = append(opts, core.WithFixSource(fixes))
	}

	provider, err := ephemeris.LoadFile(cfg.Input.ElementsJSON)
	if err != nil {
		log.Error(ctx, "failed to load broadcast elements",
			logging.String("path", cfg.Input.ElementsJSON), logging.String("error", err.Error()))
		os.Exit(1)
	}
	cache := ephemeris.NewCache(provider)

	pipeline := core.NewPipeline(cache, log, opts...)
	results, closeSinks := attachSinks(ctx, pipeline, cfg, log)

	run(ctx, pipeline, cfg, *paced, log)
	closeSinks()

	writeKML(ctx, cfg, *results, log)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

// run drives epochs from the configured source through the pipeline,
// either a bounded replay or an open-ended follow.
func run(ctx context.Context, pipeline *core.Pipeline, cfg config.Config, paced bool, log logging.Logger) {
	process := func(epoch *model.Epoch) {
		if _, err := pipeline.Process(ctx, epoch); err != nil {
			log.Error(ctx, "dropping epoch",
				logging.Int64("epoch", epoch.Key), logging.String("error", err.Error()))
		}
	}

	if cfg.Input.Follow {
		follower := replay.NewFollower(cfg.Input.ObservationsCSV, cfg.Input.PollInterval.Std(), log)
		follower.AddListener(process)
		log.Info(ctx, "following observation file",
			logging.String("path", cfg.Input.ObservationsCSV))
		<-follower.Run(ctx)
		return
	}

	epochs, err := ingest.ReadEpochsFile(cfg.Input.ObservationsCSV)
	if err != nil {
		log.Error(ctx, "failed to read observations",
			logging.String("path", cfg.Input.ObservationsCSV), logging.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info(ctx, "replaying observations",
		logging.String("path", cfg.Input.ObservationsCSV), logging.Int("epochs", len(epochs)))

	mode := replay.Burst
	if paced {
		mode = replay.Paced
	}
	pacer := replay.NewPacer(mode)
	pacer.AddListener(process)
	<-pacer.Run(ctx, epochs)
}

// attachSinks registers result listeners for the configured outputs. It
// returns the accumulated results for post-run export and a function
// that flushes and closes the sinks.
func attachSinks(ctx context.Context, pipeline *core.Pipeline, cfg config.Config, log logging.Logger) (*[]model.EpochResult, func()) {
	results := &[]model.EpochResult{}
	var cleanups []func()
	pipeline.RegisterResultListener(func(r model.EpochResult) {
		*results = append(*results, r)
	})

	if cfg.Output.ResultsCSV != "" {
		csvOut, err := export.NewCSVWriter(cfg.Output.ResultsCSV)
		if err != nil {
			log.Error(ctx, "failed to open results csv", logging.String("error", err.Error()))
			os.Exit(1)
		}
		pipeline.RegisterResultListener(func(r model.EpochResult) {
			if err := csvOut.Write(r); err != nil {
				log.Warn(ctx, "results csv write failed", logging.String("error", err.Error()))
			}
		})
		cleanups = append(cleanups, func() {
			if err := csvOut.Close(); err != nil {
				log.Warn(ctx, "results csv close failed", logging.String("error", err.Error()))
			}
		})
	}

	if cfg.Output.SqliteDB != "" {
		store := storage.NewSqliteStore(cfg.Output.SqliteDB)
		sessionID, err := store.CreateSession(ctx, cfg.Input.ObservationsCSV, cfg.Solver.Mode)
		if err != nil {
			log.Error(ctx, "failed to open result store", logging.String("error", err.Error()))
			os.Exit(1)
		}
		pipeline.RegisterResultListener(func(r model.EpochResult) {
			if err := store.StoreResult(ctx, sessionID, r); err != nil {
				log.Warn(ctx, "result store write failed", logging.String("error", err.Error()))
			}
		})
		cleanups = append(cleanups, func() {
			if sum, err := store.Summarize(ctx, sessionID); err == nil {
				log.Info(ctx, "session stored",
					logging.Int64("session", sessionID),
					logging.Int("epochs", sum.Epochs),
					logging.Int("skipped", sum.Skipped),
					logging.Int("spoofed", sum.Spoofed))
			}
			if err := store.Close(); err != nil {
				log.Warn(ctx, "result store close failed", logging.String("error", err.Error()))
			}
		})
	}

	return results, func() {
		for _, fn := range cleanups {
			fn()
		}
	}
}

func writeKML(ctx context.Context, cfg config.Config, results []model.EpochResult, log logging.Logger) {
	if cfg.Output.KML == "" {
		return
	}
	if err := export.WriteKML(cfg.Output.KML, "gnss-sentinel run", results); err != nil {
		log.Warn(ctx, "kml export failed", logging.String("error", err.Error()))
		return
	}
	log.Info(ctx, "wrote kml track", logging.String("path", cfg.Output.KML))
}

func solverFromConfig(cfg config.SolverConfig) core.Solver {
	mode := core.ModeSoftDownweight
	if cfg.Mode == "hard" {
		mode = core.ModeHardExclusion
	}
	return core.Solver{Mode: mode, Confidence: cfg.Confidence}
}

func thresholdsFromConfig(cfg config.ClassifierConfig) core.ClassifierThresholds {
	return core.ClassifierThresholds{
		RMSMeters:      cfg.RMSMeters,
		MinAltitudeM:   cfg.MinAltitudeM,
		MaxAltitudeM:   cfg.MaxAltitudeM,
		ResidualZScore: cfg.ResidualZScore,
		FixDeviationM:  cfg.FixDeviationM,
		FixWindow:      cfg.FixWindow.Std(),
		PositionJumpM:  cfg.PositionJumpM,
	}
}

func serveMetrics(addr string, collector *observability.PipelineCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// Package cmd is the CLI shell around the detection engine: flag parsing,
// config loading, signal handling, and the optional transports (metrics
// endpoint, live watch view).
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/viruchith/anomalyd/collector"
	"github.com/viruchith/anomalyd/config"
	"github.com/viruchith/anomalyd/engine"
	"github.com/viruchith/anomalyd/ui"
)

// Version is set at build time via ldflags.
var Version = "0.3.0"

// ExitCodeError carries a process exit code through the error chain:
// 0 normal shutdown, 1 unrecoverable error, 2 invalid configuration.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e ExitCodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e ExitCodeError) Unwrap() error { return e.Err }

type rootFlags struct {
	configPath string
	watch      bool
	debug      bool

	contamination float64
	windowSec     int
	retrainSec    int
	periodSec     float64
	samplesBuf    int
	anomaliesBuf  int
	samplesLog    string
	anomaliesLog  string
	replayIn      string
	replayOut     string
	promEnabled   bool
	promAddr      string
}

// Run builds and executes the root command.
func Run() error {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "anomalyd",
		Short:         "Host telemetry anomaly watchdog",
		Long:          "anomalyd samples OS performance counters, learns a model of normal behavior online, and reports deviating samples through logs and live subscribers.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags)
		},
	}

	f := root.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "JSON config file (flags override it)")
	f.BoolVarP(&flags.watch, "watch", "w", false, "show a live terminal view")
	f.BoolVar(&flags.debug, "debug", false, "debug logging")
	f.Float64Var(&flags.contamination, "contamination", 0, "expected anomaly fraction in (0, 0.5]")
	f.IntVar(&flags.windowSec, "window", 0, "training window in seconds")
	f.IntVar(&flags.retrainSec, "retrain-interval", 0, "minimum seconds between retrains")
	f.Float64Var(&flags.periodSec, "interval", 0, "sampling period in seconds")
	f.IntVar(&flags.samplesBuf, "samples-buffer", 0, "rolling sample buffer size")
	f.IntVar(&flags.anomaliesBuf, "anomalies-buffer", 0, "rolling anomaly buffer size")
	f.StringVar(&flags.samplesLog, "samples-log", "", "samples CSV log path")
	f.StringVar(&flags.anomaliesLog, "anomalies-log", "", "anomalies JSONL log path")
	f.StringVar(&flags.replayIn, "replay", "", "replay a historical CSV instead of sampling live")
	f.StringVar(&flags.replayOut, "replay-out", "", "write per-row replay analysis to this CSV")
	f.BoolVar(&flags.promEnabled, "prom", false, "serve Prometheus metrics")
	f.StringVar(&flags.promAddr, "prom-addr", "", "Prometheus listen address")

	return root.Execute()
}

// buildConfig merges defaults, the optional config file, and flag overrides.
func buildConfig(cmd *cobra.Command, flags rootFlags) (config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	set := cmd.Flags().Changed
	if set("contamination") {
		cfg.Contamination = flags.contamination
	}
	if set("window") {
		cfg.WindowSeconds = flags.windowSec
	}
	if set("retrain-interval") {
		cfg.RetrainIntervalSeconds = flags.retrainSec
	}
	if set("interval") {
		cfg.SamplePeriodSeconds = flags.periodSec
	}
	if set("samples-buffer") {
		cfg.SamplesBufferSize = flags.samplesBuf
	}
	if set("anomalies-buffer") {
		cfg.AnomaliesBufferSize = flags.anomaliesBuf
	}
	if set("samples-log") {
		cfg.SamplesLogPath = flags.samplesLog
	}
	if set("anomalies-log") {
		cfg.AnomaliesLogPath = flags.anomaliesLog
	}
	if set("replay") {
		cfg.ReplayInputPath = flags.replayIn
	}
	if set("replay-out") {
		cfg.ReplayOutputPath = flags.replayOut
	}
	if set("prom") {
		cfg.PromEnabled = flags.promEnabled
	}
	if set("prom-addr") {
		cfg.PromAddr = flags.promAddr
		cfg.PromEnabled = true
	}
	return cfg, nil
}

func run(cmd *cobra.Command, flags rootFlags) error {
	logger := newLogger(flags.debug)

	cfg, err := buildConfig(cmd, flags)
	if err != nil {
		return ExitCodeError{Code: 2, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return ExitCodeError{Code: 2, Err: fmt.Errorf("invalid configuration: %w", err)}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ReplayInputPath != "" {
		if err := engine.RunReplay(ctx, cfg, logger); err != nil {
			return ExitCodeError{Code: 1, Err: err}
		}
		return nil
	}

	src := collector.NewLiveSource(cfg.SamplePeriod(), logger)
	eng, err := engine.New(cfg, src, logger)
	if err != nil {
		return ExitCodeError{Code: 1, Err: err}
	}

	if cfg.PromEnabled {
		go serveMetrics(cfg.PromAddr, eng, logger)
	}

	if flags.watch {
		return runWatch(ctx, stop, cfg, eng)
	}
	if err := eng.Run(ctx); err != nil {
		return ExitCodeError{Code: 1, Err: err}
	}
	return nil
}

// runWatch runs the engine in the background and the terminal view in the
// foreground; quitting the view shuts the engine down.
func runWatch(ctx context.Context, stop context.CancelFunc, cfg config.Config, eng *engine.Engine) error {
	runDone := make(chan error, 1)
	go func() { runDone <- eng.Run(ctx) }()

	app := ui.New(eng)
	prog := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, uiErr := prog.Run()
	stop()

	runErr := <-runDone
	if runErr != nil {
		return ExitCodeError{Code: 1, Err: runErr}
	}
	if uiErr != nil && ctx.Err() == nil {
		return ExitCodeError{Code: 1, Err: uiErr}
	}
	return nil
}

func serveMetrics(addr string, eng *engine.Engine, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", eng.Metrics().Handler())
	logger.Info().Str("addr", addr).Msg("serving metrics")
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server failed")
	}
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
}

// Package config holds the runtime configuration for the detection engine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the full engine configuration. Every field has a default;
// Validate rejects inconsistent values before any sampling begins.
type Config struct {
	// Contamination is the expected anomaly fraction, in (0, 0.5].
	Contamination float64 `json:"contamination"`

	// WindowSeconds is the training-window duration. The detector needs
	// WindowSeconds/SamplePeriodSeconds samples before the first fit.
	WindowSeconds int `json:"window_size_seconds"`

	// RetrainIntervalSeconds is the minimum time between fits once ready.
	RetrainIntervalSeconds int `json:"retrain_interval_seconds"`

	SamplePeriodSeconds float64 `json:"sample_period_seconds"`

	SamplesBufferSize   int `json:"samples_buffer_size"`
	AnomaliesBufferSize int `json:"anomalies_buffer_size"`

	SamplesLogPath   string `json:"samples_log_path"`
	AnomaliesLogPath string `json:"anomalies_log_path"`

	// ReplayInputPath switches the engine to replaying a historical table
	// instead of sampling live. ReplayOutputPath optionally writes the
	// per-row analysis.
	ReplayInputPath  string `json:"replay_input_path,omitempty"`
	ReplayOutputPath string `json:"replay_output_path,omitempty"`

	// PersistFailureLimit is how many consecutive persistence failures
	// move the engine to the error state.
	PersistFailureLimit int `json:"persist_failure_limit"`

	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds"`

	ForestTrees     int   `json:"forest_trees"`
	ForestSubsample int   `json:"forest_subsample"`
	ForestSeed      int64 `json:"forest_seed"`

	PromEnabled bool   `json:"prometheus_enabled"`
	PromAddr    string `json:"prometheus_addr"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		Contamination:          0.05,
		WindowSeconds:          120,
		RetrainIntervalSeconds: 300,
		SamplePeriodSeconds:    1,
		SamplesBufferSize:      1000,
		AnomaliesBufferSize:    100,
		SamplesLogPath:         "./logs/metrics_history.csv",
		AnomaliesLogPath:       "./logs/anomalies.jsonl",
		PersistFailureLimit:    10,
		ShutdownTimeoutSeconds: 5,
		ForestTrees:            100,
		ForestSubsample:        256,
		ForestSeed:             1,
		PromEnabled:            false,
		PromAddr:               "127.0.0.1:9130",
	}
}

// Load reads a JSON config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine must not start with.
func (c Config) Validate() error {
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		return fmt.Errorf("contamination must be in (0, 0.5], got %g", c.Contamination)
	}
	if c.SamplePeriodSeconds <= 0 {
		return fmt.Errorf("sample period must be positive, got %g", c.SamplePeriodSeconds)
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("window size must be positive, got %d", c.WindowSeconds)
	}
	if c.RetrainIntervalSeconds <= 0 {
		return fmt.Errorf("retrain interval must be positive, got %d", c.RetrainIntervalSeconds)
	}
	if c.SamplesBufferSize <= 0 || c.AnomaliesBufferSize <= 0 {
		return fmt.Errorf("buffer sizes must be positive, got %d/%d", c.SamplesBufferSize, c.AnomaliesBufferSize)
	}
	if c.MinTrainingSamples() < 2 {
		return fmt.Errorf("window of %ds at period %gs yields fewer than 2 training samples", c.WindowSeconds, c.SamplePeriodSeconds)
	}
	if c.ForestTrees <= 0 || c.ForestSubsample <= 0 {
		return fmt.Errorf("forest parameters must be positive, got trees=%d subsample=%d", c.ForestTrees, c.ForestSubsample)
	}
	if c.SamplesLogPath == "" || c.AnomaliesLogPath == "" {
		return fmt.Errorf("log paths must not be empty")
	}
	return nil
}

// SamplePeriod returns the tick period as a duration.
func (c Config) SamplePeriod() time.Duration {
	return time.Duration(c.SamplePeriodSeconds * float64(time.Second))
}

// RetrainInterval returns the retrain interval as a duration.
func (c Config) RetrainInterval() time.Duration {
	return time.Duration(c.RetrainIntervalSeconds) * time.Second
}

// ShutdownTimeout returns the graceful-shutdown deadline.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// MinTrainingSamples is the fit gate: the training window expressed in
// samples at the configured cadence.
func (c Config) MinTrainingSamples() int {
	return int(float64(c.WindowSeconds) / c.SamplePeriodSeconds)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateContamination(t *testing.T) {
	tests := []struct {
		contamination float64
		ok            bool
	}{
		{0.05, true},
		{0.5, true},
		{0, false},
		{-0.1, false},
		{0.51, false},
		{1, false},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Contamination = tt.contamination
		err := cfg.Validate()
		if tt.ok {
			assert.NoError(t, err, "contamination=%g", tt.contamination)
		} else {
			assert.Error(t, err, "contamination=%g", tt.contamination)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	mutations := map[string]func(*Config){
		"zero period":           func(c *Config) { c.SamplePeriodSeconds = 0 },
		"negative period":       func(c *Config) { c.SamplePeriodSeconds = -1 },
		"zero window":           func(c *Config) { c.WindowSeconds = 0 },
		"zero retrain interval": func(c *Config) { c.RetrainIntervalSeconds = 0 },
		"zero samples buffer":   func(c *Config) { c.SamplesBufferSize = 0 },
		"zero anomalies buffer": func(c *Config) { c.AnomaliesBufferSize = 0 },
		"window under 2 ticks":  func(c *Config) { c.WindowSeconds = 1; c.SamplePeriodSeconds = 1 },
		"no trees":              func(c *Config) { c.ForestTrees = 0 },
		"empty samples log":     func(c *Config) { c.SamplesLogPath = "" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMinTrainingSamples(t *testing.T) {
	cfg := Default()
	cfg.WindowSeconds = 120
	cfg.SamplePeriodSeconds = 1
	assert.Equal(t, 120, cfg.MinTrainingSamples())

	cfg.SamplePeriodSeconds = 0.5
	assert.Equal(t, 240, cfg.MinTrainingSamples())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"contamination": 0.1, "window_size_seconds": 60}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Contamination)
	assert.Equal(t, 60, cfg.WindowSeconds)
	assert.Equal(t, Default().SamplesBufferSize, cfg.SamplesBufferSize, "unset fields keep defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

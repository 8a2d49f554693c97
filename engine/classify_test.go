package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viruchith/anomalyd/model"
)

func TestSeverityBands(t *testing.T) {
	tests := []struct {
		raw  float64
		want model.Severity
	}{
		{-0.8, model.SeverityCritical},
		{-0.6, model.SeverityHigh},
		{-0.4, model.SeverityMedium},
		{-0.1, model.SeverityNormal},
		{-0.7, model.SeverityHigh},
		{-0.5, model.SeverityMedium},
		{-0.3, model.SeverityNormal},
		{0.2, model.SeverityNormal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityFor(tt.raw), "raw=%g", tt.raw)
	}
}

func TestClassifyReportsOnlyCriticalAndHigh(t *testing.T) {
	s := model.MetricSample{CPUPercent: 10}
	for _, tt := range []struct {
		raw    float64
		report bool
	}{
		{-0.8, true},
		{-0.6, true},
		{-0.4, false},
		{-0.1, false},
	} {
		rec, report := Classify(s, tt.raw)
		assert.Equal(t, tt.report, report, "raw=%g", tt.raw)
		if report {
			assert.True(t, rec.Severity.Reported())
			assert.Less(t, rec.RawScore, -0.5)
		}
	}
}

func TestReasonsFixedOrder(t *testing.T) {
	s := model.MetricSample{
		CPUPercent:    99,
		MemoryPercent: 95,
		DiskReadMBs:   200,
		NetSentMBs:    200,
	}
	assert.Equal(t, []string{"high CPU", "high memory", "disk burst", "network burst"}, Reasons(s))
}

func TestReasonsIndividualPredicates(t *testing.T) {
	tests := []struct {
		name   string
		sample model.MetricSample
		want   []string
	}{
		{"cpu only", model.MetricSample{CPUPercent: 81}, []string{"high CPU"}},
		{"memory only", model.MetricSample{MemoryPercent: 80.5}, []string{"high memory"}},
		{"disk sums read and write", model.MetricSample{DiskReadMBs: 30, DiskWriteMBs: 25}, []string{"disk burst"}},
		{"network sums sent and recv", model.MetricSample{NetSentMBs: 26, NetRecvMBs: 26}, []string{"network burst"}},
		{"boundary does not fire", model.MetricSample{CPUPercent: 80, MemoryPercent: 80, DiskReadMBs: 50, NetSentMBs: 50}, []string{ReasonModelOnly}},
		{"quiet sample", model.MetricSample{CPUPercent: 5}, []string{ReasonModelOnly}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reasons(tt.sample))
		})
	}
}

func TestClassifyCarriesSample(t *testing.T) {
	s := model.MetricSample{CPUPercent: 95, MemoryPercent: 12}
	rec, report := Classify(s, -0.9)
	require.True(t, report)
	assert.Equal(t, model.SeverityCritical, rec.Severity)
	assert.Equal(t, s, rec.Sample)
	assert.Equal(t, s.Timestamp, rec.Timestamp)
	assert.Contains(t, rec.Reasons, "high CPU")
}

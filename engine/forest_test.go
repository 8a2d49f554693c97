package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viruchith/anomalyd/model"
)

func baselineSample(i int) model.MetricSample {
	return model.MetricSample{
		Timestamp:     time.Unix(int64(i), 0),
		CPUPercent:    10,
		MemoryPercent: 20,
		DiskReadMBs:   0.5,
		DiskWriteMBs:  0.5,
		NetSentMBs:    0.5,
		NetRecvMBs:    0.5,
	}
}

// variedSample produces a deterministic wiggly baseline without any RNG.
func variedSample(i int) model.MetricSample {
	f := float64(i)
	return model.MetricSample{
		Timestamp:       time.Unix(int64(i), 0),
		CPUPercent:      10 + 5*math.Sin(f/3),
		CPUFrequencyMHz: 2400 + 100*math.Cos(f/5),
		MemoryPercent:   30 + 3*math.Sin(f/7),
		DiskReadMBs:     1 + 0.5*math.Cos(f/2),
		DiskWriteMBs:    1 + 0.5*math.Sin(f/4),
		NetSentMBs:      2 + math.Sin(f/6),
		NetRecvMBs:      2 + math.Cos(f/8),
	}
}

func spikeSample() model.MetricSample {
	return model.MetricSample{
		Timestamp:     time.Unix(10000, 0),
		CPUPercent:    99,
		MemoryPercent: 95,
		DiskReadMBs:   200,
		NetSentMBs:    200,
	}
}

func fitBaseline(t *testing.T, samples []model.MetricSample) *Forest {
	t.Helper()
	f, err := FitForest(context.Background(), samples, DefaultForestConfig(0.05), time.Unix(20000, 0))
	require.NoError(t, err)
	return f
}

func TestFitForestRejectsTooFewSamples(t *testing.T) {
	_, err := FitForest(context.Background(), []model.MetricSample{baselineSample(1)}, DefaultForestConfig(0.05), time.Now())
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestFitForestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	samples := make([]model.MetricSample, 50)
	for i := range samples {
		samples[i] = variedSample(i)
	}
	_, err := FitForest(ctx, samples, DefaultForestConfig(0.05), time.Now())
	assert.ErrorIs(t, err, ErrFitCanceled)
}

func TestForestScoreDeterministic(t *testing.T) {
	samples := make([]model.MetricSample, 200)
	for i := range samples {
		samples[i] = variedSample(i)
	}
	f1 := fitBaseline(t, samples)
	f2 := fitBaseline(t, samples)

	for _, s := range []model.MetricSample{samples[0], samples[57], spikeSample()} {
		assert.Equal(t, f1.Score(s), f1.Score(s), "same model, same sample, same score")
		assert.Equal(t, f1.Score(s), f2.Score(s), "identical fits must score identically")
	}
}

func TestForestSpikeAfterConstantBaseline(t *testing.T) {
	samples := make([]model.MetricSample, 120)
	for i := range samples {
		samples[i] = baselineSample(i)
	}
	f := fitBaseline(t, samples)

	base := f.Score(samples[0])
	spike := f.Score(spikeSample())
	assert.Less(t, spike, base, "the spike must score lower than the baseline")
	assert.Less(t, spike, -0.5, "a full resource spike must land in a reported band")
	assert.Greater(t, base, -0.3, "baseline samples stay out of reported bands")
}

func TestForestSpikeAfterVariedBaseline(t *testing.T) {
	samples := make([]model.MetricSample, 300)
	for i := range samples {
		samples[i] = variedSample(i)
	}
	f := fitBaseline(t, samples)

	spike := f.Score(spikeSample())
	assert.Less(t, spike, 0.0, "spike must fall below the decision boundary")
	assert.Less(t, spike, f.Score(samples[10]))
}

func TestForestContaminationBoundary(t *testing.T) {
	samples := make([]model.MetricSample, 400)
	for i := range samples {
		samples[i] = variedSample(i)
	}
	f := fitBaseline(t, samples)

	negatives := 0
	for _, s := range samples {
		if f.Score(s) < 0 {
			negatives++
		}
	}
	frac := float64(negatives) / float64(len(samples))
	assert.LessOrEqual(t, frac, 0.15, "far more training samples flagged than contamination allows")
}

func TestForestMetadata(t *testing.T) {
	samples := make([]model.MetricSample, 50)
	for i := range samples {
		samples[i] = variedSample(i)
	}
	at := time.Unix(123456, 0)
	f, err := FitForest(context.Background(), samples, DefaultForestConfig(0.05), at)
	require.NoError(t, err)
	assert.Equal(t, at, f.TrainedAt())
	assert.Equal(t, 50, f.SampleCountAtFit())
}

func TestAvgPathLength(t *testing.T) {
	assert.Equal(t, 0.0, avgPathLength(0))
	assert.Equal(t, 0.0, avgPathLength(1))
	assert.InDelta(t, 1.0, avgPathLength(2), 0.3)
	assert.Greater(t, avgPathLength(256), avgPathLength(16))
}

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateMiB(t *testing.T) {
	tests := []struct {
		name     string
		prev     uint64
		curr     uint64
		elapsed  float64
		prevRate float64
		want     float64
	}{
		{"steady growth", 0, 1 << 20, 1, 0, 1},
		{"half interval", 0, 1 << 20, 2, 0, 0.5},
		{"counter wrap yields zero", 100, 50, 1, 3.5, 0},
		{"zero elapsed keeps previous rate", 100, 200, 0, 3.5, 3.5},
		{"no movement", 100, 100, 1, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RateMiB(tt.prev, tt.curr, tt.elapsed, tt.prevRate)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

// Counter sequence 10, 20, 5, 15 bytes at 1s intervals: a wrap in the
// middle must read as zero, not negative.
func TestRateMiBWrapSequence(t *testing.T) {
	counters := []uint64{10, 20, 5, 15}
	want := []float64{10.0 / (1 << 20), 0, 10.0 / (1 << 20)}

	var prevRate float64
	for i := 1; i < len(counters); i++ {
		r := RateMiB(counters[i-1], counters[i], 1, prevRate)
		assert.InDelta(t, want[i-1], r, 1e-12, "step %d", i)
		assert.GreaterOrEqual(t, r, 0.0)
		prevRate = r
	}
}

func TestDelta(t *testing.T) {
	assert.Equal(t, uint64(5), Delta(10, 15))
	assert.Equal(t, uint64(0), Delta(15, 10))
}

func TestCPUPct(t *testing.T) {
	assert.InDelta(t, 20.0, CPUPct(0, 200, 0, 1000), 1e-9)
	assert.Equal(t, 0.0, CPUPct(100, 100, 500, 500))
	// totals going backwards must not divide by a wrapped delta
	assert.Equal(t, 0.0, CPUPct(0, 100, 1000, 500))
}

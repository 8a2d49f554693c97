package engine

import (
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/montanaflynn/stats"

	"github.com/viruchith/anomalyd/model"
)

// scoreWindow bounds the recent-score ring used for percentile aggregates.
const scoreWindow = 512

// Stats maintains incremental aggregates on the hot path. Everything here
// is O(1) per sample; percentiles are computed lazily on snapshot from a
// small bounded ring rather than by re-scanning sample history.
type Stats struct {
	mu sync.Mutex

	startedAt time.Time

	samples  uint64
	reported uint64
	critical uint64
	high     uint64
	medium   uint64
	normal   uint64

	cpuEWMA ewma.MovingAverage
	memEWMA ewma.MovingAverage

	scores []float64
	sHead  int
	sSize  int
}

// NewStats creates a stats block anchored at startedAt.
func NewStats(startedAt time.Time) *Stats {
	return &Stats{
		startedAt: startedAt,
		cpuEWMA:   ewma.NewMovingAverage(),
		memEWMA:   ewma.NewMovingAverage(),
		scores:    make([]float64, scoreWindow),
	}
}

// ObserveSample folds one sample (and its score, when present) into the
// aggregates.
func (st *Stats) ObserveSample(s model.MetricSample, scored bool, raw float64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.samples++
	st.cpuEWMA.Add(s.CPUPercent)
	st.memEWMA.Add(s.MemoryPercent)
	if scored {
		st.scores[st.sHead] = raw
		st.sHead = (st.sHead + 1) % len(st.scores)
		if st.sSize < len(st.scores) {
			st.sSize++
		}
	}
}

// ObserveSeverity counts a classified sample by band. Every scored sample
// lands in exactly one band; critical and high also count as reported.
func (st *Stats) ObserveSeverity(sev model.Severity) {
	st.mu.Lock()
	defer st.mu.Unlock()
	switch sev {
	case model.SeverityCritical:
		st.critical++
		st.reported++
	case model.SeverityHigh:
		st.high++
		st.reported++
	case model.SeverityMedium:
		st.medium++
	case model.SeverityNormal:
		st.normal++
	}
}

// Snapshot returns the aggregate block. State, trained-at, and drop counts
// are owned elsewhere and filled in by the engine.
func (st *Stats) Snapshot(now time.Time) model.Stats {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := model.Stats{
		SampleCount:    st.samples,
		AnomalyCount:   st.reported,
		UptimeSeconds:  now.Sub(st.startedAt).Seconds(),
		CPUSmoothed:    st.cpuEWMA.Value(),
		MemorySmoothed: st.memEWMA.Value(),
		CriticalCount:  st.critical,
		HighCount:      st.high,
		MediumCount:    st.medium,
		NormalCount:    st.normal,
	}
	if st.sSize > 0 {
		window := make([]float64, st.sSize)
		start := st.sHead - st.sSize
		for i := 0; i < st.sSize; i++ {
			window[i] = st.scores[(start+i+len(st.scores))%len(st.scores)]
		}
		if p, err := stats.Median(window); err == nil {
			out.ScoreP50 = p
		}
		if p, err := stats.Percentile(window, 95); err == nil {
			out.ScoreP95 = p
		}
	}
	return out
}

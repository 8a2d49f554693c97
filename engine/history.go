package engine

import (
	"sync"

	"github.com/viruchith/anomalyd/model"
)

// RollingStore holds the bounded ring buffers of recent samples and
// reported anomalies. It is the only shared mutable collection in the
// engine: one mutex guards both rings, held only for the duration of a
// push or a copy-out snapshot. Readers never see the internal buffers.
type RollingStore struct {
	mu sync.Mutex

	samples []model.MetricSample
	sHead   int
	sSize   int

	anomalies []model.AnomalyRecord
	aHead     int
	aSize     int

	totalSamples   uint64
	totalAnomalies uint64
}

// NewRollingStore creates a store with the given ring capacities.
func NewRollingStore(sampleCap, anomalyCap int) *RollingStore {
	return &RollingStore{
		samples:   make([]model.MetricSample, sampleCap),
		anomalies: make([]model.AnomalyRecord, anomalyCap),
	}
}

// AppendSample pushes a sample, evicting the oldest when full.
func (r *RollingStore) AppendSample(s model.MetricSample) {
	r.mu.Lock()
	r.samples[r.sHead] = s
	r.sHead = (r.sHead + 1) % len(r.samples)
	if r.sSize < len(r.samples) {
		r.sSize++
	}
	r.totalSamples++
	r.mu.Unlock()
}

// AppendAnomaly pushes a reported anomaly, evicting the oldest when full.
func (r *RollingStore) AppendAnomaly(a model.AnomalyRecord) {
	r.mu.Lock()
	r.anomalies[r.aHead] = a
	r.aHead = (r.aHead + 1) % len(r.anomalies)
	if r.aSize < len(r.anomalies) {
		r.aSize++
	}
	r.totalAnomalies++
	r.mu.Unlock()
}

// RecentSamples returns a copy of the last k samples, oldest first.
// k larger than the buffer returns everything buffered.
func (r *RollingStore) RecentSamples(k int) []model.MetricSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k > r.sSize {
		k = r.sSize
	}
	if k <= 0 {
		return nil
	}
	out := make([]model.MetricSample, k)
	start := r.sHead - k
	for i := 0; i < k; i++ {
		out[i] = r.samples[(start+i+len(r.samples))%len(r.samples)]
	}
	return out
}

// RecentAnomalies returns a copy of the last k reported anomalies, oldest
// first.
func (r *RollingStore) RecentAnomalies(k int) []model.AnomalyRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k > r.aSize {
		k = r.aSize
	}
	if k <= 0 {
		return nil
	}
	out := make([]model.AnomalyRecord, k)
	start := r.aHead - k
	for i := 0; i < k; i++ {
		out[i] = r.anomalies[(start+i+len(r.anomalies))%len(r.anomalies)]
	}
	return out
}

// SampleCount returns the total samples appended since start (monotonic,
// not the buffer size).
func (r *RollingStore) SampleCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalSamples
}

// AnomalyCount returns the total reported anomalies appended since start.
func (r *RollingStore) AnomalyCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalAnomalies
}

// Len returns the number of samples currently buffered.
func (r *RollingStore) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sSize
}

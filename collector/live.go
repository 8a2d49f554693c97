package collector

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/viruchith/anomalyd/model"
	"github.com/viruchith/anomalyd/util"
)

// counterState is the previous reading used for rate derivation.
type counterState struct {
	at        time.Time
	cpu       cpuTimes
	diskRead  uint64
	diskWrite uint64
	netSent   uint64
	netRecv   uint64
	// previous derived rates, reused when a duplicate timestamp yields
	// a zero elapsed interval
	diskReadRate  float64
	diskWriteRate float64
	netSentRate   float64
	netRecvRate   float64
}

// LiveSource samples OS counters from procfs at a fixed period.
// A transient failure in one counter zeroes that field and still emits the
// sample; the sample is only withheld when every counter group fails.
type LiveSource struct {
	period   time.Duration
	procRoot string
	log      zerolog.Logger

	ticker *time.Ticker
	prev   *counterState
}

// LiveOption adjusts a LiveSource.
type LiveOption func(*LiveSource)

// WithProcRoot overrides the procfs mount point, mainly for tests.
func WithProcRoot(root string) LiveOption {
	return func(s *LiveSource) { s.procRoot = root }
}

// NewLiveSource creates a live sampler ticking at period.
func NewLiveSource(period time.Duration, log zerolog.Logger, opts ...LiveOption) *LiveSource {
	s := &LiveSource{
		period:   period,
		procRoot: "/proc",
		log:      log.With().Str("component", "sampler").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Next blocks until the next tick boundary and returns one sample.
// The first call samples immediately to establish the counter baseline.
func (s *LiveSource) Next(ctx context.Context) (model.MetricSample, error) {
	if s.ticker == nil {
		s.ticker = time.NewTicker(s.period)
	} else {
		select {
		case <-ctx.Done():
			s.ticker.Stop()
			return model.MetricSample{}, ctx.Err()
		case <-s.ticker.C:
		}
	}
	return s.sample(time.Now())
}

// sample reads all counter groups and derives rates against the previous
// reading. Exported behavior is exercised through Next; split out so the
// clock is injectable in tests.
func (s *LiveSource) sample(now time.Time) (model.MetricSample, error) {
	sm := model.MetricSample{Timestamp: now}
	failures := 0

	cpu, cpuErr := readCPUTimes(s.procRoot)
	if cpuErr != nil {
		s.log.Warn().Err(cpuErr).Msg("cpu counters unavailable, field zeroed")
		failures++
	}
	mem, memErr := readMemInfo(s.procRoot)
	if memErr != nil {
		s.log.Warn().Err(memErr).Msg("memory counters unavailable, fields zeroed")
		failures++
	} else {
		sm.MemoryPercent = mem.usedPercent()
		sm.MemoryAvailableGB = mem.availableGB()
	}
	diskR, diskW, diskErr := readDiskBytes(s.procRoot)
	if diskErr != nil {
		s.log.Warn().Err(diskErr).Msg("disk counters unavailable, fields zeroed")
		failures++
	}
	netS, netR, netErr := readNetBytes(s.procRoot)
	if netErr != nil {
		s.log.Warn().Err(netErr).Msg("network counters unavailable, fields zeroed")
		failures++
	}
	if freq, err := readCPUFreqMHz(s.procRoot); err != nil {
		s.log.Warn().Err(err).Msg("cpu frequency unavailable, field zeroed")
	} else {
		sm.CPUFrequencyMHz = freq
	}

	if failures == 4 {
		return model.MetricSample{}, cpuErr
	}

	cur := &counterState{
		at:        now,
		cpu:       cpu,
		diskRead:  diskR,
		diskWrite: diskW,
		netSent:   netS,
		netRecv:   netR,
	}

	if s.prev != nil {
		elapsed := now.Sub(s.prev.at).Seconds()
		if cpuErr == nil {
			sm.CPUPercent = util.CPUPct(s.prev.cpu.active(), cpu.active(), s.prev.cpu.total(), cpu.total())
		}
		if diskErr == nil {
			sm.DiskReadMBs = util.RateMiB(s.prev.diskRead, diskR, elapsed, s.prev.diskReadRate)
			sm.DiskWriteMBs = util.RateMiB(s.prev.diskWrite, diskW, elapsed, s.prev.diskWriteRate)
		}
		if netErr == nil {
			sm.NetSentMBs = util.RateMiB(s.prev.netSent, netS, elapsed, s.prev.netSentRate)
			sm.NetRecvMBs = util.RateMiB(s.prev.netRecv, netR, elapsed, s.prev.netRecvRate)
		}
	}
	cur.diskReadRate = sm.DiskReadMBs
	cur.diskWriteRate = sm.DiskWriteMBs
	cur.netSentRate = sm.NetSentMBs
	cur.netRecvRate = sm.NetRecvMBs
	s.prev = cur

	sanitize(&sm)
	return sm, nil
}

// sanitize replaces any non-finite field with zero so downstream consumers
// only ever see finite values.
func sanitize(sm *model.MetricSample) {
	for _, f := range []*float64{
		&sm.CPUPercent, &sm.CPUFrequencyMHz, &sm.MemoryPercent, &sm.MemoryAvailableGB,
		&sm.DiskReadMBs, &sm.DiskWriteMBs, &sm.NetSentMBs, &sm.NetRecvMBs,
	} {
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			*f = 0
		}
	}
}

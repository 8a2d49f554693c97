package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/viruchith/anomalyd/model"
)

// Metrics exposes the latest sample and engine counters to Prometheus.
// The engine updates the exporter on every tick; serving it over HTTP is
// optional.
type Metrics struct {
	registry *prometheus.Registry

	cpuPercent  prometheus.Gauge
	cpuFreq     prometheus.Gauge
	memPercent  prometheus.Gauge
	memAvail    prometheus.Gauge
	diskRead    prometheus.Gauge
	diskWrite   prometheus.Gauge
	netSent     prometheus.Gauge
	netRecv     prometheus.Gauge
	rawScore    prometheus.Gauge
	stateGauge  *prometheus.GaugeVec
	ticks       prometheus.Counter
	anomalies   *prometheus.CounterVec
	subDrops    prometheus.CounterFunc
	writerDrops prometheus.CounterFunc
}

// NewMetrics builds the exporter on a private registry.
func NewMetrics(bus *Bus, rec *Recorder) *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "anomalyd", Name: name, Help: help})
	}
	m := &Metrics{
		registry:   prometheus.NewRegistry(),
		cpuPercent: gauge("cpu_percent", "CPU utilization of the last sample."),
		cpuFreq:    gauge("cpu_frequency_mhz", "CPU frequency of the last sample."),
		memPercent: gauge("memory_percent", "Memory utilization of the last sample."),
		memAvail:   gauge("memory_available_gb", "Available memory of the last sample."),
		diskRead:   gauge("disk_read_mb_per_s", "Disk read rate of the last sample."),
		diskWrite:  gauge("disk_write_mb_per_s", "Disk write rate of the last sample."),
		netSent:    gauge("network_sent_mb_per_s", "Network send rate of the last sample."),
		netRecv:    gauge("network_recv_mb_per_s", "Network receive rate of the last sample."),
		rawScore:   gauge("raw_score", "Raw anomaly score of the last scored sample."),
		stateGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "anomalyd", Name: "state", Help: "Engine state (1 for the active state).",
		}, []string{"state"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anomalyd", Name: "ticks_total", Help: "Samples processed.",
		}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anomalyd", Name: "anomalies_total", Help: "Reported anomalies by severity.",
		}, []string{"severity"}),
		subDrops: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "anomalyd", Name: "subscriber_drops_total", Help: "Events dropped from subscriber queues.",
		}, func() float64 { return float64(bus.Dropped()) }),
		writerDrops: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "anomalyd", Name: "writer_drops_total", Help: "Records dropped on a full writer queue.",
		}, func() float64 { return float64(rec.Dropped()) }),
	}
	m.registry.MustRegister(
		m.cpuPercent, m.cpuFreq, m.memPercent, m.memAvail,
		m.diskRead, m.diskWrite, m.netSent, m.netRecv, m.rawScore,
		m.stateGauge, m.ticks, m.anomalies, m.subDrops, m.writerDrops,
	)
	return m
}

// ObserveTick updates the per-sample gauges.
func (m *Metrics) ObserveTick(s model.MetricSample, scored bool, raw float64) {
	m.ticks.Inc()
	m.cpuPercent.Set(s.CPUPercent)
	m.cpuFreq.Set(s.CPUFrequencyMHz)
	m.memPercent.Set(s.MemoryPercent)
	m.memAvail.Set(s.MemoryAvailableGB)
	m.diskRead.Set(s.DiskReadMBs)
	m.diskWrite.Set(s.DiskWriteMBs)
	m.netSent.Set(s.NetSentMBs)
	m.netRecv.Set(s.NetRecvMBs)
	if scored {
		m.rawScore.Set(raw)
	}
}

// ObserveAnomaly counts one reported anomaly.
func (m *Metrics) ObserveAnomaly(sev model.Severity) {
	m.anomalies.WithLabelValues(string(sev)).Inc()
}

// ObserveState flags the active state.
func (m *Metrics) ObserveState(state model.State) {
	for _, s := range []model.State{
		model.StateCold, model.StateTraining, model.StateReady, model.StateError, model.StateStopped,
	} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.stateGauge.WithLabelValues(string(s)).Set(v)
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

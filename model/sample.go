package model

import "time"

// MetricSample is one snapshot of host counters at a single tick.
// Disk and network fields are per-second rates in MiB, already derived
// from the cumulative byte counters.
type MetricSample struct {
	Timestamp         time.Time `json:"timestamp"`
	CPUPercent        float64   `json:"cpu_percent"`
	CPUFrequencyMHz   float64   `json:"cpu_frequency_mhz"`
	MemoryPercent     float64   `json:"memory_percent"`
	MemoryAvailableGB float64   `json:"memory_available_gb"`
	DiskReadMBs       float64   `json:"disk_read_mb_per_s"`
	DiskWriteMBs      float64   `json:"disk_write_mb_per_s"`
	NetSentMBs        float64   `json:"network_sent_mb_per_s"`
	NetRecvMBs        float64   `json:"network_recv_mb_per_s"`
}

// NumFeatures is the dimensionality of the model feature vector.
const NumFeatures = 7

// Features returns the model feature vector in its fixed order:
// cpu%, mem%, disk read, disk write, net sent, net recv, cpu MHz.
// Timestamp and memory_available_gb are not model inputs.
func (s MetricSample) Features() []float64 {
	return []float64{
		s.CPUPercent,
		s.MemoryPercent,
		s.DiskReadMBs,
		s.DiskWriteMBs,
		s.NetSentMBs,
		s.NetRecvMBs,
		s.CPUFrequencyMHz,
	}
}

// Severity classifies how far a raw score fell below the decision boundary.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityNormal   Severity = "normal"
)

// Reported returns true for severities that are persisted and broadcast.
func (s Severity) Reported() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// AnomalyRecord is a reported anomaly: the originating sample plus the
// detector output and the rule labels that fired.
type AnomalyRecord struct {
	Timestamp time.Time    `json:"timestamp"`
	RawScore  float64      `json:"raw_score"`
	Severity  Severity     `json:"severity"`
	Reasons   []string     `json:"reasons"`
	Sample    MetricSample `json:"sample"`
}

// State is the engine lifecycle state.
type State string

const (
	StateCold     State = "cold"
	StateTraining State = "training"
	StateReady    State = "ready"
	StateError    State = "error"
	StateStopped  State = "stopped"
)

// Stats is the aggregate counter block returned with snapshots.
type Stats struct {
	SampleCount     uint64     `json:"sample_count"`
	AnomalyCount    uint64     `json:"anomaly_count"`
	UptimeSeconds   float64    `json:"uptime_seconds"`
	State           State      `json:"state"`
	TrainedAt       *time.Time `json:"trained_at,omitempty"`
	SamplesAtFit    int        `json:"sample_count_at_fit,omitempty"`
	CPUSmoothed     float64    `json:"cpu_percent_smoothed"`
	MemorySmoothed  float64    `json:"memory_percent_smoothed"`
	ScoreP50        float64    `json:"score_p50"`
	ScoreP95        float64    `json:"score_p95"`
	CriticalCount   uint64     `json:"critical_count"`
	HighCount       uint64     `json:"high_count"`
	MediumCount     uint64     `json:"medium_count"`
	NormalCount     uint64     `json:"normal_count"`
	SubscriberDrops uint64     `json:"subscriber_drops"`
}

package model

// EventType discriminates bus events.
type EventType string

const (
	EventSampleUpdate  EventType = "sample_update"
	EventAnomalyReport EventType = "anomaly_report"
	EventStateUpdate   EventType = "state_update"
)

// Event is one item delivered to a subscriber queue.
// Sample events carry the sample plus the scoring outcome (RawScore is nil
// before the model is ready). Anomaly events carry the full record.
type Event struct {
	Type      EventType      `json:"type"`
	Sample    *MetricSample  `json:"sample,omitempty"`
	IsAnomaly bool           `json:"is_anomaly,omitempty"`
	RawScore  *float64       `json:"raw_score,omitempty"`
	Anomaly   *AnomalyRecord `json:"anomaly,omitempty"`
	State     State          `json:"state,omitempty"`
}

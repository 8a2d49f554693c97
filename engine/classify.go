package engine

import "github.com/viruchith/anomalyd/model"

// Severity bands over the raw score axis (lower = worse). The constants
// are fixed and independent of contamination.
const (
	criticalBelow = -0.7
	highBelow     = -0.5
	mediumBelow   = -0.3
)

// ReasonModelOnly marks a reported anomaly where no rule predicate fired.
const ReasonModelOnly = "model-only"

// reasonRule is one rule-based indicator evaluated against a sample.
// Rules are evaluated in fixed order so reason lists are stable.
type reasonRule struct {
	label string
	fires func(model.MetricSample) bool
}

var reasonRules = []reasonRule{
	{"high CPU", func(s model.MetricSample) bool { return s.CPUPercent > 80 }},
	{"high memory", func(s model.MetricSample) bool { return s.MemoryPercent > 80 }},
	{"disk burst", func(s model.MetricSample) bool { return s.DiskReadMBs+s.DiskWriteMBs > 50 }},
	{"network burst", func(s model.MetricSample) bool { return s.NetSentMBs+s.NetRecvMBs > 50 }},
}

// SeverityFor maps a raw score to its severity band.
func SeverityFor(raw float64) model.Severity {
	switch {
	case raw < criticalBelow:
		return model.SeverityCritical
	case raw < highBelow:
		return model.SeverityHigh
	case raw < mediumBelow:
		return model.SeverityMedium
	default:
		return model.SeverityNormal
	}
}

// Reasons collects the labels of the rule predicates that fire for a
// sample, in fixed order, falling back to the model-only marker.
func Reasons(s model.MetricSample) []string {
	var out []string
	for _, r := range reasonRules {
		if r.fires(s) {
			out = append(out, r.label)
		}
	}
	if len(out) == 0 {
		out = []string{ReasonModelOnly}
	}
	return out
}

// Classify turns a scored sample into an anomaly record and a reporting
// decision. Only critical and high records are reported; medium and normal
// are counted by the caller and dropped.
func Classify(s model.MetricSample, raw float64) (model.AnomalyRecord, bool) {
	sev := SeverityFor(raw)
	rec := model.AnomalyRecord{
		Timestamp: s.Timestamp,
		RawScore:  raw,
		Severity:  sev,
		Reasons:   Reasons(s),
		Sample:    s,
	}
	return rec, sev.Reported()
}

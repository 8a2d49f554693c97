package collector

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/viruchith/anomalyd/model"
	"github.com/viruchith/anomalyd/util"
)

// ReplaySource yields samples from a historical CSV table in row order.
// Rate columns are taken as already-per-second values. A timestamp column is
// used when present; otherwise timestamps are synthesized at the configured
// period starting from the instant the source is opened.
type ReplaySource struct {
	header []string
	rows   [][]string
	cols   map[string]int
	idx    int

	period time.Duration
	start  time.Time
	prevTS time.Time
}

// NewReplaySource reads the whole CSV up front so row access is cheap and
// the input file can be closed immediately.
func NewReplaySource(path string, period time.Duration) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay input: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read replay header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read replay row: %w", err)
		}
		rows = append(rows, rec)
	}

	return &ReplaySource{
		header: header,
		rows:   rows,
		cols:   cols,
		period: period,
		start:  time.Now(),
	}, nil
}

// Header returns the input column names.
func (s *ReplaySource) Header() []string { return s.header }

// Rows returns the raw input rows in order.
func (s *ReplaySource) Rows() [][]string { return s.rows }

// Len returns the number of data rows.
func (s *ReplaySource) Len() int { return len(s.rows) }

// Next returns the next row as a sample, or ErrExhausted after the last row.
func (s *ReplaySource) Next(ctx context.Context) (model.MetricSample, error) {
	if err := ctx.Err(); err != nil {
		return model.MetricSample{}, err
	}
	if s.idx >= len(s.rows) {
		return model.MetricSample{}, ErrExhausted
	}
	row := s.rows[s.idx]
	sm := model.MetricSample{
		Timestamp:         s.rowTimestamp(row),
		CPUPercent:        s.field(row, "cpu_percent"),
		CPUFrequencyMHz:   s.field(row, "cpu_frequency_mhz"),
		MemoryPercent:     s.field(row, "memory_percent"),
		MemoryAvailableGB: s.field(row, "memory_available_gb"),
		DiskReadMBs:       s.rate(row, "disk_read_mb_per_s", "disk_read_mb"),
		DiskWriteMBs:      s.rate(row, "disk_write_mb_per_s", "disk_write_mb"),
		NetSentMBs:        s.rate(row, "network_sent_mb_per_s", "network_sent_mb"),
		NetRecvMBs:        s.rate(row, "network_recv_mb_per_s", "network_recv_mb"),
	}
	// Timestamps must be strictly increasing even when the input repeats
	// or omits them.
	if !sm.Timestamp.After(s.prevTS) {
		sm.Timestamp = s.prevTS.Add(s.period)
	}
	s.prevTS = sm.Timestamp
	s.idx++
	sanitize(&sm)
	return sm, nil
}

func (s *ReplaySource) field(row []string, name string) float64 {
	i, ok := s.cols[name]
	if !ok || i >= len(row) {
		return 0
	}
	return util.ParseFloat64(row[i])
}

// rate reads a per-second rate column, accepting the legacy "_mb" column
// name as an alias (those values are per-second despite the name).
func (s *ReplaySource) rate(row []string, name, alias string) float64 {
	if _, ok := s.cols[name]; ok {
		return s.field(row, name)
	}
	return s.field(row, alias)
}

func (s *ReplaySource) rowTimestamp(row []string) time.Time {
	if i, ok := s.cols["timestamp"]; ok && i < len(row) {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, row[i]); err == nil {
				return ts
			}
		}
	}
	return s.start.Add(time.Duration(s.idx) * s.period)
}

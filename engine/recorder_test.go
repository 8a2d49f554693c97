package engine

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viruchith/anomalyd/model"
)

func newTestRecorder(t *testing.T) (*Recorder, *Bus, string, string) {
	t.Helper()
	dir := t.TempDir()
	samples := filepath.Join(dir, "metrics_history.csv")
	anomalies := filepath.Join(dir, "anomalies.jsonl")
	bus := NewBus(zerolog.Nop())
	rec, err := NewRecorder(samples, anomalies, 10, bus, zerolog.Nop(), nil)
	require.NoError(t, err)
	return rec, bus, samples, anomalies
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRecorderWritesHeaderAndRows(t *testing.T) {
	rec, _, samplesPath, _ := newTestRecorder(t)

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec.Enqueue(tickRecord{
		sample: model.MetricSample{Timestamp: ts, CPUPercent: 12.5, MemoryPercent: 40},
	})
	rec.Enqueue(tickRecord{
		sample:    model.MetricSample{Timestamp: ts.Add(time.Second), CPUPercent: 99},
		scored:    true,
		raw:       -0.75,
		isAnomaly: true,
	})
	require.NoError(t, rec.Close(time.Second))

	rows := readCSV(t, samplesPath)
	require.Len(t, rows, 3)
	assert.Equal(t, sampleHeader, rows[0])

	// Unscored row: False with a blank raw score.
	assert.Equal(t, ts.Format(time.RFC3339Nano), rows[1][0])
	assert.Equal(t, "12.5", rows[1][1])
	assert.Equal(t, "False", rows[1][9])
	assert.Equal(t, "", rows[1][10])

	// Scored anomalous row: the literal word True and the raw score.
	assert.Equal(t, "True", rows[2][9])
	assert.Equal(t, "-0.75", rows[2][10])
}

func TestRecorderRowsOrderedByTimestamp(t *testing.T) {
	rec, _, samplesPath, _ := newTestRecorder(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		rec.Enqueue(tickRecord{sample: model.MetricSample{Timestamp: base.Add(time.Duration(i) * time.Second)}})
	}
	require.NoError(t, rec.Close(time.Second))

	rows := readCSV(t, samplesPath)
	require.Len(t, rows, 21)
	prev := time.Time{}
	for _, row := range rows[1:] {
		ts, err := time.Parse(time.RFC3339Nano, row[0])
		require.NoError(t, err)
		assert.True(t, ts.After(prev), "rows must appear in timestamp order")
		prev = ts
	}
}

func TestRecorderAnomalyLogAndBroadcastOrder(t *testing.T) {
	rec, bus, samplesPath, anomaliesPath := newTestRecorder(t)
	sub := bus.Subscribe(8)

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	record := model.AnomalyRecord{
		Timestamp: ts,
		RawScore:  -0.9,
		Severity:  model.SeverityCritical,
		Reasons:   []string{"high CPU"},
		Sample:    model.MetricSample{Timestamp: ts, CPUPercent: 99},
	}
	rec.Enqueue(tickRecord{
		sample:    record.Sample,
		scored:    true,
		raw:       -0.9,
		isAnomaly: true,
		anomaly:   &record,
	})

	// The sample event must arrive after the row hit the file.
	ev := <-sub.Events()
	require.Equal(t, model.EventSampleUpdate, ev.Type)
	assert.True(t, ev.IsAnomaly)
	require.NotNil(t, ev.RawScore)
	assert.Equal(t, -0.9, *ev.RawScore)
	rows := readCSV(t, samplesPath)
	assert.Len(t, rows, 2, "samples-log write precedes the broadcast")

	ev = <-sub.Events()
	require.Equal(t, model.EventAnomalyReport, ev.Type)
	require.NotNil(t, ev.Anomaly)
	assert.Equal(t, model.SeverityCritical, ev.Anomaly.Severity)

	require.NoError(t, rec.Close(time.Second))

	f, err := os.Open(anomaliesPath)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	var decoded model.AnomalyRecord
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
	assert.Equal(t, record.Severity, decoded.Severity)
	assert.Equal(t, record.Reasons, decoded.Reasons)
	assert.Equal(t, record.Sample.CPUPercent, decoded.Sample.CPUPercent)
	assert.False(t, scanner.Scan(), "one record per reported anomaly")
}

func TestRecorderAppendsToExistingLog(t *testing.T) {
	dir := t.TempDir()
	samples := filepath.Join(dir, "metrics_history.csv")
	anomalies := filepath.Join(dir, "anomalies.jsonl")
	bus := NewBus(zerolog.Nop())

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		rec, err := NewRecorder(samples, anomalies, 10, bus, zerolog.Nop(), nil)
		require.NoError(t, err)
		rec.Enqueue(tickRecord{sample: model.MetricSample{Timestamp: ts.Add(time.Duration(i) * time.Second)}})
		require.NoError(t, rec.Close(time.Second))
	}

	rows := readCSV(t, samples)
	require.Len(t, rows, 3, "header once, then one row per run")
	assert.Equal(t, sampleHeader, rows[0])
}

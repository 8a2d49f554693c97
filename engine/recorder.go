package engine

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/viruchith/anomalyd/model"
)

// sampleHeader is the stable column order of the samples log.
var sampleHeader = []string{
	"timestamp",
	"cpu_percent",
	"cpu_frequency_mhz",
	"memory_percent",
	"memory_available_gb",
	"disk_read_mb_per_s",
	"disk_write_mb_per_s",
	"network_sent_mb_per_s",
	"network_recv_mb_per_s",
	"is_anomaly",
	"raw_score",
}

// tickRecord carries one tick's persistence and broadcast work through the
// writer queue. Keeping both duties on the same FIFO preserves the
// file-write-before-broadcast guarantee per sample without ever letting the
// sampling loop wait on disk.
type tickRecord struct {
	sample    model.MetricSample
	scored    bool
	raw       float64
	isAnomaly bool
	anomaly   *model.AnomalyRecord
}

// Recorder appends every sample to the tabular samples log and every
// reported anomaly to the structured anomalies log, then broadcasts the
// corresponding events. A single goroutine owns both files so rows are
// never interleaved.
type Recorder struct {
	log zerolog.Logger
	bus *Bus

	queue chan tickRecord
	done  chan struct{}
	wg    sync.WaitGroup

	samplesPath   string
	anomaliesPath string

	samplesFile *os.File
	samplesBuf  *bufio.Writer
	samplesCSV  *csv.Writer
	anomFile    *os.File
	anomEnc     *json.Encoder

	failLimit int
	fails     int
	onFatal   func(error)
	dropped   uint64
	mu        sync.Mutex
}

// NewRecorder opens both log files (creating parent directories) and
// starts the writer goroutine. onFatal is invoked once when failLimit
// consecutive write failures accumulate.
func NewRecorder(samplesPath, anomaliesPath string, failLimit int, bus *Bus, log zerolog.Logger, onFatal func(error)) (*Recorder, error) {
	r := &Recorder{
		log:           log.With().Str("component", "recorder").Logger(),
		bus:           bus,
		queue:         make(chan tickRecord, 256),
		done:          make(chan struct{}),
		samplesPath:   samplesPath,
		anomaliesPath: anomaliesPath,
		failLimit:     failLimit,
		onFatal:       onFatal,
	}
	if r.onFatal == nil {
		r.onFatal = func(error) {}
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	r.wg.Add(1)
	go r.run()
	return r, nil
}

func (r *Recorder) open() error {
	for _, p := range []string{r.samplesPath, r.anomaliesPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create log dir: %w", err)
			}
		}
	}
	sf, err := os.OpenFile(r.samplesPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open samples log: %w", err)
	}
	info, err := sf.Stat()
	if err != nil {
		sf.Close()
		return fmt.Errorf("stat samples log: %w", err)
	}
	r.samplesFile = sf
	r.samplesBuf = bufio.NewWriter(sf)
	r.samplesCSV = csv.NewWriter(r.samplesBuf)
	if info.Size() == 0 {
		if err := r.samplesCSV.Write(sampleHeader); err != nil {
			sf.Close()
			return fmt.Errorf("write samples header: %w", err)
		}
		r.samplesCSV.Flush()
		if err := r.samplesBuf.Flush(); err != nil {
			sf.Close()
			return fmt.Errorf("flush samples header: %w", err)
		}
	}

	af, err := os.OpenFile(r.anomaliesPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		sf.Close()
		return fmt.Errorf("open anomalies log: %w", err)
	}
	r.anomFile = af
	r.anomEnc = json.NewEncoder(af)
	return nil
}

// Enqueue hands one tick's record to the writer. On a full queue the
// record's persistence and broadcast are dropped rather than stalling the
// sampling loop.
func (r *Recorder) Enqueue(rec tickRecord) {
	select {
	case r.queue <- rec:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		r.log.Error().Time("sample", rec.sample.Timestamp).Msg("writer queue full, record dropped")
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case rec := <-r.queue:
			r.process(rec)
		case <-r.done:
			// Drain what is already queued, then stop.
			for {
				select {
				case rec := <-r.queue:
					r.process(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) process(rec tickRecord) {
	if err := r.writeSampleRow(rec); err != nil {
		r.recordFailure(err)
	} else {
		r.resetFailures()
	}

	var rawPtr *float64
	if rec.scored {
		raw := rec.raw
		rawPtr = &raw
	}
	sample := rec.sample
	r.bus.Publish(model.Event{
		Type:      model.EventSampleUpdate,
		Sample:    &sample,
		IsAnomaly: rec.isAnomaly,
		RawScore:  rawPtr,
	})

	if rec.anomaly != nil {
		if err := r.anomEnc.Encode(rec.anomaly); err != nil {
			r.recordFailure(fmt.Errorf("write anomaly record: %w", err))
		} else {
			r.resetFailures()
		}
		r.bus.Publish(model.Event{
			Type:    model.EventAnomalyReport,
			Anomaly: rec.anomaly,
		})
	}
}

func (r *Recorder) writeSampleRow(rec tickRecord) error {
	s := rec.sample
	isAnomaly := "False"
	if rec.isAnomaly {
		isAnomaly = "True"
	}
	rawScore := ""
	if rec.scored {
		rawScore = formatFloat(rec.raw)
	}
	row := []string{
		s.Timestamp.Format(time.RFC3339Nano),
		formatFloat(s.CPUPercent),
		formatFloat(s.CPUFrequencyMHz),
		formatFloat(s.MemoryPercent),
		formatFloat(s.MemoryAvailableGB),
		formatFloat(s.DiskReadMBs),
		formatFloat(s.DiskWriteMBs),
		formatFloat(s.NetSentMBs),
		formatFloat(s.NetRecvMBs),
		isAnomaly,
		rawScore,
	}
	if err := r.samplesCSV.Write(row); err != nil {
		return fmt.Errorf("write sample row: %w", err)
	}
	r.samplesCSV.Flush()
	if err := r.samplesCSV.Error(); err != nil {
		return fmt.Errorf("flush sample row: %w", err)
	}
	return r.samplesBuf.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (r *Recorder) recordFailure(err error) {
	r.mu.Lock()
	r.fails++
	fails := r.fails
	r.mu.Unlock()
	r.log.Error().Err(err).Int("consecutive", fails).Msg("persistence failure, record dropped")
	if fails == r.failLimit {
		r.onFatal(fmt.Errorf("%d consecutive persistence failures: %w", fails, err))
	}
}

func (r *Recorder) resetFailures() {
	r.mu.Lock()
	r.fails = 0
	r.mu.Unlock()
}

// Dropped returns how many records were discarded on a full queue.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops the writer, draining queued records until the deadline,
// then flushes and closes both files.
func (r *Recorder) Close(deadline time.Duration) error {
	close(r.done)
	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(deadline):
		r.log.Warn().Dur("deadline", deadline).Msg("shutdown deadline reached, outstanding records dropped")
	}

	r.samplesCSV.Flush()
	errFlush := r.samplesBuf.Flush()
	err1 := r.samplesFile.Close()
	err2 := r.anomFile.Close()
	if errFlush != nil {
		return errFlush
	}
	if err1 != nil {
		return err1
	}
	return err2
}

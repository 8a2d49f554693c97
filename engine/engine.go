// Package engine implements the anomaly-detection core: rolling storage,
// the isolation-forest detector and its retraining lifecycle, severity
// classification, and fan-out to logs and live subscribers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/viruchith/anomalyd/collector"
	"github.com/viruchith/anomalyd/config"
	"github.com/viruchith/anomalyd/model"
)

// Snapshot is the initial-state block served to a newly connected client.
type Snapshot struct {
	Samples   []model.MetricSample  `json:"samples"`
	Anomalies []model.AnomalyRecord `json:"anomalies"`
	Stats     model.Stats           `json:"stats"`
}

// Engine owns every core component and drives the sampling loop. It is an
// explicit value: construct it, run it, drop it. Nothing engine-scoped
// lives in package globals.
type Engine struct {
	cfg config.Config
	src collector.Source
	log zerolog.Logger

	store   *RollingStore
	det     *Detector
	bus     *Bus
	rec     *Recorder
	stats   *Stats
	metrics *Metrics

	mu       sync.Mutex
	lastTS   time.Time
	override model.State // error or stopped; empty while running normally
	fatalErr error
	syncFit  bool
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithSynchronousFit makes model fits run inline on the sampling loop.
// Replay uses this so identical inputs always yield identical anomaly
// flags regardless of scheduling.
func WithSynchronousFit() Option {
	return func(e *Engine) { e.syncFit = true }
}

// New wires up an engine around the given source. The configuration must
// already be validated.
func New(cfg config.Config, src collector.Source, log zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:   cfg,
		src:   src,
		log:   log.With().Str("component", "engine").Logger(),
		store: NewRollingStore(cfg.SamplesBufferSize, cfg.AnomaliesBufferSize),
		bus:   NewBus(log),
		stats: NewStats(time.Now()),
	}
	for _, o := range opts {
		o(e)
	}
	e.det = NewDetector(DetectorConfig{
		Forest: ForestConfig{
			Trees:         cfg.ForestTrees,
			SubsampleSize: cfg.ForestSubsample,
			Contamination: cfg.Contamination,
			Seed:          cfg.ForestSeed,
		},
		MinTrainingSamples: cfg.MinTrainingSamples(),
		RetrainInterval:    cfg.RetrainInterval(),
		Synchronous:        e.syncFit,
	}, log, e.broadcastState)

	rec, err := NewRecorder(cfg.SamplesLogPath, cfg.AnomaliesLogPath, cfg.PersistFailureLimit, e.bus, log, e.fatal)
	if err != nil {
		return nil, err
	}
	e.rec = rec
	e.metrics = NewMetrics(e.bus, rec)
	e.metrics.ObserveState(model.StateCold)
	return e, nil
}

// Metrics returns the Prometheus exporter for the optional /metrics server.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// State returns the externally visible engine state: error or stopped when
// set, otherwise the detector lifecycle state.
func (e *Engine) State() model.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.override != "" {
		return e.override
	}
	return e.det.State()
}

// Subscribe registers a live subscriber with the given queue capacity.
func (e *Engine) Subscribe(buffer int) *Subscription {
	return e.bus.Subscribe(buffer)
}

// Unsubscribe removes a subscriber.
func (e *Engine) Unsubscribe(s *Subscription) {
	e.bus.Unsubscribe(s)
}

// Snapshot returns the last k samples and last l anomalies plus current
// statistics. k and l are capped by the configured buffer sizes.
func (e *Engine) Snapshot(k, l int) Snapshot {
	if k > e.cfg.SamplesBufferSize {
		k = e.cfg.SamplesBufferSize
	}
	if l > e.cfg.AnomaliesBufferSize {
		l = e.cfg.AnomaliesBufferSize
	}
	st := e.stats.Snapshot(time.Now())
	st.State = e.State()
	st.SubscriberDrops = e.bus.Dropped()
	if m := e.det.Model(); m != nil {
		at := m.TrainedAt()
		st.TrainedAt = &at
		st.SamplesAtFit = m.SampleCountAtFit()
	}
	return Snapshot{
		Samples:   e.store.RecentSamples(k),
		Anomalies: e.store.RecentAnomalies(l),
		Stats:     st,
	}
}

// Run drives the sampling loop until the context is canceled, the source
// is exhausted, or a fatal failure occurs. It always performs a graceful
// shutdown (bounded by the configured deadline) before returning.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().
		Float64("contamination", e.cfg.Contamination).
		Int("min_training_samples", e.cfg.MinTrainingSamples()).
		Dur("period", e.cfg.SamplePeriod()).
		Msg("engine started")

	var runErr error
	for {
		sample, err := e.src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				// Operator shutdown.
			case errors.Is(err, collector.ErrExhausted):
				e.log.Info().Msg("source exhausted, stopping")
			default:
				runErr = fmt.Errorf("sampler failed: %w", err)
				e.fatal(runErr)
			}
			break
		}
		if fatal := e.fatalError(); fatal != nil {
			runErr = fatal
			break
		}
		e.tick(ctx, sample)
	}

	e.shutdown()
	return runErr
}

// tick runs the per-sample critical path: store, schedule training, score,
// classify, then hand persistence + broadcast to the writer queue.
func (e *Engine) tick(ctx context.Context, sample model.MetricSample) {
	e.mu.Lock()
	if !sample.Timestamp.After(e.lastTS) {
		// Monotonic timestamps are an invariant of the sample stream.
		sample.Timestamp = e.lastTS.Add(time.Nanosecond)
	}
	e.lastTS = sample.Timestamp
	e.mu.Unlock()

	e.store.AppendSample(sample)
	e.det.Observe(ctx, e.store, sample.Timestamp)

	raw, isAnomaly, scored := e.det.Score(sample)
	rec := tickRecord{sample: sample, scored: scored, raw: raw, isAnomaly: isAnomaly}

	if scored {
		record, report := Classify(sample, raw)
		e.stats.ObserveSeverity(record.Severity)
		if report {
			e.store.AppendAnomaly(record)
			e.metrics.ObserveAnomaly(record.Severity)
			rec.anomaly = &record
			e.log.Warn().
				Float64("raw_score", raw).
				Str("severity", string(record.Severity)).
				Strs("reasons", record.Reasons).
				Msg("anomaly reported")
		}
	}

	e.stats.ObserveSample(sample, scored, raw)
	e.metrics.ObserveTick(sample, scored, raw)
	e.rec.Enqueue(rec)
}

// fatal moves the engine to the error state exactly once.
func (e *Engine) fatal(err error) {
	e.mu.Lock()
	already := e.fatalErr != nil
	if !already {
		e.fatalErr = err
		e.override = model.StateError
	}
	e.mu.Unlock()
	if already {
		return
	}
	e.log.Error().Err(err).Msg("fatal failure, engine entering error state")
	e.metrics.ObserveState(model.StateError)
	e.bus.Publish(model.Event{Type: model.EventStateUpdate, State: model.StateError})
}

func (e *Engine) fatalError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatalErr
}

// broadcastState relays detector state transitions to subscribers.
func (e *Engine) broadcastState(s model.State) {
	e.mu.Lock()
	overridden := e.override != ""
	e.mu.Unlock()
	if overridden {
		return
	}
	e.metrics.ObserveState(s)
	e.bus.Publish(model.Event{Type: model.EventStateUpdate, State: s})
}

func (e *Engine) shutdown() {
	deadline := e.cfg.ShutdownTimeout()

	e.mu.Lock()
	if e.override == "" {
		e.override = model.StateStopped
	}
	final := e.override
	e.mu.Unlock()

	e.det.WaitIdle()
	e.metrics.ObserveState(final)
	e.bus.Publish(model.Event{Type: model.EventStateUpdate, State: final})
	if err := e.rec.Close(deadline); err != nil {
		e.log.Error().Err(err).Msg("closing logs")
	}
	e.bus.Close()
	e.log.Info().Str("state", string(final)).Msg("engine stopped")
}

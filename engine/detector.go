package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/viruchith/anomalyd/model"
)

// DetectorConfig controls the training lifecycle.
type DetectorConfig struct {
	Forest             ForestConfig
	MinTrainingSamples int
	RetrainInterval    time.Duration
	// RetrainWindowFactor scales the retrain window: the fit uses the most
	// recent MinTrainingSamples*factor samples, capped by buffer capacity.
	RetrainWindowFactor int
	// Synchronous runs fits inline on the observing goroutine. Replay uses
	// this so a given input always yields the same anomaly flags; live
	// sampling keeps fits off the hot path.
	Synchronous bool
}

// Detector owns the current forest and decides when to (re)train it.
//
// The forest lives behind an atomic pointer: scoring takes the pointer once
// per call and never holds a lock across the forest's own work, and a
// completed background fit swaps the pointer in one store. While a fit is
// in flight the previous forest keeps serving scores.
type Detector struct {
	cfg DetectorConfig
	log zerolog.Logger

	forest  atomic.Pointer[Forest]
	state   atomic.Value // model.State: cold -> training -> ready
	fitting atomic.Bool
	fitWG   sync.WaitGroup

	// onState is invoked (from whichever goroutine transitions) on every
	// state change; the engine uses it to broadcast state_update events.
	onState func(model.State)
}

// NewDetector creates a detector in the cold state.
func NewDetector(cfg DetectorConfig, log zerolog.Logger, onState func(model.State)) *Detector {
	if cfg.RetrainWindowFactor <= 0 {
		cfg.RetrainWindowFactor = 4
	}
	if onState == nil {
		onState = func(model.State) {}
	}
	d := &Detector{
		cfg:     cfg,
		log:     log.With().Str("component", "detector").Logger(),
		onState: onState,
	}
	d.state.Store(model.StateCold)
	return d
}

// State returns the detector lifecycle state.
func (d *Detector) State() model.State {
	return d.state.Load().(model.State)
}

// Model returns the current forest, or nil before the first successful fit.
func (d *Detector) Model() *Forest {
	return d.forest.Load()
}

func (d *Detector) setState(s model.State) {
	if d.state.Swap(s) != s {
		d.log.Info().Str("state", string(s)).Msg("detector state changed")
		d.onState(s)
	}
}

// Observe is called once per tick after the sample is stored. It schedules
// the initial fit and periodic retrains.
func (d *Detector) Observe(ctx context.Context, store *RollingStore, now time.Time) {
	if d.fitting.Load() {
		return
	}
	count := int(store.SampleCount())
	switch {
	case d.Model() == nil:
		if count >= d.cfg.MinTrainingSamples {
			d.setState(model.StateTraining)
			d.startFit(ctx, store.RecentSamples(store.Len()), now, true)
		}
	default:
		due := now.Sub(d.Model().TrainedAt()) > d.cfg.RetrainInterval
		if due && count >= d.cfg.MinTrainingSamples {
			window := d.cfg.MinTrainingSamples * d.cfg.RetrainWindowFactor
			d.startFit(ctx, store.RecentSamples(window), now, false)
		}
	}
}

// startFit launches a background fit over a snapshot of samples.
func (d *Detector) startFit(ctx context.Context, samples []model.MetricSample, now time.Time, initial bool) {
	if !d.fitting.CompareAndSwap(false, true) {
		return
	}
	d.fitWG.Add(1)
	fit := func() {
		defer d.fitWG.Done()
		defer d.fitting.Store(false)

		started := time.Now()
		forest, err := FitForest(ctx, samples, d.cfg.Forest, now)
		elapsed := time.Since(started)

		if err != nil {
			d.log.Warn().Err(err).Int("samples", len(samples)).Msg("fit failed, keeping previous model")
			if initial {
				d.setState(model.StateCold)
			}
			return
		}
		if soft := d.cfg.RetrainInterval / 2; soft > 0 && elapsed > soft {
			d.log.Warn().Dur("elapsed", elapsed).Dur("deadline", soft).Msg("fit exceeded soft deadline")
		}

		d.forest.Store(forest)
		d.setState(model.StateReady)
		d.log.Info().
			Int("samples", forest.SampleCountAtFit()).
			Dur("elapsed", elapsed).
			Time("trained_at", forest.TrainedAt()).
			Msg("model trained")
	}
	if d.cfg.Synchronous {
		fit()
		return
	}
	go fit()
}

// Score scores a sample against the current model. ok is false before the
// first successful fit; then no scoring happened.
func (d *Detector) Score(s model.MetricSample) (raw float64, isAnomaly, ok bool) {
	forest := d.forest.Load()
	if forest == nil {
		return 0, false, false
	}
	raw = forest.Score(s)
	return raw, raw < 0, true
}

// WaitIdle blocks until no fit is in flight. Used by tests and shutdown.
func (d *Detector) WaitIdle() {
	d.fitWG.Wait()
}

// Package collector provides the sampling sources that feed the engine:
// a live /proc-backed sampler and a CSV replay source.
package collector

import (
	"context"
	"errors"

	"github.com/viruchith/anomalyd/model"
)

// Source produces one MetricSample per tick. Next blocks until the next
// tick boundary (or returns immediately for replay sources) and honors
// context cancellation.
type Source interface {
	Next(ctx context.Context) (model.MetricSample, error)
}

// ErrExhausted marks the clean end of a finite source (replay reached EOF).
var ErrExhausted = errors.New("collector: source exhausted")

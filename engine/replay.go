package engine

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/viruchith/anomalyd/collector"
	"github.com/viruchith/anomalyd/config"
	"github.com/viruchith/anomalyd/model"
)

// RunReplay feeds a historical table through the full engine pipeline.
// When an output path is configured, the per-row analysis (input columns
// plus is_anomaly and raw_score) is written as the run progresses.
func RunReplay(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	src, err := collector.NewReplaySource(cfg.ReplayInputPath, cfg.SamplePeriod())
	if err != nil {
		return err
	}

	eng, err := New(cfg, src, log, WithSynchronousFit())
	if err != nil {
		return err
	}

	var out *replayWriter
	if cfg.ReplayOutputPath != "" {
		out, err = newReplayWriter(cfg.ReplayOutputPath, src, log)
		if err != nil {
			return err
		}
		// Sample events arrive in row order; a generous queue keeps the
		// writer from ever dropping rows at replay speed.
		sub := eng.Subscribe(4 * src.Len())
		out.consume(sub)
		defer out.close()
	}

	runErr := eng.Run(ctx)
	if out != nil {
		out.wait()
	}
	if runErr != nil {
		return runErr
	}
	log.Info().Int("rows", src.Len()).Msg("replay finished")
	return nil
}

// replayWriter pairs sample events with the raw input rows by order and
// writes the augmented CSV.
type replayWriter struct {
	f    *os.File
	w    *csv.Writer
	src  *collector.ReplaySource
	log  zerolog.Logger
	idx  int
	done chan struct{}
	once sync.Once
}

func newReplayWriter(path string, src *collector.ReplaySource, log zerolog.Logger) (*replayWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create replay output: %w", err)
	}
	w := csv.NewWriter(f)
	header := append(append([]string{}, src.Header()...), "is_anomaly", "raw_score")
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write replay output header: %w", err)
	}
	return &replayWriter{
		f:    f,
		w:    w,
		src:  src,
		log:  log.With().Str("component", "replay").Logger(),
		done: make(chan struct{}),
	}, nil
}

// consume drains sample events until the subscription closes.
func (rw *replayWriter) consume(sub *Subscription) {
	go func() {
		defer close(rw.done)
		for ev := range sub.Events() {
			if ev.Type != model.EventSampleUpdate || rw.idx >= rw.src.Len() {
				continue
			}
			isAnomaly := "False"
			if ev.IsAnomaly {
				isAnomaly = "True"
			}
			rawScore := ""
			if ev.RawScore != nil {
				rawScore = strconv.FormatFloat(*ev.RawScore, 'f', -1, 64)
			}
			row := append(append([]string{}, rw.src.Rows()[rw.idx]...), isAnomaly, rawScore)
			rw.idx++
			if err := rw.w.Write(row); err != nil {
				rw.log.Error().Err(err).Int("row", rw.idx-1).Msg("write replay output row")
			}
		}
	}()
}

func (rw *replayWriter) wait() {
	<-rw.done
}

func (rw *replayWriter) close() {
	rw.once.Do(func() {
		rw.w.Flush()
		rw.f.Close()
	})
}

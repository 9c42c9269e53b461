// Package trigger watches the live stream for the user's trained start
// symbol and opens a recording when it appears.
package trigger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leonardotrapani/neurotype/internal/eeg"
	"github.com/leonardotrapani/neurotype/internal/logging"
	"github.com/leonardotrapani/neurotype/internal/pipeline"
	"github.com/leonardotrapani/neurotype/internal/recording"
	"github.com/leonardotrapani/neurotype/internal/stream"
)

var ErrAlreadyRunning = errors.New("trigger already running")

type Detector interface {
	DetectStartSymbol(ctx context.Context, seg eeg.Segment) bool
}

type Recorder interface {
	Status() pipeline.Status
	Start() error
}

type Config struct {
	// WindowLength is the number of samples scored at once; normally the
	// segment length.
	WindowLength int
	// Stride is the number of new samples between evaluations.
	Stride int
	// Cooldown suppresses a second trigger right after a first.
	Cooldown time.Duration
}

type Watcher struct {
	cfg      Config
	source   recording.Source
	detector Detector
	recorder Recorder
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	ring    []eeg.Sample
	next    int
	filled  bool
	since   int
	handle  stream.Handle
	running bool
	cancel  context.CancelFunc
	windows chan []eeg.Sample
	wg      sync.WaitGroup
}

func New(cfg Config, source recording.Source, det Detector, rec Recorder) *Watcher {
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = 256
	}
	if cfg.Stride <= 0 {
		cfg.Stride = cfg.WindowLength / 4
	}
	if cfg.Stride <= 0 {
		cfg.Stride = 1
	}
	return &Watcher{
		cfg:      cfg,
		source:   source,
		detector: det,
		recorder: rec,
		log:      logging.WithComponent("trigger"),
		now:      time.Now,
	}
}

// Start attaches to the stream and evaluates windows in the background until
// ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.ring = make([]eeg.Sample, w.cfg.WindowLength)
	w.next, w.filled, w.since = 0, false, 0
	w.windows = make(chan []eeg.Sample, 1)
	w.handle = w.source.SubscribeSamples(w.onSample)

	w.wg.Add(1)
	go w.run(ctx, w.windows)

	w.log.Info().Int("window", w.cfg.WindowLength).Int("stride", w.cfg.Stride).Msg("watching for start symbol")
	return nil
}

// Stop detaches from the stream and waits for the evaluator to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.source.Unsubscribe(w.handle)
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) onSample(s eeg.Sample) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.ring[w.next] = s
	w.next = (w.next + 1) % len(w.ring)
	if w.next == 0 {
		w.filled = true
	}
	w.since++
	if !w.filled || w.since < w.cfg.Stride {
		w.mu.Unlock()
		return
	}
	w.since = 0
	window := make([]eeg.Sample, 0, len(w.ring))
	window = append(window, w.ring[w.next:]...)
	window = append(window, w.ring[:w.next]...)
	ch := w.windows
	w.mu.Unlock()

	// the evaluator is busy; the next stride brings a fresher window
	select {
	case ch <- window:
	default:
	}
}

func (w *Watcher) run(ctx context.Context, windows <-chan []eeg.Sample) {
	defer w.wg.Done()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case window := <-windows:
			if w.recorder.Status() != pipeline.Idle {
				continue
			}
			if !last.IsZero() && w.now().Sub(last) < w.cfg.Cooldown {
				continue
			}
			if !w.detector.DetectStartSymbol(ctx, eeg.NewSegment(window)) {
				continue
			}
			last = w.now()
			if err := w.recorder.Start(); err != nil {
				w.log.Warn().Err(err).Msg("start symbol detected but recording could not start")
				continue
			}
			w.log.Info().Int64("at", window[len(window)-1].Timestamp).Msg("start symbol detected, recording")
		}
	}
}

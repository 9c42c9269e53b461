// Package pipeline runs the manual acquisition flow: a get-ready countdown,
// a collection window closed by the user, then segmentation, classification
// and refinement of what was collected.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leonardotrapani/neurotype/internal/countdown"
	"github.com/leonardotrapani/neurotype/internal/eeg"
	"github.com/leonardotrapani/neurotype/internal/logging"
	"github.com/leonardotrapani/neurotype/internal/metrics"
	"github.com/leonardotrapani/neurotype/internal/segment"
	"github.com/leonardotrapani/neurotype/internal/stream"
)

type Status string

const (
	Idle          Status = "idle"
	GettingReady  Status = "getting_ready"
	Collecting    Status = "collecting"
	Processing    Status = "processing"
	DataProcessed Status = "data_processed"
)

// Owner is the name the flow holds the acquisition window under.
const Owner = "recording"

const (
	DefaultCountdown      = 2
	DefaultTick           = time.Second
	DefaultLetterPace     = 2 * time.Second
	DefaultProcessTimeout = time.Minute
)

var ErrInvalidTransition = errors.New("invalid transition")

// Failure is a processing error tagged with the step that produced it.
type Failure struct {
	Step string
	Err  error
}

func (f *Failure) Error() string { return fmt.Sprintf("%s failed: %v", f.Step, f.Err) }
func (f *Failure) Unwrap() error { return f.Err }

type Collector interface {
	Start()
	Stop() []eeg.Sample
}

type Segmenter interface {
	ProcessRecording(samples []eeg.Sample) segment.Recording
}

type Classifier interface {
	ProcessAllSegments(ctx context.Context, rec segment.Recording) (string, error)
}

type Refiner interface {
	Refine(ctx context.Context, raw string) (string, error)
}

// Window is the acquisition lock shared with the training flow.
type Window interface {
	Acquire(owner string) error
	Release(owner string)
}

type Config struct {
	// Countdown is the number of ticks before collection starts.
	Countdown int
	Tick      time.Duration
	// LetterPace paces the user through letters while collecting.
	LetterPace     time.Duration
	ProcessTimeout time.Duration
}

type Deps struct {
	Collector  Collector
	Segmenter  Segmenter
	Classifier Classifier
	Refiner    Refiner
	Window     Window
	Scheduler  countdown.Scheduler
	Metrics    *metrics.Metrics
}

// Snapshot is a copy of the recording session state.
type Snapshot struct {
	Status          Status `json:"status"`
	SessionID       string `json:"session_id,omitempty"`
	Countdown       int    `json:"countdown"`
	LettersRecorded int    `json:"letters_recorded"`
	Progress        int    `json:"progress"`
	Samples         int    `json:"samples"`
	Raw             string `json:"raw,omitempty"`
	Text            string `json:"text,omitempty"`
	Error           string `json:"error,omitempty"`
}

type Orchestrator struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	seq     atomic.Uint64
	changes *stream.Registry[Snapshot]

	mu        sync.Mutex
	snap      Snapshot
	epoch     uint64
	timer     *countdown.Countdown
	pacer     countdown.Timer
	cancel    context.CancelFunc
	startedAt time.Time

	wg sync.WaitGroup
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.Countdown < 0 {
		cfg.Countdown = 0
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.LetterPace <= 0 {
		cfg.LetterPace = DefaultLetterPace
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = DefaultProcessTimeout
	}
	if deps.Scheduler == nil {
		deps.Scheduler = countdown.RealScheduler{}
	}
	o := &Orchestrator{
		cfg:  cfg,
		deps: deps,
		log:  logging.WithComponent("pipeline"),
		snap: Snapshot{Status: Idle},
	}
	o.changes = stream.NewRegistry[Snapshot](&o.seq)
	return o
}

// Subscribe registers fn for every state change.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) stream.Handle { return o.changes.Subscribe(fn) }

func (o *Orchestrator) Unsubscribe(h stream.Handle) bool { return o.changes.Unsubscribe(h) }

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap.Status
}

// Start leaves idle for the get-ready countdown. Collection begins when the
// countdown reaches zero.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.snap.Status != Idle {
		status := o.snap.Status
		o.mu.Unlock()
		return fmt.Errorf("%w: start while %s", ErrInvalidTransition, status)
	}
	if err := o.deps.Window.Acquire(Owner); err != nil {
		o.mu.Unlock()
		return err
	}

	o.epoch++
	epoch := o.epoch
	o.snap = Snapshot{
		Status:    GettingReady,
		SessionID: uuid.NewString(),
		Countdown: o.cfg.Countdown,
	}
	o.timer = countdown.Start(o.deps.Scheduler, o.cfg.Countdown, o.cfg.Tick,
		func(n int) { o.onTick(epoch, n) },
		func() { o.onReady(epoch) },
	)
	snap := o.snap
	o.mu.Unlock()

	o.log.Info().Str("session", snap.SessionID).Int("countdown", snap.Countdown).Msg("get ready")
	o.changes.Emit(snap)
	return nil
}

func (o *Orchestrator) onTick(epoch uint64, remaining int) {
	o.mu.Lock()
	if epoch != o.epoch || o.snap.Status != GettingReady {
		o.mu.Unlock()
		return
	}
	o.snap.Countdown = remaining
	snap := o.snap
	o.mu.Unlock()
	o.changes.Emit(snap)
}

func (o *Orchestrator) onReady(epoch uint64) {
	o.mu.Lock()
	if epoch != o.epoch || o.snap.Status != GettingReady {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	o.snap.Status = Collecting
	o.snap.Countdown = 0
	o.deps.Collector.Start()
	o.pacer = o.deps.Scheduler.AfterFunc(o.cfg.LetterPace, func() { o.onLetter(epoch) })
	snap := o.snap
	o.mu.Unlock()

	o.log.Info().Str("session", snap.SessionID).Msg("collecting")
	o.changes.Emit(snap)
}

func (o *Orchestrator) onLetter(epoch uint64) {
	o.mu.Lock()
	if epoch != o.epoch || o.snap.Status != Collecting {
		o.mu.Unlock()
		return
	}
	o.snap.LettersRecorded++
	o.pacer = o.deps.Scheduler.AfterFunc(o.cfg.LetterPace, func() { o.onLetter(epoch) })
	snap := o.snap
	o.mu.Unlock()
	o.changes.Emit(snap)
}

// Stop closes the collection window and processes what was collected in the
// background.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if o.snap.Status != Collecting {
		status := o.snap.Status
		o.mu.Unlock()
		return fmt.Errorf("%w: stop while %s", ErrInvalidTransition, status)
	}
	o.stopTimersLocked()
	samples := o.deps.Collector.Stop()
	o.deps.Window.Release(Owner)

	epoch := o.epoch
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ProcessTimeout)
	o.cancel = cancel
	o.startedAt = time.Now()
	o.snap.Status = Processing
	o.snap.Progress = 10
	o.snap.Samples = len(samples)
	snap := o.snap

	o.wg.Add(1)
	o.mu.Unlock()

	o.log.Info().Str("session", snap.SessionID).Int("samples", len(samples)).Msg("processing")
	o.changes.Emit(snap)

	go o.process(ctx, cancel, epoch, samples)
	return nil
}

// Abort cancels the countdown, an open collection window, or processing in
// flight, and returns to idle. Results of aborted processing are dropped.
func (o *Orchestrator) Abort() error {
	o.mu.Lock()
	status := o.snap.Status
	switch status {
	case GettingReady:
	case Collecting:
		o.deps.Collector.Stop()
	case Processing:
		if o.cancel != nil {
			o.cancel()
			o.cancel = nil
		}
	default:
		o.mu.Unlock()
		return fmt.Errorf("%w: abort while %s", ErrInvalidTransition, status)
	}
	o.stopTimersLocked()
	o.deps.Window.Release(Owner)
	o.epoch++
	session := o.snap.SessionID
	o.snap = Snapshot{Status: Idle}
	snap := o.snap
	o.mu.Unlock()

	o.deps.Metrics.RecordPipelineRun("aborted", 0)
	o.log.Info().Str("session", session).Str("from", string(status)).Msg("aborted")
	o.changes.Emit(snap)
	return nil
}

// Reset clears a finished result or a reported error.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	switch o.snap.Status {
	case DataProcessed, Idle:
	default:
		status := o.snap.Status
		o.mu.Unlock()
		return fmt.Errorf("%w: reset while %s", ErrInvalidTransition, status)
	}
	o.epoch++
	o.snap = Snapshot{Status: Idle}
	snap := o.snap
	o.mu.Unlock()

	o.changes.Emit(snap)
	return nil
}

// Wait blocks until background processing has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close aborts whatever is in progress and waits for processing to exit.
func (o *Orchestrator) Close() {
	if err := o.Abort(); err != nil && !errors.Is(err, ErrInvalidTransition) {
		o.log.Warn().Err(err).Msg("abort on close")
	}
	o.wg.Wait()
}

func (o *Orchestrator) stopTimersLocked() {
	o.timer.Stop()
	o.timer = nil
	if o.pacer != nil {
		o.pacer.Stop()
		o.pacer = nil
	}
}

func (o *Orchestrator) process(ctx context.Context, cancel context.CancelFunc, epoch uint64, samples []eeg.Sample) {
	defer o.wg.Done()
	defer cancel()

	if !o.checkpoint(epoch, 30) {
		return
	}
	rec := o.deps.Segmenter.ProcessRecording(samples)
	used := 0
	for _, seg := range rec.Segments {
		used += seg.Len()
	}
	o.deps.Metrics.RecordSegmentation(len(rec.Segments), rec.TotalSubSegments(), len(samples)-used)
	if len(rec.Segments) == 0 {
		o.log.Warn().Int("samples", len(samples)).Msg("no complete segment collected")
	}

	if !o.checkpoint(epoch, 50) {
		return
	}
	raw, err := o.deps.Classifier.ProcessAllSegments(ctx, rec)
	if err != nil {
		o.fail(epoch, &Failure{Step: "classification", Err: err})
		return
	}

	if !o.checkpoint(epoch, 70) {
		return
	}
	text, err := o.deps.Refiner.Refine(ctx, raw)
	if err != nil {
		o.fail(epoch, &Failure{Step: "refinement", Err: err})
		return
	}

	if !o.checkpoint(epoch, 90) {
		return
	}
	o.finish(epoch, raw, text)
}

// checkpoint publishes progress. It reports false once the session has
// moved on, in which case the caller drops its work.
func (o *Orchestrator) checkpoint(epoch uint64, progress int) bool {
	o.mu.Lock()
	if epoch != o.epoch || o.snap.Status != Processing {
		o.mu.Unlock()
		o.log.Debug().Int("progress", progress).Msg("dropping stale processing result")
		return false
	}
	o.snap.Progress = progress
	snap := o.snap
	o.mu.Unlock()
	o.changes.Emit(snap)
	return true
}

func (o *Orchestrator) finish(epoch uint64, raw, text string) {
	o.mu.Lock()
	if epoch != o.epoch || o.snap.Status != Processing {
		o.mu.Unlock()
		return
	}
	o.snap.Status = DataProcessed
	o.snap.Progress = 100
	o.snap.Raw = raw
	o.snap.Text = text
	elapsed := time.Since(o.startedAt)
	snap := o.snap
	o.mu.Unlock()

	o.deps.Metrics.RecordPipelineRun("ok", elapsed.Seconds())
	o.log.Info().Str("session", snap.SessionID).Str("raw", raw).Str("text", text).Msg("data processed")
	o.changes.Emit(snap)
}

func (o *Orchestrator) fail(epoch uint64, err error) {
	o.mu.Lock()
	if epoch != o.epoch || o.snap.Status != Processing {
		o.mu.Unlock()
		o.log.Debug().Err(err).Msg("dropping stale processing error")
		return
	}
	o.epoch++
	session := o.snap.SessionID
	o.snap = Snapshot{Status: Idle, SessionID: session, Error: err.Error()}
	elapsed := time.Since(o.startedAt)
	snap := o.snap
	o.mu.Unlock()

	o.deps.Metrics.RecordPipelineRun("failed", elapsed.Seconds())
	o.log.Error().Err(err).Str("session", session).Msg("processing failed")
	o.changes.Emit(snap)
}

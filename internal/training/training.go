// Package training runs the supervised acquisition flow: every letter of the
// alphabet is prompted once, in random order, with a rest between letters,
// and the labelled windows are handed to a Trainer at the end.
package training

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leonardotrapani/neurotype/internal/countdown"
	"github.com/leonardotrapani/neurotype/internal/eeg"
	"github.com/leonardotrapani/neurotype/internal/logging"
	"github.com/leonardotrapani/neurotype/internal/metrics"
	"github.com/leonardotrapani/neurotype/internal/stream"
)

type Phase string

const (
	Initial    Phase = "initial"
	Training   Phase = "training"
	Rest       Phase = "rest"
	Processing Phase = "processing"
	Complete   Phase = "complete"
)

// Owner is the name the flow holds the acquisition window under.
const Owner = "training"

const (
	DefaultTrainingCountdown  = 10
	DefaultRestCountdown      = 3
	DefaultTick               = time.Second
	DefaultProcessingDuration = 4 * time.Second
	DefaultTrainTimeout       = 2 * time.Minute
)

var (
	ErrTrainingExhausted = errors.New("no letters left to train")
	ErrInvalidTransition = errors.New("invalid transition")
)

type Collector interface {
	Start()
	Stop() []eeg.Sample
}

type Segmenter interface {
	ToSegments(samples []eeg.Sample) []eeg.Segment
}

// Trainer builds models from windows labelled by letter.
type Trainer interface {
	Train(ctx context.Context, labelled map[rune][]eeg.Segment) error
}

type Window interface {
	Acquire(owner string) error
	Release(owner string)
}

type Config struct {
	Alphabet eeg.Alphabet
	// TrainingCountdown and RestCountdown are in ticks.
	TrainingCountdown int
	RestCountdown     int
	Tick              time.Duration
	// ProcessingDuration is the minimum time spent in processing.
	ProcessingDuration time.Duration
	TrainTimeout       time.Duration
}

type Deps struct {
	Collector Collector
	Segmenter Segmenter
	Trainer   Trainer
	Window    Window
	Scheduler countdown.Scheduler
	Metrics   *metrics.Metrics
	// Rand drives letter selection. Nil seeds from the clock.
	Rand *rand.Rand
}

// Snapshot is a copy of the training session state.
type Snapshot struct {
	Phase     Phase  `json:"phase"`
	SessionID string `json:"session_id,omitempty"`
	Letter    string `json:"letter,omitempty"`
	Countdown int    `json:"countdown"`
	Used      string `json:"used,omitempty"`
	Total     int    `json:"total"`
	Segments  int    `json:"segments"`
	Error     string `json:"error,omitempty"`
}

type Orchestrator struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	seq     atomic.Uint64
	changes *stream.Registry[Snapshot]

	mu       sync.Mutex
	phase    Phase
	session  string
	letter   rune
	count    int
	used     []rune
	labelled map[rune][]eeg.Segment
	segments int
	errMsg   string

	// epoch changes on every phase transition; timer callbacks and the
	// trainer goroutine carry the epoch they were armed in.
	epoch     uint64
	timer     *countdown.Countdown
	minTimer  countdown.Timer
	cancel    context.CancelFunc
	trainDone bool
	minDone   bool

	wg sync.WaitGroup
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.TrainingCountdown <= 0 {
		cfg.TrainingCountdown = DefaultTrainingCountdown
	}
	if cfg.RestCountdown < 0 {
		cfg.RestCountdown = 0
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.ProcessingDuration <= 0 {
		cfg.ProcessingDuration = DefaultProcessingDuration
	}
	if cfg.TrainTimeout <= 0 {
		cfg.TrainTimeout = DefaultTrainTimeout
	}
	if deps.Scheduler == nil {
		deps.Scheduler = countdown.RealScheduler{}
	}
	if deps.Rand == nil {
		now := uint64(time.Now().UnixNano())
		deps.Rand = rand.New(rand.NewPCG(now, now^0x9e3779b97f4a7c15))
	}
	o := &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		log:   logging.WithComponent("training"),
		phase: Initial,
	}
	o.changes = stream.NewRegistry[Snapshot](&o.seq)
	return o
}

func (o *Orchestrator) Subscribe(fn func(Snapshot)) stream.Handle { return o.changes.Subscribe(fn) }

func (o *Orchestrator) Unsubscribe(h stream.Handle) bool { return o.changes.Unsubscribe(h) }

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:     o.phase,
		SessionID: o.session,
		Countdown: o.count,
		Used:      string(o.used),
		Total:     o.cfg.Alphabet.Len(),
		Segments:  o.segments,
		Error:     o.errMsg,
	}
	if o.letter != 0 {
		s.Letter = string(o.letter)
	}
	return s
}

// Start begins a session from initial with the first letter.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.phase != Initial {
		phase := o.phase
		o.mu.Unlock()
		return fmt.Errorf("%w: start while %s", ErrInvalidTransition, phase)
	}
	if err := o.deps.Window.Acquire(Owner); err != nil {
		o.mu.Unlock()
		return err
	}

	o.session = uuid.NewString()
	o.used = nil
	o.labelled = make(map[rune][]eeg.Segment)
	o.segments = 0
	o.errMsg = ""

	letter, ok := o.drawLocked()
	if !ok {
		o.deps.Window.Release(Owner)
		o.epoch++
		o.errMsg = ErrTrainingExhausted.Error()
		snap := o.snapshotLocked()
		o.mu.Unlock()

		o.deps.Metrics.RecordTrainingSession("exhausted")
		o.log.Warn().Msg("training could not start: alphabet exhausted")
		o.changes.Emit(snap)
		return ErrTrainingExhausted
	}
	o.beginLetterLocked(letter)
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.log.Info().Str("session", snap.SessionID).Int("letters", snap.Total).Msg("training started")
	o.changes.Emit(snap)
	return nil
}

// drawLocked picks a letter uniformly among those not yet used.
func (o *Orchestrator) drawLocked() (rune, bool) {
	remaining := o.remainingLocked()
	if len(remaining) == 0 {
		return 0, false
	}
	letter := remaining[o.deps.Rand.IntN(len(remaining))]
	o.used = append(o.used, letter)
	return letter, true
}

func (o *Orchestrator) remainingLocked() []rune {
	used := make(map[rune]bool, len(o.used))
	for _, r := range o.used {
		used[r] = true
	}
	var remaining []rune
	for _, r := range o.cfg.Alphabet.Symbols() {
		if !used[r] {
			remaining = append(remaining, r)
		}
	}
	return remaining
}

func (o *Orchestrator) beginLetterLocked(letter rune) {
	o.epoch++
	epoch := o.epoch
	o.phase = Training
	o.letter = letter
	o.count = o.cfg.TrainingCountdown
	o.deps.Collector.Start()
	o.timer = countdown.Start(o.deps.Scheduler, o.cfg.TrainingCountdown, o.cfg.Tick,
		func(n int) { o.onTick(epoch, n) },
		func() { o.onTrainingDone(epoch) },
	)
	o.log.Debug().Str("letter", string(letter)).Int("drawn", len(o.used)).Msg("training letter")
}

func (o *Orchestrator) onTick(epoch uint64, remaining int) {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}
	o.count = remaining
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.changes.Emit(snap)
}

func (o *Orchestrator) onTrainingDone(epoch uint64) {
	o.mu.Lock()
	if epoch != o.epoch || o.phase != Training {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	samples := o.deps.Collector.Stop()
	segs := o.deps.Segmenter.ToSegments(samples)
	o.labelled[o.letter] = append(o.labelled[o.letter], segs...)
	o.segments += len(segs)
	o.log.Debug().Str("letter", string(o.letter)).Int("samples", len(samples)).Int("segments", len(segs)).Msg("letter window closed")

	if len(o.remainingLocked()) > 0 {
		o.epoch++
		restEpoch := o.epoch
		o.phase = Rest
		o.count = o.cfg.RestCountdown
		o.timer = countdown.Start(o.deps.Scheduler, o.cfg.RestCountdown, o.cfg.Tick,
			func(n int) { o.onTick(restEpoch, n) },
			func() { o.onRestDone(restEpoch) },
		)
	} else {
		o.enterProcessingLocked()
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.changes.Emit(snap)
}

func (o *Orchestrator) onRestDone(epoch uint64) {
	o.mu.Lock()
	if epoch != o.epoch || o.phase != Rest {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	if letter, ok := o.drawLocked(); ok {
		o.beginLetterLocked(letter)
	} else {
		o.enterProcessingLocked()
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.changes.Emit(snap)
}

// enterProcessingLocked hands the labelled set to the trainer. The phase
// completes once the trainer succeeds and the minimum duration has passed.
func (o *Orchestrator) enterProcessingLocked() {
	o.epoch++
	epoch := o.epoch
	o.phase = Processing
	o.letter = 0
	o.count = 0
	o.trainDone = false
	o.minDone = false
	o.deps.Window.Release(Owner)

	labelled := make(map[rune][]eeg.Segment, len(o.labelled))
	for k, v := range o.labelled {
		labelled[k] = v
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.TrainTimeout)
	o.cancel = cancel
	o.minTimer = o.deps.Scheduler.AfterFunc(o.cfg.ProcessingDuration, func() { o.onMinElapsed(epoch) })

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		err := o.deps.Trainer.Train(ctx, labelled)
		o.onTrained(epoch, err)
	}()
	o.log.Info().Str("session", o.session).Int("segments", o.segments).Msg("training models")
}

func (o *Orchestrator) onMinElapsed(epoch uint64) {
	o.mu.Lock()
	if epoch != o.epoch || o.phase != Processing {
		o.mu.Unlock()
		return
	}
	o.minTimer = nil
	o.minDone = true
	o.completeIfReadyLocked()
}

func (o *Orchestrator) onTrained(epoch uint64, err error) {
	o.mu.Lock()
	if epoch != o.epoch || o.phase != Processing {
		o.mu.Unlock()
		o.log.Debug().Err(err).Msg("dropping stale training result")
		return
	}
	if err != nil {
		o.stopTimersLocked()
		o.epoch++
		o.phase = Initial
		o.letter = 0
		o.errMsg = fmt.Sprintf("training failed: %v", err)
		snap := o.snapshotLocked()
		o.mu.Unlock()

		o.deps.Metrics.RecordTrainingSession("failed")
		o.log.Error().Err(err).Str("session", snap.SessionID).Msg("training failed")
		o.changes.Emit(snap)
		return
	}
	o.trainDone = true
	o.completeIfReadyLocked()
}

// completeIfReadyLocked moves to complete when both processing conditions
// hold. It always releases o.mu.
func (o *Orchestrator) completeIfReadyLocked() {
	if !o.trainDone || !o.minDone {
		o.mu.Unlock()
		return
	}
	o.epoch++
	o.phase = Complete
	o.cancel = nil
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.deps.Metrics.RecordTrainingSession("complete")
	o.log.Info().Str("session", snap.SessionID).Int("segments", snap.Segments).Msg("training complete")
	o.changes.Emit(snap)
}

// Abort cancels a running session and returns to initial.
func (o *Orchestrator) Abort() error {
	o.mu.Lock()
	phase := o.phase
	switch phase {
	case Training:
		o.deps.Collector.Stop()
		o.deps.Window.Release(Owner)
	case Rest:
		o.deps.Window.Release(Owner)
	case Processing:
	default:
		o.mu.Unlock()
		return fmt.Errorf("%w: abort while %s", ErrInvalidTransition, phase)
	}
	o.stopTimersLocked()
	o.resetLocked()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.deps.Metrics.RecordTrainingSession("aborted")
	o.log.Info().Str("from", string(phase)).Msg("training aborted")
	o.changes.Emit(snap)
	return nil
}

// Reset returns to initial from complete, or clears an error in initial.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.phase != Complete && o.phase != Initial {
		phase := o.phase
		o.mu.Unlock()
		return fmt.Errorf("%w: reset while %s", ErrInvalidTransition, phase)
	}
	o.resetLocked()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.changes.Emit(snap)
	return nil
}

func (o *Orchestrator) resetLocked() {
	o.epoch++
	o.phase = Initial
	o.session = ""
	o.letter = 0
	o.count = 0
	o.used = nil
	o.labelled = nil
	o.segments = 0
	o.errMsg = ""
}

func (o *Orchestrator) stopTimersLocked() {
	o.timer.Stop()
	o.timer = nil
	if o.minTimer != nil {
		o.minTimer.Stop()
		o.minTimer = nil
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// Wait blocks until a running trainer has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) Close() {
	if err := o.Abort(); err != nil && !errors.Is(err, ErrInvalidTransition) {
		o.log.Warn().Err(err).Msg("abort on close")
	}
	o.wg.Wait()
}

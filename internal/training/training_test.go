package training

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/leonardotrapani/neurotype/internal/eeg"
	"github.com/leonardotrapani/neurotype/internal/recording"
	"github.com/leonardotrapani/neurotype/internal/segment"
	"github.com/leonardotrapani/neurotype/internal/testutil"
)

type fakeTrainer struct {
	mu    sync.Mutex
	err   error
	calls int
	got   map[rune][]eeg.Segment
}

func (f *fakeTrainer) Train(_ context.Context, labelled map[rune][]eeg.Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = labelled
	return f.err
}

type fixture struct {
	o         *Orchestrator
	sched     *testutil.ManualScheduler
	src       *testutil.FakeSource
	collector *recording.Collector
	window    *recording.Window
	trainer   *fakeTrainer
}

func newFixture(t *testing.T, letters string, cfg Config) *fixture {
	t.Helper()
	if letters != "" {
		a, err := eeg.NewAlphabet(letters)
		if err != nil {
			t.Fatal(err)
		}
		cfg.Alphabet = a
	}
	seg, err := segment.New(segment.ConfigForRate(128))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		sched:   testutil.NewManualScheduler(),
		src:     testutil.NewFakeSource(),
		window:  &recording.Window{},
		trainer: &fakeTrainer{},
	}
	f.collector = recording.NewCollector(f.src)
	f.o = New(cfg, Deps{
		Collector: f.collector,
		Segmenter: seg,
		Trainer:   f.trainer,
		Window:    f.window,
		Scheduler: f.sched,
		Rand:      rand.New(rand.NewPCG(1, 2)),
	})
	t.Cleanup(f.o.Close)
	return f
}

func TestTrainingSession(t *testing.T) {
	f := newFixture(t, "ابت", Config{})

	if err := f.o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		snap := f.o.Snapshot()
		if snap.Phase != Training {
			t.Fatalf("letter %d: phase = %s, want training", i, snap.Phase)
		}
		if snap.Countdown != DefaultTrainingCountdown {
			t.Errorf("letter %d: countdown = %d", i, snap.Countdown)
		}
		if seen[snap.Letter] {
			t.Fatalf("letter %q drawn twice", snap.Letter)
		}
		seen[snap.Letter] = true
		if !f.collector.Active() {
			t.Fatal("collector should run during a training window")
		}

		f.src.EmitN(256, int64(i)*10000)
		f.sched.Advance(9 * time.Second)
		if c := f.o.Snapshot().Countdown; c != 1 {
			t.Errorf("countdown after 9 ticks = %d, want 1", c)
		}
		f.sched.Advance(time.Second)

		if i < 2 {
			snap = f.o.Snapshot()
			if snap.Phase != Rest || snap.Countdown != DefaultRestCountdown {
				t.Fatalf("after letter %d: %+v", i, snap)
			}
			if f.collector.Active() {
				t.Error("collector should be stopped during rest")
			}
			f.src.EmitN(256, 0) // ignored
			f.sched.Advance(time.Duration(DefaultRestCountdown) * time.Second)
		}
	}

	if p := f.o.Phase(); p != Processing {
		t.Fatalf("phase = %s, want processing", p)
	}
	if f.window.Owner() != "" {
		t.Error("window should be released for processing")
	}

	f.o.Wait()
	if p := f.o.Phase(); p != Processing {
		t.Fatalf("processing ended before its minimum duration: %s", p)
	}
	f.sched.Advance(DefaultProcessingDuration)

	snap := f.o.Snapshot()
	if snap.Phase != Complete {
		t.Fatalf("phase = %s, want complete (error %q)", snap.Phase, snap.Error)
	}
	if snap.Segments != 3 || len([]rune(snap.Used)) != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
	if f.trainer.calls != 1 || len(f.trainer.got) != 3 {
		t.Fatalf("trainer calls = %d, labelled = %d", f.trainer.calls, len(f.trainer.got))
	}
	for sym, segs := range f.trainer.got {
		if len(segs) != 1 {
			t.Errorf("letter %q has %d segments", sym, len(segs))
		}
	}

	if err := f.o.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Start from complete: %v", err)
	}
	if err := f.o.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if snap := f.o.Snapshot(); snap.Phase != Initial || snap.Used != "" {
		t.Errorf("after Reset: %+v", snap)
	}
}

func TestEveryLetterDrawnOnce(t *testing.T) {
	f := newFixture(t, eeg.DefaultLetters, Config{TrainingCountdown: 1, RestCountdown: 0})

	if err := f.o.Start(); err != nil {
		t.Fatal(err)
	}
	f.sched.Advance(time.Minute)
	f.o.Wait()
	f.sched.Advance(DefaultProcessingDuration)

	snap := f.o.Snapshot()
	if snap.Phase != Complete {
		t.Fatalf("phase = %s (error %q)", snap.Phase, snap.Error)
	}
	used := []rune(snap.Used)
	alphabet := eeg.DefaultAlphabet()
	if len(used) != alphabet.Len() {
		t.Fatalf("drew %d letters, want %d", len(used), alphabet.Len())
	}
	seen := map[rune]bool{}
	for _, r := range used {
		if !alphabet.Contains(r) || seen[r] {
			t.Fatalf("bad draw %q in %q", r, snap.Used)
		}
		seen[r] = true
	}
	if snap.Used == alphabet.String() {
		t.Error("letters drawn in alphabet order; expected a shuffle")
	}
}

func TestAbortCancelsTimers(t *testing.T) {
	f := newFixture(t, "ابت", Config{})

	if err := f.o.Start(); err != nil {
		t.Fatal(err)
	}
	f.sched.Advance(4 * time.Second)
	if err := f.o.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	f.sched.Advance(time.Minute)

	if p := f.o.Phase(); p != Initial {
		t.Errorf("phase = %s, want initial", p)
	}
	if f.sched.Pending() != 0 {
		t.Errorf("pending timers = %d", f.sched.Pending())
	}
	if f.collector.Active() || f.window.Owner() != "" {
		t.Error("abort left the acquisition window open")
	}
	if f.trainer.calls != 0 {
		t.Error("stale timer reached processing")
	}
}

func TestAbortDuringRest(t *testing.T) {
	f := newFixture(t, "ابت", Config{})
	if err := f.o.Start(); err != nil {
		t.Fatal(err)
	}
	f.sched.Advance(10 * time.Second)
	if p := f.o.Phase(); p != Rest {
		t.Fatalf("phase = %s", p)
	}
	if err := f.o.Abort(); err != nil {
		t.Fatal(err)
	}
	f.sched.Advance(time.Minute)
	if p := f.o.Phase(); p != Initial {
		t.Errorf("stale rest timer moved phase to %s", p)
	}
}

func TestStartExhausted(t *testing.T) {
	f := newFixture(t, "", Config{})

	err := f.o.Start()
	if !errors.Is(err, ErrTrainingExhausted) {
		t.Fatalf("expected ErrTrainingExhausted, got %v", err)
	}
	snap := f.o.Snapshot()
	if snap.Phase != Initial || snap.Error == "" {
		t.Errorf("snapshot = %+v", snap)
	}
	if f.window.Owner() != "" {
		t.Error("window held after exhausted start")
	}
	if err := f.o.Reset(); err != nil || f.o.Snapshot().Error != "" {
		t.Errorf("Reset did not clear the error: %v", err)
	}
}

func TestTrainerFailure(t *testing.T) {
	f := newFixture(t, "ب", Config{})
	f.trainer.err = errors.New("no training data")

	if err := f.o.Start(); err != nil {
		t.Fatal(err)
	}
	f.sched.Advance(10 * time.Second)
	f.o.Wait()

	snap := f.o.Snapshot()
	if snap.Phase != Initial {
		t.Fatalf("phase = %s, want initial", snap.Phase)
	}
	if snap.Error == "" {
		t.Error("error not reported")
	}
	f.sched.Advance(DefaultProcessingDuration)
	if p := f.o.Phase(); p != Initial {
		t.Errorf("minimum-duration timer fired into %s", p)
	}
}

func TestStartRefusedWhileWindowBusy(t *testing.T) {
	f := newFixture(t, "ابت", Config{})
	if err := f.window.Acquire("recording"); err != nil {
		t.Fatal(err)
	}
	if err := f.o.Start(); !errors.Is(err, recording.ErrWindowBusy) {
		t.Fatalf("expected ErrWindowBusy, got %v", err)
	}
	if p := f.o.Phase(); p != Initial {
		t.Errorf("phase = %s", p)
	}
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t, "ابت", Config{})
	if err := f.o.Abort(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Abort from initial: %v", err)
	}
	if err := f.o.Start(); err != nil {
		t.Fatal(err)
	}
	if err := f.o.Reset(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Reset during training: %v", err)
	}
}

package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leonardotrapani/neurotype/internal/recording"
	"github.com/leonardotrapani/neurotype/internal/segment"
	"github.com/leonardotrapani/neurotype/internal/testutil"
)

type fakeClassifier struct {
	mu      sync.Mutex
	text    string
	err     error
	block   chan struct{}
	entered chan struct{}
	got     []segment.Recording
}

func (f *fakeClassifier) ProcessAllSegments(ctx context.Context, rec segment.Recording) (string, error) {
	f.mu.Lock()
	f.got = append(f.got, rec)
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if block != nil {
		<-block
	}
	return f.text, f.err
}

func (f *fakeClassifier) recordings() []segment.Recording {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]segment.Recording(nil), f.got...)
}

type fakeRefiner struct {
	err error
}

func (f fakeRefiner) Refine(_ context.Context, raw string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return strings.ToLower(raw), nil
}

type fixture struct {
	o          *Orchestrator
	sched      *testutil.ManualScheduler
	src        *testutil.FakeSource
	collector  *recording.Collector
	window     *recording.Window
	classifier *fakeClassifier

	mu    sync.Mutex
	snaps []Snapshot
}

func newFixture(t *testing.T, refiner Refiner) *fixture {
	t.Helper()
	seg, err := segment.New(segment.ConfigForRate(128))
	if err != nil {
		t.Fatal(err)
	}
	if refiner == nil {
		refiner = fakeRefiner{}
	}
	f := &fixture{
		sched:      testutil.NewManualScheduler(),
		src:        testutil.NewFakeSource(),
		window:     &recording.Window{},
		classifier: &fakeClassifier{text: "HELO"},
	}
	f.collector = recording.NewCollector(f.src)
	f.o = New(Config{Countdown: DefaultCountdown}, Deps{
		Collector:  f.collector,
		Segmenter:  seg,
		Classifier: f.classifier,
		Refiner:    refiner,
		Window:     f.window,
		Scheduler:  f.sched,
	})
	f.o.Subscribe(func(s Snapshot) {
		f.mu.Lock()
		f.snaps = append(f.snaps, s)
		f.mu.Unlock()
	})
	t.Cleanup(f.o.Close)
	return f
}

func (f *fixture) progress() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, s := range f.snaps {
		if s.Status == Processing || s.Status == DataProcessed {
			out = append(out, s.Progress)
		}
	}
	return out
}

func (f *fixture) sawStatus(st Status) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.snaps {
		if s.Status == st {
			return true
		}
	}
	return false
}

// collect drives the flow from idle to collecting.
func (f *fixture) collect(t *testing.T) {
	t.Helper()
	if err := f.o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sched.Advance(2 * time.Second)
	if st := f.o.Status(); st != Collecting {
		t.Fatalf("status after countdown = %s, want collecting", st)
	}
}

func TestRecordingFlow(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := f.o.Snapshot()
	if snap.Status != GettingReady || snap.Countdown != 2 || snap.SessionID == "" {
		t.Fatalf("after Start: %+v", snap)
	}

	// samples during the countdown are not collected
	f.src.EmitN(50, 0)

	f.sched.Advance(time.Second)
	if c := f.o.Snapshot().Countdown; c != 1 {
		t.Errorf("countdown after one tick = %d, want 1", c)
	}
	f.sched.Advance(time.Second)
	if st := f.o.Status(); st != Collecting {
		t.Fatalf("status = %s, want collecting", st)
	}
	if !f.collector.Active() {
		t.Fatal("collector should be active while collecting")
	}

	f.src.EmitN(313, 1000)
	if err := f.o.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	f.o.Wait()

	snap = f.o.Snapshot()
	if snap.Status != DataProcessed {
		t.Fatalf("status = %s, want data_processed (error %q)", snap.Status, snap.Error)
	}
	if snap.Raw != "HELO" || snap.Text != "helo" {
		t.Errorf("raw/text = %q/%q", snap.Raw, snap.Text)
	}
	if snap.Samples != 313 {
		t.Errorf("samples = %d, want 313", snap.Samples)
	}

	recs := f.classifier.recordings()
	if len(recs) != 1 {
		t.Fatalf("classifier called %d times", len(recs))
	}
	if len(recs[0].Segments) != 1 || len(recs[0].SubSegments[0]) != 57 {
		t.Errorf("recording shape = %d segments, %d subs", len(recs[0].Segments), len(recs[0].SubSegments[0]))
	}

	want := []int{10, 30, 50, 70, 90, 100}
	got := f.progress()
	if len(got) != len(want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress = %v, want %v", got, want)
		}
	}

	if err := f.o.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Start from data_processed: %v", err)
	}
	if err := f.o.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if snap := f.o.Snapshot(); snap.Status != Idle || snap.Text != "" || snap.Error != "" {
		t.Errorf("after Reset: %+v", snap)
	}
}

func TestAbortDuringCountdown(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sched.Advance(time.Second)
	if err := f.o.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	f.sched.Advance(10 * time.Second)

	if st := f.o.Status(); st != Idle {
		t.Errorf("status = %s, want idle", st)
	}
	if f.collector.Active() {
		t.Error("stale countdown started the collector")
	}
	if f.sched.Pending() != 0 {
		t.Errorf("pending timers = %d", f.sched.Pending())
	}
	if f.window.Owner() != "" {
		t.Errorf("window still held by %q", f.window.Owner())
	}
}

func TestAbortWhileCollecting(t *testing.T) {
	f := newFixture(t, nil)
	f.collect(t)
	f.src.EmitN(300, 0)

	if err := f.o.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if f.collector.Active() || f.src.Listeners() != 0 {
		t.Error("collector still attached after abort")
	}
	if len(f.classifier.recordings()) != 0 {
		t.Error("aborted window was processed")
	}
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t, nil)

	for name, fn := range map[string]func() error{
		"stop":  f.o.Stop,
		"abort": f.o.Abort,
	} {
		if err := fn(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s from idle: %v", name, err)
		}
	}

	if err := f.o.Start(); err != nil {
		t.Fatal(err)
	}
	if err := f.o.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Start: %v", err)
	}
	if err := f.o.Stop(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Stop during countdown: %v", err)
	}
	if err := f.o.Reset(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Reset during countdown: %v", err)
	}
}

func TestStartRefusedWhileWindowBusy(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.window.Acquire("training"); err != nil {
		t.Fatal(err)
	}
	if err := f.o.Start(); !errors.Is(err, recording.ErrWindowBusy) {
		t.Fatalf("expected ErrWindowBusy, got %v", err)
	}
	if st := f.o.Status(); st != Idle {
		t.Errorf("status = %s", st)
	}
}

func TestProcessingFailures(t *testing.T) {
	tests := []struct {
		name     string
		classErr error
		refiner  Refiner
		step     string
	}{
		{"classification", errors.New("model missing"), nil, "classification"},
		{"refinement", nil, fakeRefiner{err: errors.New("llm down")}, "refinement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.refiner)
			f.classifier.err = tt.classErr

			f.collect(t)
			f.src.EmitN(512, 0)
			if err := f.o.Stop(); err != nil {
				t.Fatal(err)
			}
			f.o.Wait()

			snap := f.o.Snapshot()
			if snap.Status != Idle {
				t.Fatalf("status = %s, want idle", snap.Status)
			}
			if !strings.Contains(snap.Error, tt.step) {
				t.Errorf("error = %q, want step %q", snap.Error, tt.step)
			}
			if snap.Text != "" || snap.Progress != 0 {
				t.Errorf("partial progress kept: %+v", snap)
			}
			if f.sawStatus(DataProcessed) {
				t.Error("failed run reached data_processed")
			}

			if err := f.o.Reset(); err != nil {
				t.Fatalf("Reset: %v", err)
			}
			if f.o.Snapshot().Error != "" {
				t.Error("Reset did not clear the error")
			}
		})
	}
}

func TestLateResultDropped(t *testing.T) {
	f := newFixture(t, nil)
	f.classifier.block = make(chan struct{})
	f.classifier.entered = make(chan struct{})

	f.collect(t)
	f.src.EmitN(256, 0)
	if err := f.o.Stop(); err != nil {
		t.Fatal(err)
	}
	<-f.classifier.entered

	if err := f.o.Abort(); err != nil {
		t.Fatalf("Abort during processing: %v", err)
	}
	close(f.classifier.block)
	f.o.Wait()

	if st := f.o.Status(); st != Idle {
		t.Errorf("status = %s, want idle", st)
	}
	if f.sawStatus(DataProcessed) {
		t.Error("late result was applied")
	}
}

func TestLettersRecordedPacing(t *testing.T) {
	f := newFixture(t, nil)
	f.collect(t)

	f.sched.Advance(5 * time.Second)
	if n := f.o.Snapshot().LettersRecorded; n != 2 {
		t.Errorf("letters recorded = %d, want 2", n)
	}
	if err := f.o.Stop(); err != nil {
		t.Fatal(err)
	}
	f.o.Wait()
	f.sched.Advance(10 * time.Second)
	if f.sched.Pending() != 0 {
		t.Errorf("pacer still armed after stop: %d", f.sched.Pending())
	}
}

func TestFailureUnwrap(t *testing.T) {
	inner := errors.New("boom")
	var err error = &Failure{Step: "classification", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Failure should unwrap to its cause")
	}
	if err.Error() != "classification failed: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}

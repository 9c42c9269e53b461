package testutil

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leonardotrapani/neurotype/internal/countdown"
	"github.com/leonardotrapani/neurotype/internal/eeg"
	"github.com/leonardotrapani/neurotype/internal/stream"
)

// CreateTempConfigFile creates a temporary config file for testing
func CreateTempConfigFile(t *testing.T, configContent string) string {
	t.Helper()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.toml")

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}

	return configPath
}

// TestContext returns a context with timeout for testing
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Condition not met within %v", timeout)
		default:
			if condition() {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// ManualScheduler implements countdown.Scheduler on a virtual clock that only
// moves when Advance is called.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	s       *ManualScheduler
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) countdown.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d < 0 {
		d = 0
	}
	s.seq++
	t := &manualTimer{s: s, at: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that falls due in
// order. Timers scheduled by callbacks fire too if they are due before the
// target time.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDueLocked(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		next.fired = true
		s.now = next.at
		s.mu.Unlock()

		next.f()
	}
}

func (s *ManualScheduler) nextDueLocked(target time.Duration) *manualTimer {
	var due []*manualTimer
	live := s.timers[:0]
	for _, t := range s.timers {
		if t.stopped || t.fired {
			continue
		}
		live = append(live, t)
		if t.at <= target {
			due = append(due, t)
		}
	}
	s.timers = live
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	return due[0]
}

// Pending returns the number of timers still waiting to fire.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Now returns the virtual time elapsed since creation.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// FakeSource is an in-process sample stream for collectors and watchers.
type FakeSource struct {
	seq     atomic.Uint64
	samples *stream.Registry[eeg.Sample]
}

func NewFakeSource() *FakeSource {
	f := &FakeSource{}
	f.samples = stream.NewRegistry[eeg.Sample](&f.seq)
	return f
}

func (f *FakeSource) SubscribeSamples(fn func(eeg.Sample)) stream.Handle {
	return f.samples.Subscribe(fn)
}

func (f *FakeSource) Unsubscribe(h stream.Handle) bool {
	return f.samples.Unsubscribe(h)
}

// Listeners returns the number of attached sample listeners.
func (f *FakeSource) Listeners() int {
	return f.samples.Len()
}

// Emit delivers s to every listener synchronously.
func (f *FakeSource) Emit(s eeg.Sample) {
	f.samples.Emit(s)
}

// EmitN delivers n generated samples starting at timestamp start.
func (f *FakeSource) EmitN(n int, start int64) {
	for _, s := range Samples(n, 14, start) {
		f.Emit(s)
	}
}

// Samples generates n deterministic samples with the given channel count.
// Timestamps advance by 8ms, roughly one sample at 128 Hz.
func Samples(n, channels int, start int64) []eeg.Sample {
	out := make([]eeg.Sample, n)
	for i := range out {
		ch := make([]float64, channels)
		for c := range ch {
			ch[c] = math.Sin(float64(i+c) / 10)
		}
		out[i] = eeg.Sample{Timestamp: start + int64(i)*8, Channels: ch, Quality: 100}
	}
	return out
}

// ConstantSamples generates n samples whose every channel holds v.
func ConstantSamples(n, channels int, v float64) []eeg.Sample {
	out := make([]eeg.Sample, n)
	for i := range out {
		ch := make([]float64, channels)
		for c := range ch {
			ch[c] = v
		}
		out[i] = eeg.Sample{Timestamp: int64(i) * 8, Channels: ch, Quality: 100}
	}
	return out
}

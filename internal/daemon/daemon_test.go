package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leonardotrapani/neurotype/internal/bus"
	"github.com/leonardotrapani/neurotype/internal/config"
	"github.com/leonardotrapani/neurotype/internal/pipeline"
	"github.com/leonardotrapani/neurotype/internal/recording"
	"github.com/leonardotrapani/neurotype/internal/store"
	"github.com/leonardotrapani/neurotype/internal/testutil"
	"github.com/leonardotrapani/neurotype/internal/training"
)

type recordingNotifier struct {
	mu        sync.Mutex
	processed []string
	trained   []int
	errors    []string
}

func (n *recordingNotifier) Processed(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.processed = append(n.processed, text)
}

func (n *recordingNotifier) TrainingComplete(letters int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trained = append(n.trained, letters)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) counts() (processed, trained, errs int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.processed), len(n.trained), len(n.errors)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Segmentation.SegmentLength = 256
	cfg.Segmentation.SubWindowLength = 32
	cfg.Store.Backend = "memory"
	cfg.Stream.URL = "ws://127.0.0.1:1"
	cfg.Stream.DialTimeout = 200 * time.Millisecond
	cfg.Training.Alphabet = "ab"
	cfg.Training.TrainingCountdown = 1
	cfg.Training.RestCountdown = 0
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config) (*Daemon, *testutil.ManualScheduler, *recordingNotifier) {
	t.Helper()
	sched := testutil.NewManualScheduler()
	n := &recordingNotifier{}
	d, err := New(cfg, Options{Notifier: n, Store: store.NewMemory(), Scheduler: sched})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, sched, n
}

func mustOK(t *testing.T, d *Daemon, cmd string) {
	t.Helper()
	if _, err := bus.ParseResponse(d.Dispatch(cmd)); err != nil {
		t.Fatalf("%s: %v", cmd, err)
	}
}

func TestDispatchRecordingFlow(t *testing.T) {
	d, sched, n := newTestDaemon(t, testConfig())
	defer d.shutdown()

	mustOK(t, d, bus.CmdRecordStart)
	if st := d.Status().Recording.Status; st != pipeline.GettingReady {
		t.Fatalf("status = %s, want getting_ready", st)
	}

	sched.Advance(2 * time.Second)
	if st := d.Status().Recording.Status; st != pipeline.Collecting {
		t.Fatalf("status = %s, want collecting", st)
	}

	mustOK(t, d, bus.CmdRecordStop)
	d.recording.Wait()

	if st := d.Status().Recording.Status; st != pipeline.DataProcessed {
		t.Fatalf("status = %s (error %q)", st, d.Status().Recording.Error)
	}
	if p, _, _ := n.counts(); p != 1 {
		t.Errorf("processed notifications = %d, want 1", p)
	}

	resp := d.Dispatch(bus.CmdRecordStart)
	if _, err := bus.ParseResponse(resp); !errors.Is(err, bus.ErrDaemon) || !strings.Contains(resp, "invalid transition") {
		t.Errorf("start from data_processed = %q", resp)
	}
	mustOK(t, d, bus.CmdRecordReset)
	if st := d.Status().Recording.Status; st != pipeline.Idle {
		t.Errorf("status after reset = %s", st)
	}
}

func TestDispatchWindowShared(t *testing.T) {
	d, _, _ := newTestDaemon(t, testConfig())
	defer d.shutdown()

	mustOK(t, d, bus.CmdTrainStart)
	if ph := d.Status().Training.Phase; ph != training.Training {
		t.Fatalf("phase = %s", ph)
	}
	if _, err := bus.ParseResponse(d.Dispatch(bus.CmdRecordStart)); err == nil {
		t.Error("recording started while training owned the window")
	}
	mustOK(t, d, bus.CmdTrainAbort)
	mustOK(t, d, bus.CmdRecordStart)
}

func TestTrainingFailureNotifies(t *testing.T) {
	d, sched, n := newTestDaemon(t, testConfig())
	defer d.shutdown()

	mustOK(t, d, bus.CmdTrainStart)
	for i := 0; i < 5; i++ {
		sched.Advance(time.Second)
	}
	d.training.Wait()

	snap := d.Status().Training
	if snap.Phase != training.Initial || snap.Error == "" {
		t.Fatalf("training without samples should fail: %+v", snap)
	}
	if _, _, errs := n.counts(); errs != 1 {
		t.Errorf("error notifications = %d, want 1", errs)
	}
}

func TestExhaustedTrainingNotifiesOnce(t *testing.T) {
	d, sched, n := newTestDaemon(t, testConfig())
	defer d.shutdown()

	// An orchestrator with no letters cannot start a session.
	d.training.Close()
	d.training = training.New(training.Config{}, training.Deps{
		Trainer:   d.classifier,
		Window:    &recording.Window{},
		Scheduler: sched,
	})
	d.training.Subscribe(d.onTrainingChange)

	resp := d.Dispatch(bus.CmdTrainStart)
	if _, err := bus.ParseResponse(resp); !errors.Is(err, bus.ErrDaemon) || !strings.Contains(resp, training.ErrTrainingExhausted.Error()) {
		t.Fatalf("train start = %q", resp)
	}
	d.wg.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.errors) != 1 || n.errors[0] != training.ErrTrainingExhausted.Error() {
		t.Errorf("error notifications = %q, want exactly one exhausted notice", n.errors)
	}
}

func TestDispatchMisc(t *testing.T) {
	d, _, n := newTestDaemon(t, testConfig())
	defer d.shutdown()

	body, err := bus.ParseResponse(d.Dispatch(bus.CmdStatus))
	if err != nil {
		t.Fatal(err)
	}
	var st Status
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("status body %q: %v", body, err)
	}
	if st.Connected || st.StreamState != "disconnected" || st.Models.Letters || st.Trigger {
		t.Errorf("status = %+v", st)
	}

	if resp := d.Dispatch(bus.CmdVersion); resp != "STATUS proto="+bus.ProtoVer+"\n" {
		t.Errorf("version = %q", resp)
	}
	if _, err := bus.ParseResponse(d.Dispatch("teleport")); !errors.Is(err, bus.ErrDaemon) {
		t.Errorf("unknown command: %v", err)
	}

	// nothing listens on port 1
	if _, err := bus.ParseResponse(d.Dispatch(bus.CmdConnect)); err == nil {
		t.Error("connect should fail without a device service")
	}
	if _, _, errs := n.counts(); errs == 0 {
		t.Error("dial failure should be surfaced as a notification")
	}
}

func TestRunServesSocket(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	d, _, _ := newTestDaemon(t, testConfig())

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Run()
	}()

	testutil.WaitForCondition(t, func() bool {
		_, err := bus.SendCommand(bus.CmdVersion)
		return err == nil
	}, 2*time.Second)

	if err := bus.CheckExistingDaemon(); err == nil {
		t.Error("CheckExistingDaemon should see the running daemon")
	}

	body, err := bus.Call(bus.CmdStatus)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st Status
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatal(err)
	}
	if st.Recording.Status != pipeline.Idle || st.Proto != bus.ProtoVer {
		t.Errorf("status = %+v", st)
	}

	if _, err := bus.Call(bus.CmdQuit); err != nil {
		t.Fatalf("quit: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not exit within timeout")
	}
}

type fakeSink struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (s *fakeSink) Deliver(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return "fake", s.err
}

func TestProcessedTextDelivered(t *testing.T) {
	tests := []struct {
		name      string
		sinkErr   error
		text      string
		delivered int
		errs      int
	}{
		{"delivered", nil, "hello", 1, 0},
		{"delivery failure notifies", errors.New("no wtype"), "hello", 1, 1},
		{"empty text skipped", nil, "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{err: tt.sinkErr}
			n := &recordingNotifier{}
			d, err := New(testConfig(), Options{
				Notifier:  n,
				Store:     store.NewMemory(),
				Scheduler: testutil.NewManualScheduler(),
				Output:    sink,
			})
			if err != nil {
				t.Fatal(err)
			}
			defer d.shutdown()

			d.onRecordingChange(pipeline.Snapshot{Status: pipeline.DataProcessed, SessionID: "s1", Text: tt.text})
			// duplicate snapshots for one session are reported once
			d.onRecordingChange(pipeline.Snapshot{Status: pipeline.DataProcessed, SessionID: "s1", Text: tt.text})
			d.wg.Wait()

			sink.mu.Lock()
			got := len(sink.texts)
			sink.mu.Unlock()
			if got != tt.delivered {
				t.Errorf("delivered %d times, want %d", got, tt.delivered)
			}
			if _, _, errs := n.counts(); errs != tt.errs {
				t.Errorf("error notifications = %d, want %d", errs, tt.errs)
			}
		})
	}
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"

	"github.com/leonardotrapani/neurotype/internal/metrics"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg, nil)
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerRecordings != nil || p.writerTraining != nil {
				t.Error("expected nil writers when disabled")
			}
			if err := p.PublishRecording(context.Background(), RecordingResult{SessionID: "s1"}); err != nil {
				t.Errorf("log-only publish: %v", err)
			}
			if err := p.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:         true,
		Brokers:         []string{"localhost:9092"},
		TopicRecordings: "neurotype.recordings",
		TopicTraining:   "neurotype.training",
	}, nil)
	defer p.Close()

	if !p.enabled {
		t.Fatal("expected publisher to be enabled")
	}
	w, ok := p.writerRecordings.(*kafka.Writer)
	if !ok || w.Topic != "neurotype.recordings" {
		t.Errorf("recordings writer = %#v", p.writerRecordings)
	}
}

func TestPublishRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	w := &fakeWriter{}
	p := &Publisher{
		writerRecordings: w,
		topicRecordings:  "rec",
		source:           "host-a",
		enabled:          true,
		metrics:          m,
		log:              New(nil, nil).log,
	}

	err := p.PublishRecording(context.Background(), RecordingResult{SessionID: "abc", Status: "data_processed", Raw: "HELO", Text: "HELLO"})
	if err != nil {
		t.Fatalf("PublishRecording: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "abc" {
		t.Errorf("key = %q", msg.Key)
	}

	var got RecordingResult
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.Text != "HELLO" || got.Source != "host-a" || got.At.IsZero() {
		t.Errorf("payload = %+v", got)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != "recording" {
		t.Errorf("headers = %+v", msg.Headers)
	}
	if n := promtest.ToFloat64(m.EventsPublished.WithLabelValues("rec", "ok")); n != 1 {
		t.Errorf("published ok = %v", n)
	}
}

func TestPublishWriteError(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	boom := errors.New("broker down")
	p := &Publisher{
		writerTraining: &fakeWriter{err: boom},
		topicTraining:  "train",
		enabled:        true,
		metrics:        m,
		log:            New(nil, nil).log,
	}

	if err := p.PublishTraining(context.Background(), TrainingResult{SessionID: "t1", Phase: "complete"}); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if n := promtest.ToFloat64(m.EventsPublished.WithLabelValues("train", "error")); n != 1 {
		t.Errorf("published error = %v", n)
	}
}

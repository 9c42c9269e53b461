// Package events publishes recording and training outcomes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/leonardotrapani/neurotype/internal/logging"
	"github.com/leonardotrapani/neurotype/internal/metrics"
)

// RecordingResult is published when a recording reaches data_processed or
// fails.
type RecordingResult struct {
	SessionID string    `json:"sessionId"`
	Status    string    `json:"status"`
	Raw       string    `json:"raw,omitempty"`
	Text      string    `json:"text,omitempty"`
	Samples   int       `json:"samples"`
	Error     string    `json:"error,omitempty"`
	Source    string    `json:"source"`
	At        time.Time `json:"at"`
}

// TrainingResult is published when a training session completes or fails.
type TrainingResult struct {
	SessionID string    `json:"sessionId"`
	Phase     string    `json:"phase"`
	Letters   int       `json:"letters"`
	Segments  int       `json:"segments"`
	Error     string    `json:"error,omitempty"`
	Source    string    `json:"source"`
	At        time.Time `json:"at"`
}

type Config struct {
	Brokers         []string
	TopicRecordings string
	TopicTraining   string
	Source          string
	Enabled         bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes result events to one topic per flow. Without brokers it
// runs in log-only mode.
type Publisher struct {
	writerRecordings messageWriter
	writerTraining   messageWriter
	topicRecordings  string
	topicTraining    string
	source           string
	enabled          bool
	metrics          *metrics.Metrics
	log              zerolog.Logger
}

func New(cfg *Config, m *metrics.Metrics) *Publisher {
	log := logging.WithComponent("events")

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: m, log: log}
	}

	p := &Publisher{
		topicRecordings: cfg.TopicRecordings,
		topicTraining:   cfg.TopicTraining,
		source:          cfg.Source,
		metrics:         m,
		log:             log,
	}
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}
	p.writerRecordings = newWriter(cfg.TopicRecordings)
	p.writerTraining = newWriter(cfg.TopicTraining)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicRecordings", cfg.TopicRecordings).
		Str("topicTraining", cfg.TopicTraining).
		Msg("Kafka publisher initialized")
	return p
}

// PublishRecording publishes a recording outcome keyed by session.
func (p *Publisher) PublishRecording(ctx context.Context, ev RecordingResult) error {
	ev.Source = p.source
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return p.publish(ctx, p.writerRecordings, p.topicRecordings, "recording", ev.SessionID, ev)
}

// PublishTraining publishes a training outcome keyed by session.
func (p *Publisher) PublishTraining(ctx context.Context, ev TrainingResult) error {
	ev.Source = p.source
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return p.publish(ctx, p.writerTraining, p.topicTraining, "training", ev.SessionID, ev)
}

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	p.log.Debug().
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordEventPublish(topic, "logged")
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "source", Value: []byte(p.source)},
		},
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error().Err(err).Str("topic", topic).Str("key", key).Msg("Failed to write to Kafka")
		p.metrics.RecordEventPublish(topic, "error")
		return err
	}
	p.metrics.RecordEventPublish(topic, "ok")
	return nil
}

func (p *Publisher) Close() error {
	var err error
	for _, w := range []messageWriter{p.writerRecordings, p.writerTraining} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			p.log.Error().Err(e).Msg("Error closing writer")
			err = e
		}
	}
	return err
}

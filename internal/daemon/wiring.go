package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/leonardotrapani/neurotype/internal/classifier"
	"github.com/leonardotrapani/neurotype/internal/config"
	"github.com/leonardotrapani/neurotype/internal/events"
	"github.com/leonardotrapani/neurotype/internal/llm"
	"github.com/leonardotrapani/neurotype/internal/metrics"
	"github.com/leonardotrapani/neurotype/internal/output"
	"github.com/leonardotrapani/neurotype/internal/pipeline"
	"github.com/leonardotrapani/neurotype/internal/recording"
	"github.com/leonardotrapani/neurotype/internal/segment"
	"github.com/leonardotrapani/neurotype/internal/store"
	"github.com/leonardotrapani/neurotype/internal/stream"
	"github.com/leonardotrapani/neurotype/internal/training"
	"github.com/leonardotrapani/neurotype/internal/trigger"
)

const publishTimeout = 10 * time.Second

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Backend == "memory" {
		return store.Open(cfg.Store.Backend, "")
	}
	dir, err := cfg.StoreDir()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Store.Backend, dir)
}

// buildRefiner maps the llm section to a refiner. A disabled LLM refines to
// the raw sequence; an adapter that cannot be built falls back to the mock
// correction table.
func (d *Daemon) buildRefiner(cfg *config.Config, m *metrics.Metrics) *llm.Refiner {
	if !cfg.IsLLMEnabled() {
		return llm.NewRefiner(nil, cfg.LLMFailurePolicy(), m)
	}
	adapter, err := llm.NewAdapter(cfg.ToLLMConfig())
	if err != nil {
		d.log.Warn().Err(err).Str("provider", cfg.LLM.Provider).Msg("LLM adapter unavailable, using mock corrections")
		adapter = llm.MockAdapter{}
	}
	return llm.NewRefiner(adapter, cfg.LLMFailurePolicy(), m)
}

// build wires every component from cfg. It runs once, before Run.
func (d *Daemon) build(cfg *config.Config) error {
	alphabet, err := cfg.Alphabet()
	if err != nil {
		return err
	}
	seg, err := segment.New(cfg.ToSegmentConfig())
	if err != nil {
		return fmt.Errorf("segmentation: %w", err)
	}

	if d.store == nil {
		st, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open model store: %w", err)
		}
		d.store = st
	}

	d.classifier, err = classifier.New(cfg.ToClassifierConfig(alphabet), d.store, d.metrics)
	if err != nil {
		return err
	}
	if err := d.classifier.Load(d.ctx); err != nil {
		d.log.Warn().Err(err).Msg("failed to load stored models")
	}

	d.link = stream.New(cfg.ToStreamConfig(), d.metrics)
	d.link.SubscribeErrors(d.onStreamError)
	d.link.SubscribeStatus(func(connected bool) {
		d.log.Info().Bool("connected", connected).Msg("device link changed")
	})

	window := &recording.Window{}
	d.recording = pipeline.New(cfg.ToPipelineConfig(), pipeline.Deps{
		Collector:  recording.NewCollector(d.link),
		Segmenter:  seg,
		Classifier: d.classifier,
		Refiner:    d.buildRefiner(cfg, d.metrics),
		Window:     window,
		Scheduler:  d.scheduler,
		Metrics:    d.metrics,
	})
	d.training = training.New(cfg.ToTrainingConfig(alphabet), training.Deps{
		Collector: recording.NewCollector(d.link),
		Segmenter: seg,
		Trainer:   d.classifier,
		Window:    window,
		Scheduler: d.scheduler,
		Metrics:   d.metrics,
	})
	d.recording.Subscribe(d.onRecordingChange)
	d.training.Subscribe(d.onTrainingChange)

	d.trigger = trigger.New(cfg.ToTriggerConfig(), d.link, d.classifier, d.recording)
	d.events = events.New(cfg.ToEventsConfig(), d.metrics)

	if d.output == nil && cfg.Output.Enabled {
		out, err := output.New(cfg.ToOutputConfig())
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		d.output = out
	}
	return nil
}

// startTrigger arms the start-symbol watcher when it is enabled and a
// detector has been trained.
func (d *Daemon) startTrigger() {
	if !d.cfg.Trigger.Enabled || d.ctx.Err() != nil || d.trigger.Running() {
		return
	}
	if !d.classifier.HasDetector() {
		d.log.Info().Msg("trigger enabled but no start-symbol detector trained yet")
		return
	}
	if err := d.trigger.Start(d.ctx); err != nil {
		d.log.Warn().Err(err).Msg("failed to start trigger")
	}
}

func (d *Daemon) onStreamError(err error) {
	d.log.Error().Err(err).Msg("device stream error")
	d.notifier().Error(err.Error())
}

// onRecordingChange forwards terminal recording outcomes to notifications
// and the event stream.
func (d *Daemon) onRecordingChange(s pipeline.Snapshot) {
	var failed bool
	switch {
	case s.Status == pipeline.DataProcessed:
	case s.Status == pipeline.Idle && s.Error != "":
		failed = true
	default:
		return
	}
	if !d.markReported("recording", s.SessionID, string(s.Status)) {
		return
	}

	if failed {
		d.notifier().Error(s.Error)
	} else {
		d.notifier().Processed(s.Text)
		d.deliver(s.Text)
	}
	d.publish(func(ctx context.Context) error {
		return d.events.PublishRecording(ctx, events.RecordingResult{
			SessionID: s.SessionID,
			Status:    string(s.Status),
			Raw:       s.Raw,
			Text:      s.Text,
			Samples:   s.Samples,
			Error:     s.Error,
		})
	})
}

func (d *Daemon) onTrainingChange(s training.Snapshot) {
	var failed bool
	switch {
	case s.Phase == training.Complete:
	case s.Phase == training.Initial && s.Error != "":
		failed = true
	default:
		return
	}
	if !d.markReported("training", s.SessionID, string(s.Phase)) {
		return
	}

	if failed {
		d.notifier().Error(s.Error)
	} else {
		d.notifier().TrainingComplete(len([]rune(s.Used)))
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.startTrigger()
		}()
	}
	d.publish(func(ctx context.Context) error {
		return d.events.PublishTraining(ctx, events.TrainingResult{
			SessionID: s.SessionID,
			Phase:     string(s.Phase),
			Letters:   len([]rune(s.Used)),
			Segments:  s.Segments,
			Error:     s.Error,
		})
	})
}

// markReported returns false if this session outcome was already reported.
func (d *Daemon) markReported(flow, session, outcome string) bool {
	key := flow + "/" + session + "/" + outcome
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reported[flow] == key {
		return false
	}
	d.reported[flow] = key
	return true
}

// publish runs fn off the orchestrator's notification path.
func (d *Daemon) publish(fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			d.log.Warn().Err(err).Msg("failed to publish result event")
		}
	}()
}

// deliver hands processed text to the output backends, if configured.
func (d *Daemon) deliver(text string) {
	if d.output == nil || text == "" {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(d.ctx, publishTimeout)
		defer cancel()
		if _, err := d.output.Deliver(ctx, text); err != nil {
			d.log.Warn().Err(err).Msg("failed to deliver text")
			d.notifier().Error("could not type text: " + err.Error())
		}
	}()
}

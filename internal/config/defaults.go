package config

import "time"

const (
	DefaultStreamURL  = "ws://127.0.0.1:6868"
	DefaultSampleRate = 128
)

// DefaultConfig returns the configuration written on first start. Load
// decodes user files on top of it, so omitted keys keep these values.
func DefaultConfig() *Config {
	return &Config{
		Stream: StreamConfig{
			URL:         DefaultStreamURL,
			DialTimeout: 5 * time.Second,
		},
		Segmentation: SegmentationConfig{
			SampleRate: DefaultSampleRate,
			Slide:      4,
		},
		Recording: RecordingConfig{
			Countdown:      2,
			Tick:           time.Second,
			LetterPace:     2 * time.Second,
			ProcessTimeout: time.Minute,
		},
		Training: TrainingConfig{
			TrainingCountdown:  10,
			RestCountdown:      3,
			Tick:               time.Second,
			ProcessingDuration: 4 * time.Second,
			TrainTimeout:       2 * time.Minute,
		},
		Classifier: ClassifierConfig{
			Fallback:  "fail",
			Threshold: 0.7,
		},
		Store: StoreConfig{
			Backend: "badger",
		},
		LLM: LLMConfig{
			Enabled:     false,
			Provider:    "openai",
			Model:       "gpt-3.5-turbo",
			Temperature: 0.3,
			MaxTokens:   100,
			OnFailure:   "passthrough",
		},
		Trigger: TriggerConfig{
			Enabled:  false,
			Stride:   64,
			Cooldown: 5 * time.Second,
		},
		Events: EventsConfig{
			Enabled:         false,
			TopicRecordings: "neurotype.recordings",
			TopicTraining:   "neurotype.training",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
		Output: OutputConfig{
			Enabled:  false,
			Backends: []string{"wtype", "clipboard"},
			Timeout:  5 * time.Second,
		},
		Providers: make(map[string]ProviderConfig),
	}
}

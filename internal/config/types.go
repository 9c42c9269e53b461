package config

import "time"

type Config struct {
	Stream        StreamConfig              `toml:"stream"`
	Segmentation  SegmentationConfig        `toml:"segmentation"`
	Recording     RecordingConfig           `toml:"recording"`
	Training      TrainingConfig            `toml:"training"`
	Classifier    ClassifierConfig          `toml:"classifier"`
	Store         StoreConfig               `toml:"store"`
	LLM           LLMConfig                 `toml:"llm"`
	Trigger       TriggerConfig             `toml:"trigger"`
	Events        EventsConfig              `toml:"events"`
	Metrics       MetricsConfig             `toml:"metrics"`
	Logging       LoggingConfig             `toml:"logging"`
	Notifications NotificationsConfig       `toml:"notifications"`
	Output        OutputConfig              `toml:"output"`
	Providers     map[string]ProviderConfig `toml:"providers"`
	Keywords      []string                  `toml:"keywords"`
}

// ProviderConfig holds API key for a provider
type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

// StreamConfig locates the headset service and its credentials.
type StreamConfig struct {
	URL          string        `toml:"url"`
	ClientID     string        `toml:"client_id"`
	ClientSecret string        `toml:"client_secret"`
	Headset      string        `toml:"headset"`
	DialTimeout  time.Duration `toml:"dial_timeout"`
	AutoConnect  bool          `toml:"auto_connect"` // connect when the daemon starts
}

// SegmentationConfig holds the windowing constants. Zero lengths are derived
// from SampleRate.
type SegmentationConfig struct {
	SampleRate      int `toml:"sample_rate"`
	SegmentLength   int `toml:"segment_length"`
	SubWindowLength int `toml:"sub_window_length"`
	Slide           int `toml:"slide"`
}

type RecordingConfig struct {
	Countdown      int           `toml:"countdown"`
	Tick           time.Duration `toml:"tick"`
	LetterPace     time.Duration `toml:"letter_pace"`
	ProcessTimeout time.Duration `toml:"process_timeout"`
}

type TrainingConfig struct {
	Alphabet           string        `toml:"alphabet"`
	TrainingCountdown  int           `toml:"training_countdown"`
	RestCountdown      int           `toml:"rest_countdown"`
	Tick               time.Duration `toml:"tick"`
	ProcessingDuration time.Duration `toml:"processing_duration"`
	TrainTimeout       time.Duration `toml:"train_timeout"`
}

type ClassifierConfig struct {
	Fallback  string  `toml:"fallback"` // "fail", "random"
	Threshold float64 `toml:"threshold"`
}

type StoreConfig struct {
	Backend string `toml:"backend"` // "badger", "memory"
	Dir     string `toml:"dir"`     // empty = $XDG_DATA_HOME/neurotype/models
}

// LLMConfig configures the text refinement phase
type LLMConfig struct {
	Enabled      bool                  `toml:"enabled"`
	Provider     string                `toml:"provider"` // "openai", "groq", "mock"
	Model        string                `toml:"model"`
	BaseURL      string                `toml:"base_url"`
	Temperature  float32               `toml:"temperature"`
	MaxTokens    int                   `toml:"max_tokens"`
	OnFailure    string                `toml:"on_failure"` // "passthrough", "fail"
	CustomPrompt LLMCustomPromptConfig `toml:"custom_prompt"`
}

// LLMCustomPromptConfig allows custom prompts
type LLMCustomPromptConfig struct {
	Enabled bool   `toml:"enabled"`
	Prompt  string `toml:"prompt"`
}

// TriggerConfig controls start-symbol driven recording.
type TriggerConfig struct {
	Enabled  bool          `toml:"enabled"`
	Stride   int           `toml:"stride"`
	Cooldown time.Duration `toml:"cooldown"`
}

type EventsConfig struct {
	Enabled         bool     `toml:"enabled"`
	Brokers         []string `toml:"brokers"`
	TopicRecordings string   `toml:"topic_recordings"`
	TopicTraining   string   `toml:"topic_training"`
	Source          string   `toml:"source"` // empty = hostname
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, console
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}

// OutputConfig controls delivery of processed text to the desktop.
type OutputConfig struct {
	Enabled  bool          `toml:"enabled"`
	Backends []string      `toml:"backends"` // tried in order: "wtype", "ydotool", "clipboard"
	Timeout  time.Duration `toml:"timeout"`
}

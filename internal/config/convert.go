package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leonardotrapani/neurotype/internal/classifier"
	"github.com/leonardotrapani/neurotype/internal/eeg"
	"github.com/leonardotrapani/neurotype/internal/events"
	"github.com/leonardotrapani/neurotype/internal/llm"
	"github.com/leonardotrapani/neurotype/internal/logging"
	"github.com/leonardotrapani/neurotype/internal/output"
	"github.com/leonardotrapani/neurotype/internal/pipeline"
	"github.com/leonardotrapani/neurotype/internal/segment"
	"github.com/leonardotrapani/neurotype/internal/stream"
	"github.com/leonardotrapani/neurotype/internal/training"
	"github.com/leonardotrapani/neurotype/internal/trigger"
)

var envVarForProvider = map[string]string{
	"openai": "OPENAI_API_KEY",
	"groq":   "GROQ_API_KEY",
}

// resolveAPIKey prefers providers.<name>.api_key over the environment.
func (c *Config) resolveAPIKey(providerName string) string {
	if pc, ok := c.Providers[providerName]; ok && pc.APIKey != "" {
		return pc.APIKey
	}
	if envVar := envVarForProvider[providerName]; envVar != "" {
		return os.Getenv(envVar)
	}
	return ""
}

func (c *Config) ToStreamConfig() stream.Config {
	return stream.Config{
		URL:          c.Stream.URL,
		ClientID:     c.Stream.ClientID,
		ClientSecret: c.Stream.ClientSecret,
		Headset:      c.Stream.Headset,
		DialTimeout:  c.Stream.DialTimeout,
	}
}

func (c *Config) ToSegmentConfig() segment.Config {
	return segment.Config{
		SegmentLength:   c.Segmentation.SegmentLength,
		SubWindowLength: c.Segmentation.SubWindowLength,
		Slide:           c.Segmentation.Slide,
	}
}

// Alphabet returns the training alphabet, or the default letters when unset.
func (c *Config) Alphabet() (eeg.Alphabet, error) {
	if strings.TrimSpace(c.Training.Alphabet) == "" {
		return eeg.DefaultAlphabet(), nil
	}
	a, err := eeg.NewAlphabet(c.Training.Alphabet)
	if err != nil {
		return eeg.Alphabet{}, fmt.Errorf("invalid training.alphabet: %w", err)
	}
	return a, nil
}

func (c *Config) ToPipelineConfig() pipeline.Config {
	return pipeline.Config{
		Countdown:      c.Recording.Countdown,
		Tick:           c.Recording.Tick,
		LetterPace:     c.Recording.LetterPace,
		ProcessTimeout: c.Recording.ProcessTimeout,
	}
}

func (c *Config) ToTrainingConfig(alphabet eeg.Alphabet) training.Config {
	return training.Config{
		Alphabet:           alphabet,
		TrainingCountdown:  c.Training.TrainingCountdown,
		RestCountdown:      c.Training.RestCountdown,
		Tick:               c.Training.Tick,
		ProcessingDuration: c.Training.ProcessingDuration,
		TrainTimeout:       c.Training.TrainTimeout,
	}
}

func (c *Config) ToClassifierConfig(alphabet eeg.Alphabet) classifier.Config {
	return classifier.Config{
		Alphabet:     alphabet,
		Segmentation: c.ToSegmentConfig(),
		Fallback:     classifier.Fallback(c.Classifier.Fallback),
		Threshold:    c.Classifier.Threshold,
	}
}

// StoreDir returns store.dir or the default model directory.
func (c *Config) StoreDir() (string, error) {
	if c.Store.Dir != "" {
		return c.Store.Dir, nil
	}
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "models"), nil
}

// ToLLMConfig returns the LLM adapter configuration. A disabled LLM yields
// an empty provider, which the daemon maps to the identity refiner.
func (c *Config) ToLLMConfig() llm.Config {
	if !c.LLM.Enabled {
		return llm.Config{}
	}
	config := llm.Config{
		Provider:    c.LLM.Provider,
		APIKey:      c.resolveAPIKey(c.LLM.Provider),
		BaseURL:     c.LLM.BaseURL,
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		Keywords:    c.Keywords,
	}
	if c.LLM.CustomPrompt.Enabled && c.LLM.CustomPrompt.Prompt != "" {
		config.CustomPrompt = c.LLM.CustomPrompt.Prompt
	}
	return config
}

func (c *Config) LLMFailurePolicy() llm.FailurePolicy {
	return llm.FailurePolicy(c.LLM.OnFailure)
}

// IsLLMEnabled returns true if refinement is enabled and configured
func (c *Config) IsLLMEnabled() bool {
	return c.LLM.Enabled && c.LLM.Provider != ""
}

func (c *Config) ToTriggerConfig() trigger.Config {
	return trigger.Config{
		WindowLength: c.Segmentation.SegmentLength,
		Stride:       c.Trigger.Stride,
		Cooldown:     c.Trigger.Cooldown,
	}
}

func (c *Config) ToEventsConfig() *events.Config {
	source := c.Events.Source
	if source == "" {
		if host, err := os.Hostname(); err == nil {
			source = host
		}
	}
	return &events.Config{
		Brokers:         c.Events.Brokers,
		TopicRecordings: c.Events.TopicRecordings,
		TopicTraining:   c.Events.TopicTraining,
		Source:          source,
		Enabled:         c.Events.Enabled,
	}
}

func (c *Config) ToLoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
	}
}

// NotifierType returns the notification backend, "none" when disabled.
func (c *Config) NotifierType() string {
	if !c.Notifications.Enabled {
		return "none"
	}
	return c.Notifications.Type
}

func (c *Config) ToOutputConfig() output.Config {
	return output.Config{
		Backends: c.Output.Backends,
		Timeout:  c.Output.Timeout,
	}
}

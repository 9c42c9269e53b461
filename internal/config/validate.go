package config

import (
	"fmt"
	"net/url"
)

func (c *Config) Validate() error {
	// Stream
	u, err := url.Parse(c.Stream.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("invalid stream.url: %q (must be ws:// or wss://)", c.Stream.URL)
	}
	if c.Stream.DialTimeout <= 0 {
		return fmt.Errorf("invalid stream.dial_timeout: %v", c.Stream.DialTimeout)
	}

	// Segmentation
	s := c.Segmentation
	if s.SampleRate <= 0 {
		return fmt.Errorf("invalid segmentation.sample_rate: %d", s.SampleRate)
	}
	if s.SegmentLength <= 0 {
		return fmt.Errorf("invalid segmentation.segment_length: %d", s.SegmentLength)
	}
	if s.SubWindowLength <= 0 || s.SubWindowLength > s.SegmentLength {
		return fmt.Errorf("invalid segmentation.sub_window_length: %d (must be 1..%d)", s.SubWindowLength, s.SegmentLength)
	}
	if s.Slide <= 0 {
		return fmt.Errorf("invalid segmentation.slide: %d", s.Slide)
	}

	// Recording
	if c.Recording.Countdown < 0 {
		return fmt.Errorf("invalid recording.countdown: %d", c.Recording.Countdown)
	}
	if c.Recording.Tick <= 0 {
		return fmt.Errorf("invalid recording.tick: %v", c.Recording.Tick)
	}
	if c.Recording.ProcessTimeout <= 0 {
		return fmt.Errorf("invalid recording.process_timeout: %v", c.Recording.ProcessTimeout)
	}

	// Training
	if _, err := c.Alphabet(); err != nil {
		return err
	}
	if c.Training.TrainingCountdown <= 0 {
		return fmt.Errorf("invalid training.training_countdown: %d", c.Training.TrainingCountdown)
	}
	if c.Training.RestCountdown < 0 {
		return fmt.Errorf("invalid training.rest_countdown: %d", c.Training.RestCountdown)
	}
	if c.Training.Tick <= 0 {
		return fmt.Errorf("invalid training.tick: %v", c.Training.Tick)
	}

	// Classifier
	validFallbacks := map[string]bool{"fail": true, "random": true}
	if !validFallbacks[c.Classifier.Fallback] {
		return fmt.Errorf("invalid classifier.fallback: %s (must be fail or random)", c.Classifier.Fallback)
	}
	if c.Classifier.Threshold <= 0 || c.Classifier.Threshold >= 1 {
		return fmt.Errorf("invalid classifier.threshold: %v (must be between 0 and 1)", c.Classifier.Threshold)
	}

	// Store
	validBackends := map[string]bool{"badger": true, "memory": true}
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("invalid store.backend: %s (must be badger or memory)", c.Store.Backend)
	}

	if err := c.validateLLM(); err != nil {
		return err
	}

	// Trigger
	if c.Trigger.Enabled && c.Trigger.Stride <= 0 {
		return fmt.Errorf("invalid trigger.stride: %d", c.Trigger.Stride)
	}
	if c.Trigger.Cooldown < 0 {
		return fmt.Errorf("invalid trigger.cooldown: %v", c.Trigger.Cooldown)
	}

	// Events
	if c.Events.Enabled {
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("invalid events.brokers: at least one broker required when events are enabled")
		}
		if c.Events.TopicRecordings == "" || c.Events.TopicTraining == "" {
			return fmt.Errorf("invalid events topics: topic_recordings and topic_training are required")
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("invalid metrics.addr: empty")
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or console)", c.Logging.Format)
	}

	// Notifications
	if c.Notifications.Enabled {
		validTypes := map[string]bool{"desktop": true, "log": true, "none": true}
		if !validTypes[c.Notifications.Type] {
			return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
		}
	}

	// Output
	if c.Output.Enabled {
		if len(c.Output.Backends) == 0 {
			return fmt.Errorf("invalid output.backends: empty")
		}
		validBackends := map[string]bool{"wtype": true, "ydotool": true, "clipboard": true}
		for _, b := range c.Output.Backends {
			if !validBackends[b] {
				return fmt.Errorf("invalid output backend: %s (must be wtype, ydotool, or clipboard)", b)
			}
		}
		if c.Output.Timeout <= 0 {
			return fmt.Errorf("invalid output.timeout: %v", c.Output.Timeout)
		}
	}

	return nil
}

func (c *Config) validateLLM() error {
	if !c.LLM.Enabled {
		return nil
	}

	validPolicies := map[string]bool{"passthrough": true, "fail": true}
	if !validPolicies[c.LLM.OnFailure] {
		return fmt.Errorf("invalid llm.on_failure: %s (must be passthrough or fail)", c.LLM.OnFailure)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("invalid llm.temperature: %v (must be 0..2)", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("invalid llm.max_tokens: %d", c.LLM.MaxTokens)
	}

	switch c.LLM.Provider {
	case "openai":
		if c.resolveAPIKey("openai") == "" {
			return fmt.Errorf("OpenAI API key required: not found in config (providers.openai.api_key) or environment variable (OPENAI_API_KEY)")
		}
	case "groq":
		if c.resolveAPIKey("groq") == "" {
			return fmt.Errorf("Groq API key required: not found in config (providers.groq.api_key) or environment variable (GROQ_API_KEY)")
		}
	case "mock":
	default:
		return fmt.Errorf("invalid llm.provider: %s (must be openai, groq, or mock)", c.LLM.Provider)
	}
	if c.LLM.CustomPrompt.Enabled && c.LLM.CustomPrompt.Prompt == "" {
		return fmt.Errorf("invalid llm.custom_prompt: enabled but prompt is empty")
	}
	return nil
}

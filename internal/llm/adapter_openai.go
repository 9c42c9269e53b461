package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/leonardotrapani/neurotype/internal/logging"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 100
)

// OpenAIAdapter implements Adapter using OpenAI's chat completions API
type OpenAIAdapter struct {
	client       *openai.Client
	config       Config
	name         string
	defaultModel string
	log          zerolog.Logger
}

// NewOpenAIAdapter creates a new OpenAI LLM adapter
func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return newChatAdapter(clientConfig, cfg, "openai", "gpt-3.5-turbo")
}

func newChatAdapter(clientConfig openai.ClientConfig, cfg Config, name, defaultModel string) *OpenAIAdapter {
	return &OpenAIAdapter{
		client:       openai.NewClientWithConfig(clientConfig),
		config:       cfg,
		name:         name,
		defaultModel: defaultModel,
		log:          logging.WithComponent(name + "-llm-adapter"),
	}
}

func (a *OpenAIAdapter) Process(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", nil
	}

	model := a.config.Model
	if model == "" {
		model = a.defaultModel
	}
	temperature := a.config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := a.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: BuildSystemPrompt(a.config.Keywords)},
			{Role: openai.ChatMessageRoleUser, Content: BuildUserPrompt(text, a.config.CustomPrompt)},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		a.log.Error().Err(err).Dur("after", duration).Msg("API call failed")
		return "", fmt.Errorf("%s chat completion: %w", a.name, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: %w", a.name, ErrEmptyCompletion)
	}

	result := resp.Choices[0].Message.Content
	a.log.Info().Dur("took", duration).Str("raw", text).Str("refined", result).Msg("sequence refined")
	return result, nil
}

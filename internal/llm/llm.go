package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/leonardotrapani/neurotype/internal/logging"
	"github.com/leonardotrapani/neurotype/internal/metrics"
)

// Adapter interface for LLM text processing
type Adapter interface {
	Process(ctx context.Context, text string) (string, error)
}

// Config holds LLM adapter configuration
type Config struct {
	Provider     string
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float32
	MaxTokens    int
	CustomPrompt string
	Keywords     []string
}

var ErrEmptyCompletion = errors.New("llm returned no completion")

// NewAdapter creates an LLM adapter based on the provider. An empty provider
// selects the offline mock corrector.
func NewAdapter(cfg Config) (Adapter, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return NewOpenAIAdapter(cfg), nil
	case "groq":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Groq API key required")
		}
		return NewGroqAdapter(cfg), nil
	case "", "mock":
		return MockAdapter{}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// FailurePolicy decides what Refine returns when the adapter fails.
type FailurePolicy string

const (
	// PolicyPassthrough logs the failure and returns the raw sequence.
	PolicyPassthrough FailurePolicy = "passthrough"
	// PolicyFail surfaces the adapter error.
	PolicyFail FailurePolicy = "fail"
)

// Refiner turns a raw classified letter sequence into text.
type Refiner struct {
	adapter Adapter
	policy  FailurePolicy
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewRefiner wraps adapter. A nil adapter refines to the input unchanged.
func NewRefiner(adapter Adapter, policy FailurePolicy, m *metrics.Metrics) *Refiner {
	if policy == "" {
		policy = PolicyPassthrough
	}
	return &Refiner{
		adapter: adapter,
		policy:  policy,
		metrics: m,
		log:     logging.WithComponent("llm"),
	}
}

func (r *Refiner) Refine(ctx context.Context, raw string) (string, error) {
	if r.adapter == nil || strings.TrimSpace(raw) == "" {
		return raw, nil
	}

	text, err := r.adapter.Process(ctx, raw)
	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			err = ErrEmptyCompletion
		}
	}
	if err != nil {
		if r.policy == PolicyFail {
			return "", fmt.Errorf("refine: %w", err)
		}
		r.metrics.RecordRefineFallback()
		r.log.Warn().Err(err).Str("raw", raw).Msg("refinement failed, keeping raw sequence")
		return raw, nil
	}
	return text, nil
}

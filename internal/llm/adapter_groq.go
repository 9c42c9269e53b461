package llm

import "github.com/sashabaranov/go-openai"

const groqBaseURL = "https://api.groq.com/openai/v1"

// GroqAdapter uses Groq's OpenAI-compatible API
type GroqAdapter struct {
	*OpenAIAdapter
}

// NewGroqAdapter creates a new Groq LLM adapter
func NewGroqAdapter(cfg Config) *GroqAdapter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = groqBaseURL
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &GroqAdapter{newChatAdapter(clientConfig, cfg, "groq", "llama-3.3-70b-versatile")}
}

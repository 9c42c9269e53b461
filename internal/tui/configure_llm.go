package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/leonardotrapani/neurotype/internal/config"
)

// llmDefaultModels is used when switching provider with no model set.
var llmDefaultModels = map[string]string{
	"openai": "gpt-3.5-turbo",
	"groq":   "llama-3.3-70b-versatile",
	"mock":   "mock",
}

func editLLM(cfg *config.Config) error {
	enabled := cfg.LLM.Enabled
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Refine recognized letters with an LLM?").
				Description("Fixes spelling and spacing in the classifier output").
				Value(&enabled),
		),
	).WithTheme(getTheme())
	if err := form.Run(); err != nil {
		return err
	}
	if !enabled {
		cfg.LLM.Enabled = false
		return nil
	}

	provider := cfg.LLM.Provider
	if provider == "" {
		provider = "openai"
	}
	providerForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provider").
				Options(
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Groq", "groq"),
					huh.NewOption("Mock (offline)", "mock"),
				).
				Value(&provider),
		),
	).WithTheme(getTheme())
	if err := providerForm.Run(); err != nil {
		return err
	}

	model := cfg.LLM.Model
	if model == "" || provider != cfg.LLM.Provider {
		model = llmDefaultModels[provider]
	}
	apiKey := ""
	if p, ok := cfg.Providers[provider]; ok {
		apiKey = p.APIKey
	}
	temperature := strconv.FormatFloat(float64(cfg.LLM.Temperature), 'f', -1, 32)
	maxTokens := strconv.Itoa(cfg.LLM.MaxTokens)
	onFailure := cfg.LLM.OnFailure
	if onFailure == "" {
		onFailure = "passthrough"
	}

	fields := []huh.Field{
		huh.NewInput().
			Title("Model").
			Value(&model),
		huh.NewInput().
			Title("Temperature").
			Value(&temperature).
			Validate(func(s string) error {
				f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
				if err != nil || f < 0 || f > 2 {
					return fmt.Errorf("must be between 0 and 2")
				}
				return nil
			}),
		huh.NewInput().
			Title("Max tokens").
			Value(&maxTokens).
			Validate(validateNonNegativeInt),
		huh.NewSelect[string]().
			Title("When refinement fails").
			Options(
				huh.NewOption("Keep the raw letters", "passthrough"),
				huh.NewOption("Fail the recording", "fail"),
			).
			Value(&onFailure),
	}
	if provider != "mock" {
		fields = append([]huh.Field{
			huh.NewInput().
				Title(fmt.Sprintf("%s API key", provider)).
				Description("Leave empty to read it from the environment").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
		}, fields...)
	}

	detailsForm := huh.NewForm(huh.NewGroup(fields...)).WithTheme(getTheme())
	if err := detailsForm.Run(); err != nil {
		return err
	}

	if err := editCustomPrompt(cfg); err != nil {
		return err
	}

	cfg.LLM.Enabled = true
	cfg.LLM.Provider = provider
	cfg.LLM.Model = strings.TrimSpace(model)
	if f, err := strconv.ParseFloat(strings.TrimSpace(temperature), 32); err == nil {
		cfg.LLM.Temperature = float32(f)
	}
	cfg.LLM.MaxTokens = atoi(maxTokens)
	cfg.LLM.OnFailure = onFailure
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]config.ProviderConfig)
		}
		cfg.Providers[provider] = config.ProviderConfig{APIKey: apiKey}
	}
	return nil
}

func editCustomPrompt(cfg *config.Config) error {
	enable := cfg.LLM.CustomPrompt.Enabled
	text := cfg.LLM.CustomPrompt.Prompt

	desc := "Currently: none"
	if enable && text != "" {
		desc = fmt.Sprintf("Currently: %q", truncate(text, 40))
	}

	confirm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Add custom prompt?").
				Description(desc).
				Value(&enable),
		),
	).WithTheme(getTheme())
	if err := confirm.Run(); err != nil {
		return err
	}
	if !enable {
		cfg.LLM.CustomPrompt.Enabled = false
		return nil
	}

	promptForm := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Custom Prompt").
				Description("Additional instructions (e.g., 'Write in lowercase')").
				Value(&text).
				CharLimit(500),
		),
	).WithTheme(getTheme())
	if err := promptForm.Run(); err != nil {
		return err
	}

	cfg.LLM.CustomPrompt.Enabled = strings.TrimSpace(text) != ""
	cfg.LLM.CustomPrompt.Prompt = strings.TrimSpace(text)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

package tui

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/leonardotrapani/neurotype/internal/config"
)

func formatDeviceLabel(cfg *config.Config) string {
	return fmt.Sprintf("Device (%s)", cfg.Stream.URL)
}

func formatTrainingLabel(cfg *config.Config) string {
	letters := len([]rune(cfg.Training.Alphabet))
	if letters == 0 {
		return "Training & Classifier (default alphabet)"
	}
	return fmt.Sprintf("Training & Classifier (%d letters)", letters)
}

func formatLLMLabel(cfg *config.Config) string {
	if !cfg.LLM.Enabled {
		return "Text Refinement (disabled)"
	}
	return fmt.Sprintf("Text Refinement (%s/%s)", cfg.LLM.Provider, cfg.LLM.Model)
}

func formatKeywordsLabel(cfg *config.Config) string {
	if len(cfg.Keywords) == 0 {
		return "Keywords"
	}
	return fmt.Sprintf("Keywords (%d)", len(cfg.Keywords))
}

func formatIntegrationsLabel(cfg *config.Config) string {
	var on []string
	if cfg.Trigger.Enabled {
		on = append(on, "trigger")
	}
	if cfg.Output.Enabled {
		on = append(on, "typing")
	}
	if cfg.Events.Enabled {
		on = append(on, "kafka")
	}
	if cfg.Metrics.Enabled {
		on = append(on, "metrics")
	}
	if len(on) == 0 {
		return "Integrations"
	}
	return fmt.Sprintf("Integrations (%s)", strings.Join(on, ", "))
}

func formatNotificationsLabel(cfg *config.Config) string {
	if !cfg.Notifications.Enabled {
		return "Notifications (disabled)"
	}
	return fmt.Sprintf("Notifications (%s)", cfg.Notifications.Type)
}

// splitList parses a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive whole number")
	}
	return nil
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("must be zero or a positive whole number")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d < 0 {
		return fmt.Errorf("must be a duration like 5s or 1m")
	}
	return nil
}

func validateProbability(s string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 || f >= 1 {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

func validateStreamURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("must be a ws:// or wss:// URL")
	}
	return nil
}

// atoi is only called on validated input.
func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func inputKeywords(current []string) ([]string, error) {
	value := strings.Join(current, ", ")
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Keywords").
				Description("Comma separated words the refiner should prefer").
				Value(&value),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return current, err
	}
	return splitList(value), nil
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))

	fmt.Printf("  %s %s\n", StyleLabel.Render("Device:"), cfg.Stream.URL)
	alphabet := cfg.Training.Alphabet
	if alphabet == "" {
		alphabet = "default"
	}
	fmt.Printf("  %s %s (fallback %s, threshold %.2f)\n", StyleLabel.Render("Alphabet:"), alphabet, cfg.Classifier.Fallback, cfg.Classifier.Threshold)

	if cfg.LLM.Enabled {
		fmt.Printf("  %s %s (%s, on failure %s)\n", StyleLabel.Render("LLM:"), cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.OnFailure)
	} else {
		fmt.Printf("  %s disabled\n", StyleLabel.Render("LLM:"))
	}
	if len(cfg.Keywords) > 0 {
		fmt.Printf("  %s %s\n", StyleLabel.Render("Keywords:"), strings.Join(cfg.Keywords, ", "))
	}
	fmt.Printf("  %s %s\n", StyleLabel.Render("Integrations:"), strings.TrimPrefix(formatIntegrationsLabel(cfg), "Integrations"))
	fmt.Printf("  %s %s\n", StyleLabel.Render("Notifications:"), strings.TrimPrefix(formatNotificationsLabel(cfg), "Notifications "))
	fmt.Println()

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}

	return confirmed, nil
}

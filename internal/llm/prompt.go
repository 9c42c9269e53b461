package llm

import (
	"fmt"
	"strings"
)

// BuildSystemPrompt generates the system prompt for sequence correction
func BuildSystemPrompt(keywords []string) string {
	prompt := "You are an assistant that corrects and completes text sequences derived from EEG brain signals.\n\n"
	prompt += "Rules:\n"
	prompt += "- The input is a sequence of predicted letters and may contain errors due to signal noise\n"
	prompt += "- Correct the errors and complete the sequence into a coherent sentence\n"
	prompt += "- Keep the same language and script as the input\n"
	prompt += "- Output ONLY the corrected text, nothing else\n"
	prompt += "- If the input cannot be interpreted, return it as-is\n"

	if len(keywords) > 0 {
		prompt += fmt.Sprintf("\nLikely words (prefer these spellings): %s\n", strings.Join(keywords, ", "))
	}

	return prompt
}

// BuildUserPrompt generates the user prompt with the sequence to correct
func BuildUserPrompt(raw string, customPrompt string) string {
	if customPrompt != "" {
		return fmt.Sprintf("%s\n\nLetters:\n%s", customPrompt, raw)
	}
	return fmt.Sprintf("Correct and complete this letter sequence: %q", raw)
}

package llm

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MockAdapter corrects sequences offline with a fixed substitution table. It
// is used when no provider is configured.
type MockAdapter struct{}

var corrections = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`(?i)HELO`), "HELLO"},
	{regexp.MustCompile(`(?i)WRLD`), "WORLD"},
	{regexp.MustCompile(`(?i)TH`), "THE"},
	{regexp.MustCompile(`(?i)Y`), "YES"},
	{regexp.MustCompile(`(?i)N`), "NO"},
	{regexp.MustCompile(`(?i)HLP`), "HELP"},
	{regexp.MustCompile(`(?i)PLZ`), "PLEASE"},
	{regexp.MustCompile(`(?i)THX`), "THANK YOU"},
}

var completions = map[string]string{
	"H": "HELLO",
	"Y": "YES",
	"N": "NO",
	"T": "THE",
	"I": "I NEED HELP",
	"A": "ATTENTION",
}

func (MockAdapter) Process(_ context.Context, text string) (string, error) {
	out := text
	for _, c := range corrections {
		out = c.pattern.ReplaceAllLiteralString(out, c.repl)
	}
	if utf8.RuneCountInString(out) < 3 {
		if full, ok := completions[strings.ToUpper(out)]; ok {
			out = full
		}
	}
	return out, nil
}

package responder

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

// Template placeholders.
const (
	PlaceholderContext  = "{context}"
	PlaceholderQuestion = "{question}"
)

// DefaultTemplate is the French system prompt. It fixes the per-event
// output format, the date phrasing, forbids links and events outside the
// context, asks for clarification on vague questions, refuses off-topic
// ones, and ends every answer with the closing question.
//
//go:embed default_prompt.txt
var DefaultTemplate string

// RenderPrompt substitutes context and question into template in a single
// pass, so placeholder text inside the substituted values is left alone.
func RenderPrompt(template, context, question string) string {
	return strings.NewReplacer(
		PlaceholderContext, context,
		PlaceholderQuestion, question,
	).Replace(template)
}

// ValidateTemplate reports an error when template lacks a placeholder.
func ValidateTemplate(template string) error {
	for _, p := range []string{PlaceholderContext, PlaceholderQuestion} {
		if !strings.Contains(template, p) {
			return fmt.Errorf("responder: prompt template has no %s placeholder", p)
		}
	}
	return nil
}

// LoadTemplate reads a template file, or returns DefaultTemplate when path
// is empty.
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return DefaultTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("responder: read prompt template: %w", err)
	}
	tmpl := string(data)
	if err := ValidateTemplate(tmpl); err != nil {
		return "", fmt.Errorf("%w (%s)", err, path)
	}
	return tmpl, nil
}

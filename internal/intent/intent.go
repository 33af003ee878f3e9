// Package intent classifies a sentence into one of three request types
// using the provider's intent-classification prompt, falling back to a
// fixed multilingual keyword scan when the response carries none of the
// expected tokens.
package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/bennekrouf/semantic-api0/internal/provider"
)

// Intent is a closed three-way tag. It never travels past the RPC
// boundary as a bare string.
type Intent int

const (
	General Intent = iota
	Actionable
	Help
)

func (i Intent) String() string {
	switch i {
	case Actionable:
		return "Actionable"
	case Help:
		return "Help"
	default:
		return "General"
	}
}

// helpKeywords is a small fixed multilingual vocabulary used only when
// the LLM response contains none of the three expected tokens.
var helpKeywords = []string{
	"help", "what can i do", "what can you do", "capabilities",
	"aide", "que peux-tu faire", "qu'est-ce que tu peux faire",
	"ayuda", "que puedes hacer",
	"hilfe", "was kannst du tun", "fähigkeiten",
}

// Classify sends prompt (the intent-classification template, already
// rendered by the caller with the sentence and endpoint descriptions) to
// client, then scans the response for ACTIONABLE/HELP/GENERAL in that
// priority order. When none is found, the keyword fallback scans sentence
// to decide between Help and General.
func Classify(ctx context.Context, client provider.Client, cfg provider.ModelConfig, prompt string, sentence string) (Intent, error) {
	completion, err := client.Generate(ctx, prompt, cfg)
	if err != nil {
		return General, fmt.Errorf("intent classify: %w", err)
	}

	upper := strings.ToUpper(completion.Content)
	switch {
	case strings.Contains(upper, "ACTIONABLE"):
		return Actionable, nil
	case strings.Contains(upper, "HELP"):
		return Help, nil
	case strings.Contains(upper, "GENERAL"):
		return General, nil
	}

	return fallback(sentence), nil
}

func fallback(sentence string) Intent {
	lower := strings.ToLower(sentence)
	for _, kw := range helpKeywords {
		if strings.Contains(lower, kw) {
			return Help
		}
	}
	return General
}

// Package llm constructs langchaingo models from configuration. The
// classifier and composer share one factory so switching providers is a
// config change, not a code change.
package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewModel creates a model for the named provider. baseURL is optional
// and only honored by providers that support custom endpoints.
func NewModel(ctx context.Context, provider, apiKey, model, baseURL string) (llms.Model, error) {
	switch provider {
	case "openai":
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithToken(apiKey),
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		return openai.New(opts...)

	case "gemini", "googleai":
		return googleai.New(ctx,
			googleai.WithAPIKey(apiKey),
			googleai.WithDefaultModel(model),
		)

	case "anthropic":
		return anthropic.New(
			anthropic.WithToken(apiKey),
			anthropic.WithModel(model),
		)

	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.New(
			ollama.WithServerURL(baseURL),
			ollama.WithModel(model),
		)

	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

// Package llm sends enhancement prompts to a hosted language model and
// post-processes the returned markdown.
package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Provider names accepted by New
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// SystemPrompt frames every enhancement request
const SystemPrompt = "You are an expert content editor and SEO specialist. You enhance articles to match the quality of top-ranking content while preserving original meaning."

// Provider is an LLM backend that turns a prompt into enhanced article markdown
type Provider interface {
	Enhance(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Config contains LLM configuration for both providers
type Config struct {
	Provider string

	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	OpenAITemperature float64
	OpenAIMaxTokens   int

	AnthropicAPIKey    string
	AnthropicModel     string
	AnthropicMaxTokens int

	Timeout time.Duration
}

// DefaultConfig returns default LLM configuration
func DefaultConfig() Config {
	return Config{
		Provider:           ProviderOpenAI,
		OpenAIModel:        "gpt-4-turbo-preview",
		OpenAIBaseURL:      "https://api.openai.com/v1",
		OpenAITemperature:  0.7,
		OpenAIMaxTokens:    4000,
		AnthropicModel:     "claude-3-sonnet-20240229",
		AnthropicMaxTokens: 4000,
		Timeout:            120 * time.Second,
	}
}

// New selects the provider named in config. Anything other than
// "anthropic" selects OpenAI.
func New(config Config, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}

	var p Provider
	if strings.EqualFold(config.Provider, ProviderAnthropic) {
		p = NewAnthropic(config, logger)
	} else {
		p = NewOpenAI(config, logger)
	}

	logger.Info("using LLM provider", "provider", p.Name())
	return p
}

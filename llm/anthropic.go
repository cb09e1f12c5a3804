package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"github.com/docutag/enhancer/apperr"
)

// promptFunc performs a single blocking Anthropic request
type promptFunc func(system, user string, settings types.RequestSettings) (string, error)

// Anthropic calls the Messages API through llmkit
type Anthropic struct {
	apiKey    string
	model     string
	maxTokens int
	timeout   time.Duration
	prompt    promptFunc
	logger    *slog.Logger
}

// NewAnthropic creates an Anthropic provider, filling unset fields from DefaultConfig
func NewAnthropic(config Config, logger *slog.Logger) *Anthropic {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if config.AnthropicModel == "" {
		config.AnthropicModel = defaults.AnthropicModel
	}
	if config.AnthropicMaxTokens <= 0 {
		config.AnthropicMaxTokens = defaults.AnthropicMaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.AnthropicAPIKey == "" {
		logger.Warn("Anthropic API key not configured")
	}

	return &Anthropic{
		apiKey:    config.AnthropicAPIKey,
		model:     config.AnthropicModel,
		maxTokens: config.AnthropicMaxTokens,
		timeout:   config.Timeout,
		prompt:    llmkitPrompt(config.AnthropicAPIKey),
		logger:    logger,
	}
}

func llmkitPrompt(apiKey string) promptFunc {
	return func(system, user string, settings types.RequestSettings) (string, error) {
		response, err := anthropic.PromptWithSettings(system, user, "", apiKey, settings)
		if err != nil {
			return "", err
		}
		if len(response.Content) == 0 {
			return "", fmt.Errorf("no text content returned from Anthropic")
		}
		return response.Content[0].Text, nil
	}
}

// Name returns the provider name
func (a *Anthropic) Name() string { return "Anthropic" }

type promptResult struct {
	text string
	err  error
}

// Enhance sends prompt and returns the trimmed text of the first content block.
// llmkit calls are not cancellable, so ctx only bounds how long Enhance waits.
func (a *Anthropic) Enhance(ctx context.Context, prompt string) (string, error) {
	a.logger.Info("calling Anthropic for article enhancement", "model", a.model)

	if a.apiKey == "" {
		return "", apperr.External("llm", "Anthropic enhancement failed", fmt.Errorf("Anthropic API key not configured"))
	}

	settings := types.RequestSettings{
		Model:     a.model,
		MaxTokens: a.maxTokens,
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan promptResult, 1)
	go func() {
		text, err := a.prompt(SystemPrompt, prompt, settings)
		done <- promptResult{text: text, err: err}
	}()

	var res promptResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = promptResult{err: ctx.Err()}
	}

	if res.err == nil && strings.TrimSpace(res.text) == "" {
		res.err = fmt.Errorf("no content returned from Anthropic")
	}
	if res.err != nil {
		a.logger.Error("Anthropic API call failed", "error", res.err)
		return "", apperr.External("llm", "Anthropic enhancement failed", res.err)
	}

	content := strings.TrimSpace(res.text)
	a.logger.Info("Anthropic response received", "characters", len(content))
	return content, nil
}

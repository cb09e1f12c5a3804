package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/enhancer/apperr"
)

// OpenAI calls the chat completions endpoint
type OpenAI struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	client      *http.Client
	logger      *slog.Logger
}

// NewOpenAI creates an OpenAI provider, filling unset fields from DefaultConfig
func NewOpenAI(config Config, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if config.OpenAIModel == "" {
		config.OpenAIModel = defaults.OpenAIModel
	}
	if config.OpenAIBaseURL == "" {
		config.OpenAIBaseURL = defaults.OpenAIBaseURL
	}
	if config.OpenAIMaxTokens <= 0 {
		config.OpenAIMaxTokens = defaults.OpenAIMaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.OpenAIAPIKey == "" {
		logger.Warn("OpenAI API key not configured")
	}

	return &OpenAI{
		apiKey:      config.OpenAIAPIKey,
		model:       config.OpenAIModel,
		baseURL:     strings.TrimRight(config.OpenAIBaseURL, "/"),
		temperature: config.OpenAITemperature,
		maxTokens:   config.OpenAIMaxTokens,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Name returns the provider name
func (o *OpenAI) Name() string { return "OpenAI" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Enhance sends prompt with the fixed system message and returns the trimmed reply
func (o *OpenAI) Enhance(ctx context.Context, prompt string) (string, error) {
	o.logger.Info("calling OpenAI for article enhancement", "model", o.model)

	content, err := o.complete(ctx, prompt)
	if err != nil {
		o.logger.Error("OpenAI API call failed", "error", err)
		return "", apperr.External("llm", "OpenAI enhancement failed", err)
	}
	return content, nil
}

func (o *OpenAI) complete(ctx context.Context, prompt string) (string, error) {
	if o.apiKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	data, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("OpenAI API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no content returned from OpenAI")
	}

	content := strings.TrimSpace(result.Choices[0].Message.Content)
	o.logger.Info("OpenAI response received",
		"characters", len(content),
		"total_tokens", result.Usage.TotalTokens)

	return content, nil
}

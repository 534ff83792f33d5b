package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultSystemPrompt = "You are a QA automation engineer generating BDD test artifacts."

// Options configures the OpenAI-compatible client.
type Options struct {
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string
	// BaseURL points at an OpenAI-compatible endpoint. Empty uses the
	// library default (api.openai.com).
	BaseURL string
	Model   string
	// Timeout bounds each Generate call. Zero disables the bound.
	Timeout time.Duration
	Logger  *slog.Logger
}

// OpenAIClient implements Client against any OpenAI-compatible chat
// completion endpoint.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAIClient builds a client from Options. The API key is read from
// the configured environment variable and must be present.
func NewOpenAIClient(opts Options) (*OpenAIClient, error) {
	keyEnv := opts.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", keyEnv)
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	logger.Debug("initializing generation client", "model", model, "baseURL", opts.BaseURL)
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: opts.Timeout,
		logger:  logger,
	}, nil
}

// Generate implements Client.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	system := params.System
	if system == "" {
		system = defaultSystemPrompt
	}
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.logger.Error("generation call failed", "model", o.model, "error", err)
		return "", fmt.Errorf("generation call failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		o.logger.Warn("generation returned no choices", "model", o.model)
		return "", ErrEmptyResponse
	}
	o.logger.Debug("generation completed",
		"model", o.model,
		"finishReason", resp.Choices[0].FinishReason,
		"duration", time.Since(start))
	return resp.Choices[0].Message.Content, nil
}

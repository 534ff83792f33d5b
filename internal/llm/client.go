package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse indicates the capability returned no usable content.
var ErrEmptyResponse = errors.New("generation capability returned no content")

// GenerationParams tunes a single generation call. Nil pointer fields leave
// the backend default in place.
type GenerationParams struct {
	// System overrides the system message for this call.
	System      string   `json:"system,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Client is the generation capability: prompt in, generated text out.
// Implementations must honor context cancellation and deadlines.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

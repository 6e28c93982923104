// Package vllm completes conversations with a locally served model behind an
// OpenAI-compatible /v1/completions endpoint, such as vLLM.
package vllm

import (
	"context"
	"fmt"

	llama "github.com/gamazeps/encode-llama"
	"github.com/gamazeps/encode-llama/backend"
)

// Name is the registry name of this backend.
const Name = "vllm"

const (
	DefaultURL         = "http://localhost:8000/v1/completions"
	DefaultModel       = "microsoft/Phi-3-mini-128k-instruct"
	DefaultTemperature = 0.2
)

func init() {
	llama.RegisterBackend(Name, func(opts llama.BackendOptions) (llama.Backend, error) {
		return New(opts), nil
	})
}

// Backend implements llama.Backend against a completions endpoint.
type Backend struct {
	url         string
	model       string
	prompt      string
	temperature float64
	client      *backend.Client
}

// New creates a Backend. Empty options fall back to the defaults above.
func New(opts llama.BackendOptions) *Backend {
	b := &Backend{
		url:         opts.URL,
		model:       opts.Model,
		prompt:      opts.Prompt,
		temperature: DefaultTemperature,
		client:      backend.NewClient(Name, opts.Client, opts.Logger),
	}
	if b.url == "" {
		b.url = DefaultURL
	}
	if b.model == "" {
		b.model = DefaultModel
	}
	return b
}

// Name returns the registry name.
func (b *Backend) Name() string { return Name }

// Complete sends the system prompt followed by the conversation and returns the first choice.
func (b *Backend) Complete(ctx context.Context, conversation string, maxTokens int) (string, error) {
	if conversation == "" {
		return "", llama.ErrEmptyPrompt
	}

	prompt := b.prompt + conversation
	req := completionRequest{
		Model:       b.model,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: b.temperature,
	}

	var resp completionResponse
	return b.client.Post(ctx, b.url, nil, prompt, req, &resp, func() (string, error) {
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%w: no choices from %s", backend.ErrEmptyCompletion, Name)
		}
		return resp.Choices[0].Text, nil
	})
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Ensure Backend implements llama.Backend at compile time.
var _ llama.Backend = (*Backend)(nil)

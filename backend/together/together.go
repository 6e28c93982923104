// Package together completes conversations with the hosted Together inference API.
package together

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	llama "github.com/gamazeps/encode-llama"
	"github.com/gamazeps/encode-llama/backend"
	"github.com/rs/zerolog/log"
)

// Name is the registry name of this backend.
const Name = "together"

const (
	DefaultURL         = "https://api.together.xyz/inference"
	DefaultModel       = "meta-llama/Llama-3-8b-chat-hf"
	DefaultTemperature = 0.2
)

// ErrNoToken means the secret file holds no API key.
var ErrNoToken = errors.New("together: empty API token")

// DefaultStop are the stop sequences sent with every request.
var DefaultStop = []string{"</s>", "[/INST]"}

func init() {
	llama.RegisterBackend(Name, func(opts llama.BackendOptions) (llama.Backend, error) {
		return New(opts)
	})
}

// Backend implements llama.Backend against the Together inference endpoint.
type Backend struct {
	url    string
	model  string
	prompt string
	apiKey string
	delay  time.Duration
	client *backend.Client
}

// New creates a Backend, reading the bearer token from opts.TokenFile.
func New(opts llama.BackendOptions) (*Backend, error) {
	key, err := ReadToken(opts.TokenFile)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		url:    opts.URL,
		model:  opts.Model,
		prompt: opts.Prompt,
		apiKey: key,
		delay:  opts.Delay,
		client: backend.NewClient(Name, opts.Client, opts.Logger),
	}
	if b.url == "" {
		b.url = DefaultURL
	}
	if b.model == "" {
		b.model = DefaultModel
	}
	return b, nil
}

// ReadToken returns the first line of the secret file, trimmed.
func ReadToken(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("together: open token file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("together: read token file: %w", err)
		}
		return "", ErrNoToken
	}
	key := strings.TrimSpace(sc.Text())
	if key == "" {
		return "", ErrNoToken
	}
	return key, nil
}

// Name returns the registry name.
func (b *Backend) Name() string { return Name }

// Complete sends the system prompt followed by the conversation. After every call it waits
// for the configured delay to stay under the provider rate limit.
func (b *Backend) Complete(ctx context.Context, conversation string, maxTokens int) (string, error) {
	if conversation == "" {
		return "", llama.ErrEmptyPrompt
	}
	defer b.wait(ctx)

	prompt := b.prompt + conversation
	req := inferenceRequest{
		Model:        b.model,
		Prompt:       prompt,
		MaxTokens:    maxTokens,
		StreamTokens: false,
		Stop:         DefaultStop,
		Temperature:  DefaultTemperature,
	}
	headers := map[string]string{"Authorization": "Bearer " + b.apiKey}

	var resp inferenceResponse
	text, err := b.client.Post(ctx, b.url, headers, prompt, req, &resp, func() (string, error) {
		if len(resp.Output.Choices) == 0 {
			return "", fmt.Errorf("%w: no choices from %s", backend.ErrEmptyCompletion, Name)
		}
		return resp.Output.Choices[0].Text, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("backend", Name).Msg("together: inference failed")
		return "", err
	}
	return text, nil
}

func (b *Backend) wait(ctx context.Context) {
	if b.delay <= 0 {
		return
	}
	t := time.NewTimer(b.delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

type inferenceRequest struct {
	Model        string   `json:"model"`
	Prompt       string   `json:"prompt"`
	MaxTokens    int      `json:"max_tokens"`
	StreamTokens bool     `json:"stream_tokens"`
	Stop         []string `json:"stop"`
	Temperature  float64  `json:"temperature"`
}

type inferenceResponse struct {
	Output struct {
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
	} `json:"output"`
}

// Ensure Backend implements llama.Backend at compile time.
var _ llama.Backend = (*Backend)(nil)

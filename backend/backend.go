// Package backend holds the HTTP plumbing shared by completion backends.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/bytedance/sonic"
	llama "github.com/gamazeps/encode-llama"
	"github.com/rs/zerolog/log"
)

// ErrEmptyCompletion means the backend answered without any choice text.
var ErrEmptyCompletion = errors.New("backend: empty completion")

// Client posts JSON completion requests and records them in an optional request log.
type Client struct {
	name   string
	http   *http.Client
	logger llama.RequestLogger
}

// NewClient creates a Client for the named backend.
func NewClient(name string, httpClient *http.Client, logger llama.RequestLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{name: name, http: httpClient, logger: logger}
}

// Post sends body to url and decodes a 200 response into out. extract pulls the completion
// text out of the decoded response for the request log. Non-200 responses wrap
// llama.ErrBackendFailed.
func (c *Client) Post(ctx context.Context, url string, headers map[string]string, prompt string, body any, out any, extract func() (string, error)) (string, error) {
	logID := c.startLog(ctx, prompt)

	text, err := c.post(ctx, url, headers, body, out, extract)
	if err != nil {
		c.finishLog(ctx, logID, "", llama.StatusFailed, classifyError(err), err.Error())
		return "", err
	}

	c.finishLog(ctx, logID, text, llama.StatusSuccess, "", "")
	return text, nil
}

func (c *Client) post(ctx context.Context, url string, headers map[string]string, body any, out any, extract func() (string, error)) (string, error) {
	jsonBody, err := sonic.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("backend: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("backend: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Backend: c.name, Code: resp.StatusCode, Body: string(respBody)}
	}

	if err := sonic.Unmarshal(respBody, out); err != nil {
		return "", fmt.Errorf("backend: parse response: %w", err)
	}
	return extract()
}

func (c *Client) startLog(ctx context.Context, prompt string) string {
	if c.logger == nil {
		return ""
	}
	entry, err := c.logger.AddRequestLog(ctx, llama.RequestLog{
		SessionID: llama.SessionIDFrom(ctx),
		Backend:   c.name,
		Prompt:    prompt,
	})
	if err != nil {
		log.Warn().Err(err).Str("backend", c.name).Msg("backend: add request log failed")
		return ""
	}
	return entry.ID
}

func (c *Client) finishLog(ctx context.Context, id, response, status, failReason, errMsg string) {
	if c.logger == nil || id == "" {
		return
	}
	if err := c.logger.UpdateRequestLog(ctx, id, response, status, failReason, errMsg); err != nil {
		log.Warn().Err(err).Str("backend", c.name).Str("log_id", id).Msg("backend: update request log failed")
	}
}

// StatusError is a non-200 answer from a backend.
type StatusError struct {
	Backend string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s: status %d: %s", llama.ErrBackendFailed, e.Backend, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return llama.ErrBackendFailed }

// classifyError categorizes an error to determine the fail reason.
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return llama.FailReasonTimeout
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return llama.FailReasonHTTPStatus
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return llama.FailReasonTimeout
		}
		return llama.FailReasonNetworkError
	}

	if errors.Is(err, context.Canceled) {
		return llama.FailReasonNetworkError
	}

	if errors.Is(err, ErrEmptyCompletion) {
		return llama.FailReasonBadResponse
	}

	return llama.FailReasonUnknownError
}

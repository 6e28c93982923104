package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	llama "github.com/gamazeps/encode-llama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogger struct {
	mu      sync.Mutex
	added   []llama.RequestLog
	updates []string
}

func (f *fakeLogger) AddRequestLog(_ context.Context, log llama.RequestLog) (*llama.RequestLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log.ID = "log-1"
	f.added = append(f.added, log)
	return &log, nil
}

func (f *fakeLogger) UpdateRequestLog(_ context.Context, id, response, status, failReason, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, id+"|"+status+"|"+failReason+"|"+response)
	return nil
}

type echoResponse struct {
	Text string `json:"text"`
}

func TestClient_PostSuccessIsLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		_, _ = w.Write([]byte(`{"text":"Assistant: hi"}`))
	}))
	defer srv.Close()

	logger := &fakeLogger{}
	c := NewClient("test", srv.Client(), logger)

	var out echoResponse
	ctx := llama.WithSessionID(context.Background(), "sess-1")
	text, err := c.Post(ctx, srv.URL, map[string]string{"X-Test": "yes"}, "prompt", map[string]string{"a": "b"}, &out, func() (string, error) {
		return out.Text, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Assistant: hi", text)

	require.Len(t, logger.added, 1)
	assert.Equal(t, "sess-1", logger.added[0].SessionID)
	assert.Equal(t, "test", logger.added[0].Backend)
	assert.Equal(t, []string{"log-1|success||Assistant: hi"}, logger.updates)
}

func TestClient_NonOKIsBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	logger := &fakeLogger{}
	c := NewClient("test", srv.Client(), logger)

	var out echoResponse
	_, err := c.Post(context.Background(), srv.URL, nil, "prompt", struct{}{}, &out, func() (string, error) {
		return out.Text, nil
	})
	require.ErrorIs(t, err, llama.ErrBackendFailed)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.Equal(t, []string{"log-1|failed|http_status|"}, logger.updates)
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, llama.FailReasonTimeout, classifyError(context.DeadlineExceeded))
	assert.Equal(t, llama.FailReasonNetworkError, classifyError(context.Canceled))
	assert.Equal(t, llama.FailReasonHTTPStatus, classifyError(&StatusError{Code: 500}))
	assert.Equal(t, llama.FailReasonBadResponse, classifyError(ErrEmptyCompletion))
	assert.Equal(t, llama.FailReasonUnknownError, classifyError(errors.New("boom")))
}

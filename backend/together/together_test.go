package together

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	llama "github.com/gamazeps/encode-llama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeToken(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "together")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req["model"])
		assert.Equal(t, false, req["stream_tokens"])
		assert.Equal(t, []any{"</s>", "[/INST]"}, req["stop"])
		assert.Equal(t, "P User: hi\n", req["prompt"])

		_, _ = w.Write([]byte(`{"output":{"choices":[{"text":"Thoughts: ok\nAssistant: {\"function\":\"exit\"}"}]}}`))
	}))
	defer srv.Close()

	b, err := New(llama.BackendOptions{
		URL:       srv.URL,
		Prompt:    "P ",
		TokenFile: writeToken(t, "secret\nignored\n"),
		Client:    srv.Client(),
	})
	require.NoError(t, err)

	got, err := b.Complete(context.Background(), "User: hi\n", 128)
	require.NoError(t, err)
	assert.Equal(t, "Thoughts: ok\nAssistant: {\"function\":\"exit\"}", got)
}

func TestComplete_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	b, err := New(llama.BackendOptions{URL: srv.URL, TokenFile: writeToken(t, "k"), Client: srv.Client()})
	require.NoError(t, err)

	_, err = b.Complete(context.Background(), "User: hi\n", 128)
	require.ErrorIs(t, err, llama.ErrBackendFailed)
}

func TestReadToken(t *testing.T) {
	_, err := ReadToken(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	_, err = ReadToken(writeToken(t, "  \n"))
	require.ErrorIs(t, err, ErrNoToken)

	key, err := ReadToken(writeToken(t, "  abc  \n"))
	require.NoError(t, err)
	assert.Equal(t, "abc", key)
}

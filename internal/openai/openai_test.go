package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
)

func TestExtractTextReturnsFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Young Adult"}}]
		}`))
	}))
	defer srv.Close()
	t.Setenv("OPENAI_API_KEY", "test-key")

	out, err := New(option.WithBaseURL(srv.URL+"/")).ExtractText(context.Background(), providers.Config{
		Model:  "gpt-4o",
		Prompt: "rate this book",
		Images: []providers.Image{{Data: []byte("img"), MIMEType: "image/png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Young Adult", out)
}

func TestExtractTextMapsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()
	t.Setenv("OPENAI_API_KEY", "bad-key")

	_, err := New(option.WithBaseURL(srv.URL+"/")).ExtractText(context.Background(), providers.Config{Model: "gpt-4o", Prompt: "x"})
	var authErr *providers.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestExtractTextRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New().ExtractText(context.Background(), providers.Config{Model: "gpt-4o", Prompt: "x"})
	var authErr *providers.AuthError
	assert.ErrorAs(t, err, &authErr)
}

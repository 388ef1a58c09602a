package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
)

type captureProvider struct {
	got  providers.Config
	text string
	err  error
}

func (c *captureProvider) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	c.got = config
	return c.text, c.err
}

func TestAnalyze(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	p := &captureProvider{text: `[{"title":"Dune"}]`}
	s := NewService(p, "openai", "gpt-4o-mini", 0.2)

	text, err := s.Analyze(context.Background(), png)
	require.NoError(t, err)
	assert.Equal(t, `[{"title":"Dune"}]`, text)

	assert.Equal(t, "gpt-4o-mini", p.got.Model)
	assert.Equal(t, 0.2, p.got.Temperature)
	assert.True(t, p.got.JSON)
	require.Len(t, p.got.Images, 1)
	assert.Equal(t, "image/png", p.got.Images[0].MIMEType)
	assert.Contains(t, p.got.Prompt, `{"books": [...]}`)
	assert.Contains(t, p.got.Prompt, `{"books": []}`)
}

func TestAnalyzeErrors(t *testing.T) {
	authErr := &providers.AuthError{Provider: "gemini", StatusCode: 401}

	tests := []struct {
		name   string
		image  []byte
		p      *captureProvider
		wantAs any
		wantIs error
	}{
		{name: "empty image", image: nil, p: &captureProvider{}},
		{name: "provider error passes through", image: []byte("x"), p: &captureProvider{err: authErr}, wantAs: new(*providers.AuthError)},
		{name: "empty response", image: []byte("x"), p: &captureProvider{}, wantIs: providers.ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.p, "gemini", "", 0).Analyze(context.Background(), tt.image)
			require.Error(t, err)
			if tt.wantAs != nil {
				assert.True(t, errors.As(err, tt.wantAs))
			}
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestDefaultModel(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OLLAMA_MODEL", "llava")
	t.Setenv("GEMINI_MODEL", "")

	assert.Equal(t, "gpt-4o", DefaultModel("openai"))
	assert.Equal(t, "llava", DefaultModel("ollama"))
	assert.Equal(t, "gemini-2.5-flash", DefaultModel("gemini"))
	assert.Equal(t, "", DefaultModel("unknown"))
	assert.Equal(t, "llava", NewService(&captureProvider{}, "ollama", "", 0).Model())
}

// Package vision asks a multimodal LLM which books appear in a photo.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
)

const shelfPrompt = `You are looking at a photo of one or more books: a shelf of spines, a stack, or a single cover.
List every book you can identify.

Respond with a JSON object and nothing else, of the form {"books": [...]}. Each element of "books" is an object with these keys:
  "title"  - the book title as printed
  "author" - the author's name, or "" if it is not visible
  "isbn"   - the ISBN if one is printed, or ""
  "genre"  - your best guess at the genre, or ""

Skip books whose title you cannot read. If no books are visible, respond with {"books": []}.`

// Service sends shelf photos to the configured provider
type Service struct {
	provider    providers.Provider
	name        string
	model       string
	temperature float64
}

// NewService creates a Service. An empty model selects the provider's default.
func NewService(provider providers.Provider, name, model string, temperature float64) *Service {
	if model == "" {
		model = DefaultModel(name)
	}
	return &Service{
		provider:    provider,
		name:        name,
		model:       model,
		temperature: temperature,
	}
}

// Model returns the model the service calls
func (s *Service) Model() string {
	return s.model
}

// Analyze returns the raw text of the model's answer for one photo
func (s *Service) Analyze(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("image is empty")
	}

	start := time.Now()
	text, err := s.provider.ExtractText(ctx, providers.Config{
		Model:       s.model,
		Temperature: s.temperature,
		Prompt:      shelfPrompt,
		Images: []providers.Image{{
			Data:     image,
			MIMEType: providers.DetectMIMEType(image),
		}},
		JSON: true,
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%s returned no text: %w", s.name, providers.ErrEmptyResponse)
	}

	slog.Info("Vision response received", "provider", s.name, "model", s.model, "length", len(text), "elapsed", time.Since(start))
	return text, nil
}

// DefaultModel returns the model used when none is configured, honoring
// the provider's own model environment variable.
func DefaultModel(provider string) string {
	switch provider {
	case "gemini":
		model := os.Getenv("GEMINI_MODEL")
		if model == "" {
			return "gemini-2.5-flash"
		}
		return model
	case "openai":
		model := os.Getenv("OPENAI_MODEL")
		if model == "" {
			return "gpt-4o"
		}
		return model
	case "ollama":
		model := os.Getenv("OLLAMA_MODEL")
		if model == "" {
			return "mistral-small3.2:24b"
		}
		return model
	default:
		return ""
	}
}

// Package classify assigns an age rating to a book using a text LLM.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
)

// Labels are the age ratings a book can receive
var Labels = []string{"Children", "Middle Grade", "Young Adult", "Adult"}

// Service classifies books through a text provider
type Service struct {
	provider providers.Provider
	model    string
}

func NewService(provider providers.Provider, model string) *Service {
	return &Service{provider: provider, model: model}
}

// Classify returns one of Labels, or models.UnknownAgeRating when the
// model's answer does not name one.
func (s *Service) Classify(ctx context.Context, title, author, description, genre string) (string, error) {
	text, err := s.provider.ExtractText(ctx, providers.Config{
		Model:  s.model,
		Prompt: buildPrompt(title, author, description, genre),
	})
	if err != nil {
		return "", fmt.Errorf("failed to classify %q: %w", title, err)
	}
	return Normalize(text), nil
}

// Normalize maps a free-form answer onto a label
func Normalize(answer string) string {
	a := strings.ToLower(answer)
	a = strings.NewReplacer("-", " ", "_", " ", "\"", "", "*", "", ".", "").Replace(a)
	a = strings.Join(strings.Fields(a), " ")

	// longest labels first so "young adult" is not read as "adult"
	switch {
	case strings.Contains(a, "middle grade"):
		return "Middle Grade"
	case strings.Contains(a, "young adult"), a == "ya":
		return "Young Adult"
	case strings.Contains(a, "children"), strings.Contains(a, "picture book"):
		return "Children"
	case strings.Contains(a, "adult"):
		return "Adult"
	}
	return models.UnknownAgeRating
}

func buildPrompt(title, author, description, genre string) string {
	var b strings.Builder
	b.WriteString("Classify the intended reader age of this book.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", title)
	if author != "" {
		fmt.Fprintf(&b, "Author: %s\n", author)
	}
	if genre != "" {
		fmt.Fprintf(&b, "Genre: %s\n", genre)
	}
	if description != "" {
		fmt.Fprintf(&b, "Description: %s\n", description)
	}
	fmt.Fprintf(&b, "\nAnswer with exactly one of: %s. Do not add anything else.", strings.Join(Labels, ", "))
	return b.String()
}

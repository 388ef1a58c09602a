package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Gemini is a provider for Google Gemini
type Gemini struct {
	opts []option.ClientOption
}

// New returns a new Gemini provider
func New(opts ...option.ClientOption) *Gemini {
	return &Gemini{opts: opts}
}

// ExtractText sends the prompt and any attached images to Gemini
func (g *Gemini) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return "", &providers.AuthError{Provider: "gemini", Message: "GEMINI_API_KEY environment variable not set"}
	}

	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(config.Model)
	model.SetTemperature(float32(config.Temperature))
	if config.JSON {
		model.ResponseMIMEType = "application/json"
	}

	parts := []genai.Part{genai.Text(config.Prompt)}
	for _, img := range config.Images {
		parts = append(parts, genai.ImageData(strings.TrimPrefix(img.MIMEType, "image/"), img.Data))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classifyError(err)
	}

	if len(resp.Candidates) == 0 {
		return "", &providers.DecodingError{What: "gemini response", Err: errors.New("no candidates returned")}
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", &providers.DecodingError{What: "gemini response", Err: providers.ErrEmptyResponse}
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", &providers.DecodingError{What: "gemini response", Err: errors.New("unexpected response format")}
	}

	return sb.String(), nil
}

func classifyError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return providers.ClassifyHTTPStatus("gemini", gerr.Code, gerr.Message)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("failed to generate content: %w", err)
}

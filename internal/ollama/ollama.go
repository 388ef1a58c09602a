package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
)

// Ollama is a provider for Ollama
type Ollama struct {
	client *http.Client
}

// New returns a new Ollama provider
func New() *Ollama {
	return &Ollama{client: &http.Client{}}
}

// ExtractText sends the prompt and any attached images to Ollama
func (o *Ollama) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	ollamaURL := os.Getenv("OLLAMA_URL")
	if ollamaURL == "" {
		ollamaURL = os.Getenv("OLLAMA_HOST")
	}
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	url := ollamaURL + "/api/generate"

	body := map[string]interface{}{
		"model":  config.Model,
		"prompt": config.Prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": config.Temperature,
		},
	}
	if len(config.Images) > 0 {
		encoded := make([]string, 0, len(config.Images))
		for _, img := range config.Images {
			encoded = append(encoded, base64.StdEncoding.EncodeToString(img.Data))
		}
		body["images"] = encoded
	}
	if config.JSON {
		body["format"] = "json"
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", providers.WrapTransport("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", providers.ClassifyHTTPStatus("ollama", resp.StatusCode, string(body))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", &providers.DecodingError{What: "ollama response", Err: err}
	}

	return response.Response, nil
}

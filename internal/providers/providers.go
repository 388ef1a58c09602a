package providers

import (
	"context"
	"net/http"
)

// Image is an image attached to a prompt
type Image struct {
	Data     []byte
	MIMEType string
}

// Config represents the configuration for an LLM provider call
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	Images      []Image
	JSON        bool // ask the provider for a JSON response when it supports it
}

// Provider defines the interface for an LLM provider
type Provider interface {
	ExtractText(ctx context.Context, config Config) (string, error)
}

// DetectMIMEType sniffs the image format, defaulting to JPEG
func DetectMIMEType(data []byte) string {
	ct := http.DetectContentType(data)
	switch ct {
	case "image/png", "image/gif", "image/webp", "image/jpeg":
		return ct
	}
	return "image/jpeg"
}

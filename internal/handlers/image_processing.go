package handlers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"
)

const (
	maxImageBytes          = 10 * 1024 * 1024
	defaultDownloadTimeout = 30 * time.Second
)

// checkImage rejects uploads that are not a decodable photo
func checkImage(data []byte) (format string, width, height int, err error) {
	if len(data) == 0 {
		return "", 0, 0, fmt.Errorf("image is empty")
	}
	if len(data) >= maxImageBytes {
		return "", 0, 0, fmt.Errorf("file too large (max 10MB)")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, fmt.Errorf("unsupported image: %w", err)
	}
	return format, cfg.Width, cfg.Height, nil
}

func (h *Handler) downloadImageFromURL(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

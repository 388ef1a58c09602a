package providers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized is auth",
			status: http.StatusUnauthorized,
			body:   "invalid api key",
			check: func(t *testing.T, err error) {
				var target *AuthError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name:   "payment required is quota",
			status: http.StatusPaymentRequired,
			check: func(t *testing.T, err error) {
				var target *QuotaExceededError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name:   "429 with quota message is quota",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"code":"insufficient_quota"}}`,
			check: func(t *testing.T, err error) {
				var target *QuotaExceededError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name:   "plain 429 is network",
			status: http.StatusTooManyRequests,
			body:   "slow down",
			check: func(t *testing.T, err error) {
				var target *NetworkError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name:   "503 is network",
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, err error) {
				var target *NetworkError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name:   "400 is untyped",
			status: http.StatusBadRequest,
			body:   "bad request",
			check: func(t *testing.T, err error) {
				var netErr *NetworkError
				var authErr *AuthError
				assert.False(t, errors.As(err, &netErr))
				assert.False(t, errors.As(err, &authErr))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ClassifyHTTPStatus("test", tt.status, tt.body))
		})
	}
}

func TestWrapTransportKeepsCancellation(t *testing.T) {
	err := WrapTransport("test", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)

	var netErr *NetworkError
	assert.False(t, errors.As(err, &netErr))
	assert.ErrorAs(t, WrapTransport("test", errors.New("dial tcp: connection refused")), &netErr)
}

func TestDetectMIMEType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	assert.Equal(t, "image/png", DetectMIMEType(png))
	assert.Equal(t, "image/jpeg", DetectMIMEType([]byte("not an image")))
}

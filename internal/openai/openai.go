package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"os"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
)

// OpenAI is a provider for OpenAI
type OpenAI struct {
	opts []option.RequestOption
}

// New returns a new OpenAI provider. Extra options are mainly for tests.
func New(opts ...option.RequestOption) *OpenAI {
	return &OpenAI{opts: opts}
}

// ExtractText sends the prompt and any attached images to the chat completions API
func (o *OpenAI) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return "", &providers.AuthError{Provider: "openai", Message: "OPENAI_API_KEY environment variable not set"}
	}

	// Retries are owned by the caller's retry policy.
	opts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, o.opts...)
	client := sdk.NewClient(opts...)

	parts := []sdk.ChatCompletionContentPartUnionParam{sdk.TextContentPart(config.Prompt)}
	for _, img := range config.Images {
		dataURL := "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
		parts = append(parts, sdk.ImageContentPart(sdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL}))
	}

	params := sdk.ChatCompletionNewParams{
		Model:       shared.ChatModel(config.Model),
		Messages:    []sdk.ChatCompletionMessageParamUnion{sdk.UserMessage(parts)},
		Temperature: sdk.Float(config.Temperature),
	}
	if config.JSON {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", mapError(err)
	}

	if len(resp.Choices) == 0 {
		return "", &providers.DecodingError{What: "openai response", Err: errors.New("no choices returned")}
	}

	return resp.Choices[0].Message.Content, nil
}

func mapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return providers.ClassifyHTTPStatus("openai", apiErr.StatusCode, apiErr.Message)
	}
	return providers.WrapTransport("openai", err)
}

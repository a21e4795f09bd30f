package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/mrmushfiq/inference-gateway/internal/shared/models"
)

// OpenAIAdapter dispatches to the hosted OpenAI API.
type OpenAIAdapter struct {
	client *openai.Client
}

// NewOpenAIAdapter creates an OpenAI adapter with its own bounded upstream
// timeout.
func NewOpenAIAdapter(apiKey string, timeout time.Duration) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(cfg)}
}

// newOpenAIAdapterForBase points the adapter at an alternate API base URL.
// Used by tests to stand in a fake upstream.
func newOpenAIAdapterForBase(apiKey, baseURL string, timeout time.Duration) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(cfg)}
}

// Kind returns the provider kind this adapter serves.
func (a *OpenAIAdapter) Kind() string {
	return models.ProviderOpenAI
}

// Dispatch sends the input text to the model version's upstream model and
// returns the generated text.
func (a *OpenAIAdapter) Dispatch(ctx context.Context, mv *models.ModelVersion, text string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: mv.UpstreamModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", translateOpenAIError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &UpstreamError{Message: "response missing output text"}
	}

	return resp.Choices[0].Message.Content, nil
}

func translateOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{
			StatusHint: apiErr.HTTPStatusCode,
			Message:    truncateDetail(apiErr.Message),
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{
			StatusHint: reqErr.HTTPStatusCode,
			Message:    truncateDetail(reqErr.Error()),
		}
	}

	return &UpstreamError{Message: truncateDetail(err.Error())}
}

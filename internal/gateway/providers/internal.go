package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mrmushfiq/inference-gateway/internal/shared/models"
)

// InternalAdapter dispatches to a self-hosted model endpoint speaking the
// internal predict protocol: POST {endpoint}/predict {"text"} -> {"output"}.
type InternalAdapter struct {
	httpClient *http.Client
}

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	Output string `json:"output"`
}

// NewInternalAdapter creates an internal-endpoint adapter. The adapter owns
// its own http.Client so a slow internal upstream cannot starve connections
// intended for other providers.
func NewInternalAdapter(timeout time.Duration) *InternalAdapter {
	return &InternalAdapter{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Kind returns the provider kind this adapter serves.
func (a *InternalAdapter) Kind() string {
	return models.ProviderInternal
}

// Dispatch sends the input text to the model version's internal endpoint and
// returns the generated text.
func (a *InternalAdapter) Dispatch(ctx context.Context, mv *models.ModelVersion, text string) (string, error) {
	if mv.InternalEndpointURL == "" {
		return "", &UpstreamError{Message: fmt.Sprintf("internal endpoint not configured for %s/%s", mv.ModelName, mv.Version)}
	}

	reqBody, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return "", &UpstreamError{Message: truncateDetail(err.Error())}
	}

	url := strings.TrimRight(mv.InternalEndpointURL, "/") + "/predict"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", &UpstreamError{Message: truncateDetail(err.Error())}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", &UpstreamError{Message: truncateDetail(err.Error())}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", &UpstreamError{Message: truncateDetail(err.Error())}
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", &UpstreamError{
			StatusHint: httpResp.StatusCode,
			Message:    truncateDetail(string(respBody)),
		}
	}

	var resp predictResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &UpstreamError{
			StatusHint: httpResp.StatusCode,
			Message:    "invalid JSON from internal endpoint: " + truncateDetail(string(respBody)),
		}
	}
	if resp.Output == "" {
		return "", &UpstreamError{
			StatusHint: httpResp.StatusCode,
			Message:    "response missing output text",
		}
	}

	return resp.Output, nil
}

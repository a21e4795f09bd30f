package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrmushfiq/inference-gateway/internal/shared/models"
)

// ErrUnsupportedProvider indicates a model version bound to a provider kind
// the router has no adapter for. This is a configuration error, not an
// upstream failure.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// UpstreamError is the uniform surface for any provider failure: transport
// errors, non-2xx responses, and malformed or incomplete payloads.
type UpstreamError struct {
	// StatusHint is the upstream HTTP status when one was received, 0 otherwise.
	StatusHint int
	// Message carries truncated upstream detail, never credentials.
	Message string
}

func (e *UpstreamError) Error() string {
	if e.StatusHint != 0 {
		return fmt.Sprintf("upstream error (status %d): %s", e.StatusHint, e.Message)
	}
	return fmt.Sprintf("upstream error: %s", e.Message)
}

// Adapter is one provider integration. Each adapter owns its own upstream
// timeout and translates every failure into *UpstreamError.
type Adapter interface {
	Dispatch(ctx context.Context, mv *models.ModelVersion, text string) (string, error)
	Kind() string
}

// maxUpstreamDetail bounds how much upstream body is carried in errors.
const maxUpstreamDetail = 500

func truncateDetail(s string) string {
	if len(s) > maxUpstreamDetail {
		return s[:maxUpstreamDetail]
	}
	return s
}

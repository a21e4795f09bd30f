package providers

import (
	"context"
	"fmt"

	"github.com/mrmushfiq/inference-gateway/internal/shared/models"
)

// Router maps a model version's provider kind to the adapter that serves it.
// Selection is a pure function of the kind. The router performs no retries;
// retry policy belongs to the calling edge.
type Router struct {
	adapters map[string]Adapter
}

// NewRouter creates a Router over the adapters configured at startup.
func NewRouter(adapters ...Adapter) *Router {
	r := &Router{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

// Dispatch invokes the adapter for the model version's provider kind.
func (r *Router) Dispatch(ctx context.Context, mv *models.ModelVersion, text string) (string, error) {
	adapter, ok := r.adapters[mv.ProviderKind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, mv.ProviderKind)
	}
	return adapter.Dispatch(ctx, mv, text)
}

package pipeline

import (
	"fmt"
	"net/http"
	"time"
)

// Kind classifies the terminal state of a request. Every request ends in
// exactly one of these.
type Kind int

const (
	KindCompleted Kind = iota
	KindAuthError
	KindNotFound
	KindForbidden
	KindRateLimited
	KindDependencyUnavailable
	KindUpstreamError
	KindUnsupportedProvider
)

func (k Kind) String() string {
	switch k {
	case KindCompleted:
		return "completed"
	case KindAuthError:
		return "auth_error"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	case KindDependencyUnavailable:
		return "dependency_unavailable"
	case KindUpstreamError:
		return "upstream_error"
	case KindUnsupportedProvider:
		return "unsupported_provider"
	default:
		return "unknown"
	}
}

// HTTPStatus maps a terminal kind to the response status for the edge.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindCompleted:
		return http.StatusOK
	case KindAuthError:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound, KindUnsupportedProvider:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamError:
		return http.StatusBadGateway
	case KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Failure is a terminal pipeline failure. All failure paths are explicit
// values of this type; none are retried inside the core.
type Failure struct {
	Kind   Kind
	Detail string
	// RetryAfter is set only for KindRateLimited.
	RetryAfter time.Duration

	err error
}

func (f *Failure) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
	}
	return f.Kind.String()
}

func (f *Failure) Unwrap() error {
	return f.err
}

func newFailure(kind Kind, detail string, err error) *Failure {
	return &Failure{Kind: kind, Detail: detail, err: err}
}

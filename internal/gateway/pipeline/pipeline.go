// Package pipeline sequences the gateway's per-request decision path:
// principal resolution, model lookup, authorization, rate limiting, and
// provider dispatch. The first failing step is terminal.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/mrmushfiq/inference-gateway/internal/gateway/auth"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/policy"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/providers"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/ratelimit"
	"github.com/mrmushfiq/inference-gateway/internal/shared/database"
	"github.com/mrmushfiq/inference-gateway/internal/shared/models"
)

// Authenticator resolves a bearer credential to a principal.
type Authenticator interface {
	ResolvePrincipal(ctx context.Context, bearer string) (*models.Principal, error)
}

// Directory is the model-catalog slice of the directory collaborator.
type Directory interface {
	ModelVersionByNameVersion(ctx context.Context, name, version string) (*models.ModelVersion, error)
}

// PolicyResolver answers authorization lookups.
type PolicyResolver interface {
	Resolve(ctx context.Context, principalID, modelVersionID string) (policy.Decision, error)
}

// RateLimiter enforces the resolved policy.
type RateLimiter interface {
	Check(ctx context.Context, principalID, modelVersionID string, policy *models.Policy) (ratelimit.Decision, error)
}

// ProviderRouter dispatches to the provider bound to a model version.
type ProviderRouter interface {
	Dispatch(ctx context.Context, mv *models.ModelVersion, text string) (string, error)
}

// Outcome is the request-outcome record emitted once per request.
type Outcome struct {
	PrincipalID string
	ModelName   string
	Version     string
	Kind        Kind
	StatusCode  int
	Latency     time.Duration
	Detail      string
}

// Recorder consumes request-outcome records.
type Recorder interface {
	Record(ctx context.Context, o Outcome)
}

// Gateway orchestrates one decision pipeline per request.
type Gateway struct {
	auth     Authenticator
	dir      Directory
	policies PolicyResolver
	limiter  RateLimiter
	router   ProviderRouter
	recorder Recorder

	now func() time.Time
}

// New wires the pipeline from its collaborators.
func New(authn Authenticator, dir Directory, policies PolicyResolver, limiter RateLimiter, router ProviderRouter, recorder Recorder) *Gateway {
	return &Gateway{
		auth:     authn,
		dir:      dir,
		policies: policies,
		limiter:  limiter,
		router:   router,
		recorder: recorder,
		now:      time.Now,
	}
}

// Predict runs the full pipeline for one request and returns the provider
// output or a terminal *Failure. Exactly one outcome record is emitted per
// call, success or failure.
func (g *Gateway) Predict(ctx context.Context, credential, modelName, version, text string) (string, error) {
	start := g.now()

	var principalID string
	fail := func(f *Failure) (string, error) {
		g.record(ctx, principalID, modelName, version, f.Kind, f.Detail, start)
		return "", f
	}

	// Unauthenticated -> Authenticated
	principal, err := g.auth.ResolvePrincipal(ctx, credential)
	if err != nil {
		if isAuthFailure(err) {
			return fail(newFailure(KindAuthError, err.Error(), err))
		}
		return fail(newFailure(KindDependencyUnavailable, "identity lookup failed", err))
	}
	principalID = principal.ID

	// Authenticated -> ModelResolved
	mv, err := g.dir.ModelVersionByNameVersion(ctx, modelName, version)
	if errors.Is(err, database.ErrNotFound) {
		return fail(newFailure(KindNotFound, "unknown model version", err))
	}
	if err != nil {
		return fail(newFailure(KindDependencyUnavailable, "model lookup failed", err))
	}

	// ModelResolved -> Authorized
	decision, err := g.policies.Resolve(ctx, principal.ID, mv.ID)
	if err != nil {
		return fail(newFailure(KindDependencyUnavailable, "authorization lookup failed", err))
	}
	if !decision.Allowed {
		return fail(newFailure(KindForbidden, "not permitted for this model version", nil))
	}

	// Authorized -> RateChecked
	rate, err := g.limiter.Check(ctx, principal.ID, mv.ID, decision.Policy)
	if err != nil {
		return fail(newFailure(KindDependencyUnavailable, "rate limit check failed", err))
	}
	if !rate.Allowed {
		f := newFailure(KindRateLimited, "rate limit exceeded", nil)
		f.RetryAfter = rate.RetryAfter
		return fail(f)
	}

	// RateChecked -> Dispatched
	output, err := g.router.Dispatch(ctx, mv, text)
	if err != nil {
		if errors.Is(err, providers.ErrUnsupportedProvider) {
			return fail(newFailure(KindUnsupportedProvider, err.Error(), err))
		}
		var ue *providers.UpstreamError
		if errors.As(err, &ue) {
			return fail(newFailure(KindUpstreamError, ue.Error(), err))
		}
		return fail(newFailure(KindUpstreamError, err.Error(), err))
	}

	g.record(ctx, principalID, modelName, version, KindCompleted, "", start)
	return output, nil
}

func (g *Gateway) record(ctx context.Context, principalID, modelName, version string, kind Kind, detail string, start time.Time) {
	if g.recorder == nil {
		return
	}
	g.recorder.Record(ctx, Outcome{
		PrincipalID: principalID,
		ModelName:   modelName,
		Version:     version,
		Kind:        kind,
		StatusCode:  kind.HTTPStatus(),
		Latency:     g.now().Sub(start),
		Detail:      detail,
	})
}

func isAuthFailure(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken) ||
		errors.Is(err, auth.ErrExpiredToken) ||
		errors.Is(err, auth.ErrUnknownPrincipal)
}

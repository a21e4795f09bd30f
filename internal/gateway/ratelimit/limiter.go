// Package ratelimit enforces fixed-window request quotas against a shared
// counter store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/mrmushfiq/inference-gateway/internal/shared/models"
)

// expiryBuffer is added to the window length when setting counter expiry so
// exhausted windows self-clean without a sweeper.
const expiryBuffer = 5 * time.Second

// CounterStore is the shared counter collaborator. Incr must atomically
// increment and return the post-increment value in one round trip.
type CounterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is a fixed-window counter per (principal, model version). The
// window resets at fixed boundaries; the burst of up to 2x the quota across
// a boundary is the accepted cost of O(1) checks with no per-gateway state.
type Limiter struct {
	store CounterStore

	now func() time.Time
}

// New creates a Limiter over the given counter store.
func New(store CounterStore) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// Check enforces the policy for one request. A nil policy is unlimited. If
// the counter store is unreachable the error is returned and the caller must
// fail closed; it must never be read as an allow.
func (l *Limiter) Check(ctx context.Context, principalID, modelVersionID string, policy *models.Policy) (Decision, error) {
	if policy == nil {
		return Decision{Allowed: true}, nil
	}

	window := time.Duration(policy.WindowSeconds) * time.Second
	now := l.now().Unix()
	windowIndex := now / int64(policy.WindowSeconds)
	key := fmt.Sprintf("rl:%s:%s:%d", principalID, modelVersionID, windowIndex)

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("counter incr: %w", err)
	}

	// First increment in the window owns setting the expiry. A crash between
	// Incr and Expire leaves a counter that lingers until cleared manually;
	// that bounded risk is accepted rather than corrected with a sweep.
	if count == 1 {
		if err := l.store.Expire(ctx, key, window+expiryBuffer); err != nil {
			return Decision{}, fmt.Errorf("counter expire: %w", err)
		}
	}

	if count > int64(policy.MaxRequests) {
		retryAfter := time.Duration(policy.WindowSeconds-int(now%int64(policy.WindowSeconds))) * time.Second
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	return Decision{Allowed: true}, nil
}

// Package policy resolves (principal, model version) pairs to authorization
// decisions, with a short-lived in-process cache in front of the directory.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mrmushfiq/inference-gateway/internal/shared/models"
)

// DefaultCacheTTL bounds directory load per (principal, model version) pair.
const DefaultCacheTTL = 5 * time.Minute

// Directory is the permission slice of the directory collaborator.
type Directory interface {
	PermissionsFor(ctx context.Context, principalID, modelVersionID string) ([]models.Permission, error)
}

// Decision is an authorization decision. A nil Policy on an allowed decision
// means unlimited.
type Decision struct {
	Allowed bool
	Policy  *models.Policy
}

type cacheKey struct {
	principalID    string
	modelVersionID string
}

type cacheEntry struct {
	decision  Decision
	expiresAt time.Time
}

// Resolver answers authorization lookups, caching every outcome (including
// denials) for a fixed TTL.
type Resolver struct {
	dir    Directory
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry

	now func() time.Time
}

// New creates a Resolver. A non-positive ttl falls back to DefaultCacheTTL.
func New(dir Directory, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		dir:    dir,
		ttl:    ttl,
		logger: logger,
		cache:  make(map[cacheKey]cacheEntry),
		now:    time.Now,
	}
}

// Resolve returns the authorization decision for the pair. A cached entry past
// its expiry is treated as a miss. On a miss the directory is queried and the
// result cached regardless of outcome. If the directory is unreachable and no
// live entry exists, the error is returned and the caller must fail closed.
func (r *Resolver) Resolve(ctx context.Context, principalID, modelVersionID string) (Decision, error) {
	key := cacheKey{principalID: principalID, modelVersionID: modelVersionID}
	now := r.now()

	r.mu.Lock()
	entry, ok := r.cache[key]
	r.mu.Unlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.decision, nil
	}

	// Miss or expired. Two requests racing here both hit the directory; the
	// stampede is tolerated, the last write wins.
	perms, err := r.dir.PermissionsFor(ctx, principalID, modelVersionID)
	if err != nil {
		return Decision{}, fmt.Errorf("permission lookup: %w", err)
	}

	decision := r.decide(principalID, modelVersionID, perms)

	r.mu.Lock()
	r.cache[key] = cacheEntry{decision: decision, expiresAt: now.Add(r.ttl)}
	r.mu.Unlock()

	return decision, nil
}

// decide collapses the permission rows reachable through the principal's
// groups into a single decision. No rows denies. Rows that agree collapse to
// one. Conflicting rows have no documented precedence, so the resolver fails
// closed rather than guessing.
func (r *Resolver) decide(principalID, modelVersionID string, perms []models.Permission) Decision {
	if len(perms) == 0 {
		return Decision{Allowed: false}
	}

	first := perms[0]
	for _, perm := range perms[1:] {
		if !samePermission(first, perm) {
			r.logger.Warn("conflicting permission rows, failing closed",
				slog.String("principal_id", principalID),
				slog.String("model_version_id", modelVersionID),
				slog.Int("rows", len(perms)),
			)
			return Decision{Allowed: false}
		}
	}

	return Decision{Allowed: first.Allowed, Policy: first.Policy}
}

func samePermission(a, b models.Permission) bool {
	if a.Allowed != b.Allowed {
		return false
	}
	if (a.Policy == nil) != (b.Policy == nil) {
		return false
	}
	if a.Policy == nil {
		return true
	}
	return *a.Policy == *b.Policy
}

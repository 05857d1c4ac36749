package gate

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/r3e-labs/engines-controlplane/internal/backend"
	"github.com/r3e-labs/engines-controlplane/internal/identity"
	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
	"github.com/r3e-labs/engines-controlplane/internal/routing"
)

// Authenticated fails 401 when ctx has no resolved user_id. Service-to-
// service calls that never overlay a bearer token are expected to supply
// their own gate in place of this one.
func Authenticated(ctx identity.RequestContext) Gate {
	return func(_ context.Context, _ string) error {
		if ctx.UserID == "" {
			return errs.AuthMissingOrInvalid(nil)
		}
		return nil
	}
}

// TenantMembership fails 403 when role is empty, meaning the identity
// resolver could not establish membership for this tenant.
func TenantMembership(ctx identity.RequestContext) Gate {
	return func(_ context.Context, _ string) error {
		if ctx.MembershipRole == "" {
			return errs.TenantNotMember(ctx.TenantID)
		}
		return nil
	}
}

// ContextMatch fails 400/403 when supplied scope fields disagree with ctx.
func ContextMatch(ctx identity.RequestContext, supplied identity.ScopeFields) Gate {
	return func(_ context.Context, _ string) error {
		return identity.AssertContextMatches(ctx, supplied)
	}
}

// IdentityOverride fails 403 when a durable-write request's client-supplied
// identity fields disagree with ctx (spec §4.1's
// validate_identity_precedence, run as a gate).
func IdentityOverride(ctx identity.RequestContext, supplied identity.IdentitySuppliedFields) Gate {
	return func(_ context.Context, _ string) error {
		return identity.ValidateIdentityPrecedence(ctx, supplied)
	}
}

// BackendClass fails 403 when route's backend_type is not permitted for
// mode (spec §4.3), run as a gate immediately before a handler resolves an
// adapter for route.
func BackendClass(guard *backend.Guard, route routing.ResourceRoute, mode identity.Mode) Gate {
	return func(_ context.Context, _ string) error {
		return guard.Check(route, mode)
	}
}

// RateLimiter is a domain-specific gate (spec §4.8 bullet 6) backed by
// golang.org/x/time/rate, one limiter per tenant.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewRateLimiter builds a per-tenant token-bucket limiter.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (r *RateLimiter) limiterFor(tenantID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(r.rps, r.burst)
		r.limiters[tenantID] = l
	}
	return l
}

// Gate returns a Gate enforcing the per-tenant rate limit.
func (r *RateLimiter) Gate(tenantID string) Gate {
	return func(_ context.Context, _ string) error {
		if !r.limiterFor(tenantID).Allow() {
			return errs.GateBlocked("rate_limit", "tenant rate limit exceeded", 429)
		}
		return nil
	}
}

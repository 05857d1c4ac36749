package identity

import (
	"net/http"
	"strings"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

// Header names recognized by the resolver (spec §4.1, §6). Headers are
// matched case-insensitively by net/http.Header.Get.
const (
	HeaderTenantID       = "X-Tenant-Id"
	HeaderMode           = "X-Mode"
	HeaderProjectID      = "X-Project-Id"
	HeaderSurfaceID      = "X-Surface-Id"
	HeaderAppID          = "X-App-Id"
	HeaderUserID         = "X-User-Id"
	HeaderMembershipRole = "X-Membership-Role"
	HeaderRequestID      = "X-Request-Id"
	HeaderTraceID        = "X-Trace-Id"
	HeaderRunID          = "X-Run-Id"
	HeaderStepID         = "X-Step-Id"

	// HeaderLegacyEnv is no longer accepted; its presence is an error in
	// its own right, at any casing (spec §4.1).
	HeaderLegacyEnv = "X-Env"

	HeaderAuthorization = "Authorization"
)

// Resolver builds a validated RequestContext from an incoming request,
// enforcing the full precedence chain from spec §4.1: bearer token claims
// outrank headers, headers outrank legacy query/body fields, and a resolved
// server-derived field can never be overridden downstream.
//
// Grounded on the tenant/token context-building shape of
// applications/httpapi/middleware_tenant.go in this lineage, generalized
// from a single tenant string into the full multi-field RequestContext the
// spec requires, with token verification and membership enforcement added.
type Resolver struct {
	verifier   *TokenVerifier
	membership *MembershipCache
	// env is the deployment environment this process serves. It is a
	// process-level setting, never client-supplied: the only client-facing
	// environment header, X-Env, is the forbidden legacy one.
	env Env
}

// NewResolver builds a Resolver for the deployment environment env.
// verifier may be nil to skip bearer token overlay entirely (e.g.
// service-to-service calls authenticated upstream); membership may be nil
// to skip the tenant_not_member check, which is only meaningful once a
// token names a user.
func NewResolver(env Env, verifier *TokenVerifier, membership *MembershipCache) *Resolver {
	return &Resolver{env: NormalizeEnv(string(env)), verifier: verifier, membership: membership}
}

// Resolve builds and validates a RequestContext from r's headers and
// (optionally) bearer token. It never looks at query parameters or body
// fields: this control plane does not set the legacy migration flag spec
// §4.1 mentions, so that input tier is always ignored.
func (res *Resolver) Resolve(r *http.Request) (RequestContext, error) {
	if legacy := r.Header.Get(HeaderLegacyEnv); legacy != "" {
		return RequestContext{}, errs.LegacyEnvForbidden()
	}

	mode := Mode(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderMode))))
	if !mode.Valid() {
		return RequestContext{}, errs.ModeRequired()
	}

	ctx := RequestContext{
		Mode:           mode,
		TenantID:       strings.TrimSpace(r.Header.Get(HeaderTenantID)),
		ProjectID:      strings.TrimSpace(r.Header.Get(HeaderProjectID)),
		AppID:          strings.TrimSpace(r.Header.Get(HeaderAppID)),
		UserID:         strings.TrimSpace(r.Header.Get(HeaderUserID)),
		MembershipRole: strings.TrimSpace(r.Header.Get(HeaderMembershipRole)),
		RequestID:      strings.TrimSpace(r.Header.Get(HeaderRequestID)),
		TraceID:        strings.TrimSpace(r.Header.Get(HeaderTraceID)),
		RunID:          strings.TrimSpace(r.Header.Get(HeaderRunID)),
		StepID:         strings.TrimSpace(r.Header.Get(HeaderStepID)),
	}
	ctx.Env = res.env

	if raw := r.Header.Get(HeaderSurfaceID); raw != "" {
		canonical, _ := NormalizeSurface(raw)
		ctx.SurfaceID = canonical
	}

	if bearer := bearerToken(r.Header.Get(HeaderAuthorization)); bearer != "" && res.verifier != nil {
		claims, err := res.verifier.Verify(bearer)
		if err != nil {
			return RequestContext{}, err
		}

		// Bearer claims outrank headers: a token-asserted tenant/role always
		// wins over whatever the client put in X-Tenant-Id/X-Membership-Role.
		if claims.TenantID != "" {
			ctx.TenantID = claims.TenantID
		}
		ctx.UserID = claims.Sub
		if claims.Role != "" {
			ctx.MembershipRole = claims.Role
		}
		ctx.ActorID = claims.Sub

		if res.membership != nil && claims.Sub != "" {
			memberships, err := res.membership.MembershipsForUser(r.Context(), claims.Sub)
			if err != nil {
				return RequestContext{}, errs.Wrap(errs.CodeAuthMissingOrInvalid, http.StatusUnauthorized, "membership lookup failed", err)
			}
			role, ok := IsMember(memberships, ctx.TenantID)
			if !ok {
				return RequestContext{}, errs.TenantNotMember(ctx.TenantID)
			}
			ctx.MembershipRole = string(role)
		}
	}

	if ctx.TenantID == "" {
		return RequestContext{}, errs.TenantInvalid("")
	}
	if !ValidTenantID(ctx.TenantID) {
		return RequestContext{}, errs.TenantInvalid(ctx.TenantID)
	}
	if ctx.ProjectID == "" {
		return RequestContext{}, errs.ProjectRequired()
	}

	ctx = ctx.EnsureRequestID()

	if err := ctx.Validate(); err != nil {
		return RequestContext{}, err
	}

	return ctx, nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// ScopeFields names the fields assert_context_matches and
// validate_identity_precedence compare between a resolved RequestContext and
// client-supplied payload/path/query values (spec §4.1).
type ScopeFields struct {
	TenantID  string
	Mode      string
	Env       string
	ProjectID string
	SurfaceID string
	AppID     string
}

// AssertContextMatches verifies that any non-empty field in supplied agrees
// with ctx, returning a context_mismatch error naming every disagreement
// when it does not.
func AssertContextMatches(ctx RequestContext, supplied ScopeFields) error {
	var mismatches []errs.Mismatch

	check := func(field, expected, actual string) {
		if actual != "" && actual != expected {
			mismatches = append(mismatches, errs.Mismatch{Field: field, Expected: expected, Actual: actual})
		}
	}

	check("tenant_id", ctx.TenantID, supplied.TenantID)
	check("mode", string(ctx.Mode), supplied.Mode)
	check("env", string(ctx.Env), supplied.Env)
	check("project_id", ctx.ProjectID, supplied.ProjectID)
	check("surface_id", ctx.SurfaceID, supplied.SurfaceID)
	check("app_id", ctx.AppID, supplied.AppID)

	if len(mismatches) > 0 {
		return errs.ContextMismatch(mismatches)
	}
	return nil
}

// IdentitySuppliedFields names the identity-bearing fields a client may
// attempt to set directly on a durable-write request (spec §4.1).
type IdentitySuppliedFields struct {
	TenantID  string
	ProjectID string
	UserID    string
	SurfaceID string
	Mode      string
}

// ValidateIdentityPrecedence is called by every durable-write handler: if
// supplied carries any identity-bearing field that disagrees with ctx, the
// request is rejected with auth.identity_override (403). Callers are
// expected to also emit an auth_violation event on a non-nil return.
func ValidateIdentityPrecedence(ctx RequestContext, supplied IdentitySuppliedFields) error {
	var mismatches []errs.Mismatch

	check := func(field, expected, actual string) {
		if actual != "" && actual != expected {
			mismatches = append(mismatches, errs.Mismatch{Field: field, Expected: expected, Actual: actual})
		}
	}

	check("tenant_id", ctx.TenantID, supplied.TenantID)
	check("project_id", ctx.ProjectID, supplied.ProjectID)
	check("user_id", ctx.UserID, supplied.UserID)
	check("surface_id", ctx.SurfaceID, supplied.SurfaceID)
	check("mode", string(ctx.Mode), supplied.Mode)

	if len(mismatches) > 0 {
		return errs.IdentityOverride(mismatches)
	}
	return nil
}

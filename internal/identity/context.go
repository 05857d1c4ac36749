// Package identity builds and validates the per-request RequestContext: the
// boundary that normalizes tenant/mode/project/user/surface from headers and
// tokens, rejects legacy headers, and enforces that clients can never
// override server-derived identity (spec §4.1).
//
// Grounded on system/framework/context.go and applications/httpapi/
// middleware_tenant.go in this lineage, generalized from their Android-style
// service-context/tenant-overlay shape into the full RequestContext the spec
// requires.
package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

// Mode is the deployment class driving the backend-class guard (spec §4.3).
type Mode string

const (
	ModeSaaS       Mode = "saas"
	ModeEnterprise Mode = "enterprise"
	ModeLab        Mode = "lab"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeSaaS, ModeEnterprise, ModeLab:
		return true
	}
	return false
}

// Env is the normalized deployment environment.
type Env string

const (
	EnvDev     Env = "dev"
	EnvStaging Env = "staging"
	EnvProd    Env = "prod"
)

// SystemTenant is the only hardcoded tenant id, used for the global-default
// routing tier (spec §4.2) and as the baseline for startup validation.
const SystemTenant = "t_system"

var tenantPattern = regexp.MustCompile(`^t_[a-z0-9_-]+$`)

// ValidTenantID reports whether id matches the required tenant shape.
func ValidTenantID(id string) bool {
	return tenantPattern.MatchString(id)
}

// NormalizeEnv canonicalizes an environment string, folding the "stage"
// alias into "staging". Unknown values are returned lowercased/trimmed so
// callers can still report them in an error.
func NormalizeEnv(raw string) Env {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "stage" {
		v = "staging"
	}
	return Env(v)
}

func (e Env) Valid() bool {
	switch e {
	case EnvDev, EnvStaging, EnvProd:
		return true
	}
	return false
}

// RequestContext is a validated, immutable value constructed once per
// request. It is never mutated after Validate succeeds (spec §3).
type RequestContext struct {
	TenantID       string
	Mode           Mode
	Env            Env
	ProjectID      string
	SurfaceID      string
	AppID          string
	UserID         string
	ActorID        string
	MembershipRole string

	RequestID string
	TraceID   string
	RunID     string
	StepID    string
}

// Validate checks the invariants spec §3 lists for RequestContext: all five
// required fields present, mode in the valid set, tenant matches the
// pattern, and surface (if set) is already canonical.
func (c RequestContext) Validate() error {
	if c.TenantID == "" || !ValidTenantID(c.TenantID) {
		return errs.TenantInvalid(c.TenantID)
	}
	if !c.Mode.Valid() {
		return errs.ModeRequired()
	}
	if !c.Env.Valid() {
		return errs.ModeRequired()
	}
	if c.ProjectID == "" {
		return errs.ProjectRequired()
	}
	if c.SurfaceID != "" {
		canonical, _ := NormalizeSurface(c.SurfaceID)
		if canonical != c.SurfaceID {
			return errs.New(errs.CodeContextMismatch, 400, "surface_id is not in canonical form")
		}
	}
	return nil
}

// EnsureRequestID fills RequestID with a fresh uuid when absent, returning
// the (possibly unchanged) context. TraceID is left for the caller to
// propagate or generate separately.
func (c RequestContext) EnsureRequestID() RequestContext {
	if strings.TrimSpace(c.RequestID) == "" {
		c.RequestID = uuid.NewString()
	}
	return c
}

package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newRequest(headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/routing/routes", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestResolverRejectsLegacyEnvHeader(t *testing.T) {
	res := NewResolver(EnvDev, nil, nil)
	r := newRequest(map[string]string{
		HeaderLegacyEnv: "prod",
		HeaderMode:      "saas",
		HeaderTenantID:  "t_acme",
		HeaderProjectID: "proj_1",
	})

	_, err := res.Resolve(r)
	if err == nil {
		t.Fatal("Resolve() with X-Env set should fail")
	}
}

func TestResolverRequiresMode(t *testing.T) {
	res := NewResolver(EnvDev, nil, nil)
	r := newRequest(map[string]string{
		HeaderTenantID:  "t_acme",
		HeaderProjectID: "proj_1",
	})

	_, err := res.Resolve(r)
	if err == nil {
		t.Fatal("Resolve() without X-Mode should fail")
	}
}

func TestResolverEnvIsProcessLevelNotClientSupplied(t *testing.T) {
	res := NewResolver(EnvProd, nil, nil)
	r := newRequest(map[string]string{
		HeaderMode:      "saas",
		HeaderTenantID:  "t_acme",
		HeaderProjectID: "proj_1",
	})

	ctx, err := res.Resolve(r)
	if err != nil {
		t.Fatalf("Resolve() returned %v", err)
	}
	if ctx.Env != EnvProd {
		t.Errorf("ctx.Env = %q, want %q (the resolver's own process env, not client-supplied)", ctx.Env, EnvProd)
	}
}

func TestResolverHappyPath(t *testing.T) {
	res := NewResolver(EnvDev, nil, nil)
	r := newRequest(map[string]string{
		HeaderMode:      "saas",
		HeaderTenantID:  "t_acme",
		HeaderProjectID: "proj_1",
		HeaderSurfaceID: "Squared",
	})

	ctx, err := res.Resolve(r)
	if err != nil {
		t.Fatalf("Resolve() returned %v", err)
	}
	if ctx.TenantID != "t_acme" || ctx.ProjectID != "proj_1" || ctx.Mode != ModeSaaS {
		t.Errorf("Resolve() = %+v, missing expected fields", ctx)
	}
	if ctx.SurfaceID != "squared2" {
		t.Errorf("ctx.SurfaceID = %q, want canonicalized %q", ctx.SurfaceID, "squared2")
	}
	if ctx.RequestID == "" {
		t.Error("Resolve() should fill a RequestID when none is supplied")
	}
}

func TestResolverRejectsMalformedTenant(t *testing.T) {
	res := NewResolver(EnvDev, nil, nil)
	r := newRequest(map[string]string{
		HeaderMode:      "saas",
		HeaderTenantID:  "acme",
		HeaderProjectID: "proj_1",
	})

	if _, err := res.Resolve(r); err == nil {
		t.Fatal("Resolve() with a malformed tenant_id should fail")
	}
}

func TestAssertContextMatches(t *testing.T) {
	ctx := RequestContext{TenantID: "t_acme", Mode: ModeSaaS, Env: EnvDev, ProjectID: "proj_1"}

	if err := AssertContextMatches(ctx, ScopeFields{TenantID: "t_acme"}); err != nil {
		t.Errorf("AssertContextMatches with agreeing tenant_id returned %v", err)
	}
	if err := AssertContextMatches(ctx, ScopeFields{}); err != nil {
		t.Errorf("AssertContextMatches with no supplied fields returned %v", err)
	}
	if err := AssertContextMatches(ctx, ScopeFields{TenantID: "t_other"}); err == nil {
		t.Error("AssertContextMatches with a disagreeing tenant_id should fail")
	}
}

func TestValidateIdentityPrecedence(t *testing.T) {
	ctx := RequestContext{TenantID: "t_acme", ProjectID: "proj_1", UserID: "user_1", Mode: ModeSaaS}

	if err := ValidateIdentityPrecedence(ctx, IdentitySuppliedFields{TenantID: "t_acme"}); err != nil {
		t.Errorf("ValidateIdentityPrecedence with agreeing tenant_id returned %v", err)
	}
	if err := ValidateIdentityPrecedence(ctx, IdentitySuppliedFields{TenantID: "t_other"}); err == nil {
		t.Error("ValidateIdentityPrecedence should reject a client-supplied tenant_id override")
	}
	if err := ValidateIdentityPrecedence(ctx, IdentitySuppliedFields{UserID: "user_2"}); err == nil {
		t.Error("ValidateIdentityPrecedence should reject a client-supplied user_id override")
	}
}

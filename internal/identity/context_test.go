package identity

import "testing"

func TestValidTenantID(t *testing.T) {
	cases := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "t_acme", true},
		{"valid with digits", "t_acme-01", true},
		{"missing prefix", "acme", false},
		{"uppercase", "t_ACME", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidTenantID(tc.id); got != tc.want {
				t.Errorf("ValidTenantID(%q) = %v, want %v", tc.id, got, tc.want)
			}
		})
	}
}

func TestNormalizeEnv(t *testing.T) {
	cases := []struct {
		raw  string
		want Env
	}{
		{"dev", EnvDev},
		{" Prod ", EnvProd},
		{"stage", EnvStaging},
		{"STAGING", EnvStaging},
		{"unknown", Env("unknown")},
	}
	for _, tc := range cases {
		if got := NormalizeEnv(tc.raw); got != tc.want {
			t.Errorf("NormalizeEnv(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestModeValid(t *testing.T) {
	for _, m := range []Mode{ModeSaaS, ModeEnterprise, ModeLab} {
		if !m.Valid() {
			t.Errorf("Mode(%q).Valid() = false, want true", m)
		}
	}
	if Mode("bogus").Valid() {
		t.Errorf("Mode(\"bogus\").Valid() = true, want false")
	}
}

func TestRequestContextValidate(t *testing.T) {
	base := RequestContext{
		TenantID:  "t_acme",
		Mode:      ModeSaaS,
		Env:       EnvDev,
		ProjectID: "proj_1",
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("Validate() on a well-formed context returned %v", err)
	}

	missingTenant := base
	missingTenant.TenantID = ""
	if err := missingTenant.Validate(); err == nil {
		t.Error("Validate() with empty tenant_id should fail")
	}

	badMode := base
	badMode.Mode = Mode("bogus")
	if err := badMode.Validate(); err == nil {
		t.Error("Validate() with invalid mode should fail")
	}

	missingProject := base
	missingProject.ProjectID = ""
	if err := missingProject.Validate(); err == nil {
		t.Error("Validate() with empty project_id should fail")
	}

	nonCanonicalSurface := base
	nonCanonicalSurface.SurfaceID = "Squared"
	if err := nonCanonicalSurface.Validate(); err == nil {
		t.Error("Validate() with a non-canonical surface_id should fail")
	}
}

func TestEnsureRequestID(t *testing.T) {
	ctx := RequestContext{}
	ctx = ctx.EnsureRequestID()
	if ctx.RequestID == "" {
		t.Fatal("EnsureRequestID() left RequestID empty")
	}

	withID := RequestContext{RequestID: "req_existing"}
	withID = withID.EnsureRequestID()
	if withID.RequestID != "req_existing" {
		t.Errorf("EnsureRequestID() overwrote an existing RequestID: got %q", withID.RequestID)
	}
}

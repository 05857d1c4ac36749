package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}

func TestTokenVerifierHappyPath(t *testing.T) {
	verifier := NewTokenVerifier("test-secret", "", "", "")
	raw := signToken(t, "test-secret", jwt.MapClaims{
		"sub":       "user_1",
		"tenant_id": "t_acme",
		"role":      "admin",
		"exp":       float64(time.Now().Add(time.Hour).Unix()),
	})

	claims, err := verifier.Verify(raw)
	if err != nil {
		t.Fatalf("Verify() returned %v", err)
	}
	if claims.Sub != "user_1" || claims.TenantID != "t_acme" || claims.Role != "admin" {
		t.Errorf("Verify() = %+v, missing expected claims", claims)
	}
}

func TestTokenVerifierCustomClaimNames(t *testing.T) {
	verifier := NewTokenVerifier("test-secret", "", "org_id", "org_role")
	raw := signToken(t, "test-secret", jwt.MapClaims{
		"sub":      "user_1",
		"org_id":   "t_acme",
		"org_role": "owner",
	})

	claims, err := verifier.Verify(raw)
	if err != nil {
		t.Fatalf("Verify() returned %v", err)
	}
	if claims.TenantID != "t_acme" || claims.Role != "owner" {
		t.Errorf("Verify() with custom claim names = %+v", claims)
	}
}

func TestTokenVerifierRejectsExpired(t *testing.T) {
	verifier := NewTokenVerifier("test-secret", "", "", "")
	raw := signToken(t, "test-secret", jwt.MapClaims{
		"sub": "user_1",
		"exp": float64(time.Now().Add(-time.Hour).Unix()),
	})

	if _, err := verifier.Verify(raw); err == nil {
		t.Fatal("Verify() with an expired token should fail")
	}
}

func TestTokenVerifierRejectsWrongSecret(t *testing.T) {
	verifier := NewTokenVerifier("test-secret", "", "", "")
	raw := signToken(t, "other-secret", jwt.MapClaims{"sub": "user_1"})

	if _, err := verifier.Verify(raw); err == nil {
		t.Fatal("Verify() with a token signed by a different secret should fail")
	}
}

func TestTokenVerifierRejectsWrongAudience(t *testing.T) {
	verifier := NewTokenVerifier("test-secret", "expected-aud", "", "")
	raw := signToken(t, "test-secret", jwt.MapClaims{
		"sub": "user_1",
		"aud": "other-aud",
	})

	if _, err := verifier.Verify(raw); err == nil {
		t.Fatal("Verify() with a mismatched audience should fail")
	}
}

func TestTokenVerifierNoSecretConfigured(t *testing.T) {
	verifier := NewTokenVerifier("", "", "", "")
	if _, err := verifier.Verify("anything"); err == nil {
		t.Fatal("Verify() with no configured secret should fail")
	}
}

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSurface(t *testing.T) {
	cases := []struct {
		raw           string
		wantCanonical string
		wantOK        bool
	}{
		{"squared²", "squared2", true},
		{"SQUARED2", "squared2", true},
		{" squared ", "squared2", true},
		{"", "", false},
		{"mobile", "mobile", false},
	}
	for _, tc := range cases {
		canonical, ok := NormalizeSurface(tc.raw)
		assert.Equal(t, tc.wantCanonical, canonical, "NormalizeSurface(%q)", tc.raw)
		assert.Equal(t, tc.wantOK, ok, "NormalizeSurface(%q)", tc.raw)
	}
}

func TestNormalizeSurfaceIdempotent(t *testing.T) {
	inputs := []string{"squared²", "squared", "mobile", "Desktop"}
	for _, raw := range inputs {
		once, _ := NormalizeSurface(raw)
		twice, _ := NormalizeSurface(once)
		assert.Equal(t, once, twice, "NormalizeSurface is not idempotent for %q", raw)
	}
}

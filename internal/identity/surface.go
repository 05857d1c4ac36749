package identity

import "strings"

// surfaceAliases maps every recognized spelling of a surface id to its
// canonical form. Storage always holds the canonical form (spec §3); the
// open question in spec §9 about the alias table not being exhaustively
// listed is resolved here by keeping the table small and explicit, and by
// guaranteeing NormalizeSurface is a round-trip-stable idempotent function:
// NormalizeSurface(NormalizeSurface(x)) == NormalizeSurface(x).
var surfaceAliases = map[string]string{
	"squared²": "squared2",
	"squared2": "squared2",
	"squared":  "squared2",
}

// NormalizeSurface canonicalizes a surface id via the alias table, folding
// case and whitespace first. ok is false when the input (after folding) has
// no known canonical form — callers should treat that as passthrough rather
// than an error, since the alias table is explicitly non-exhaustive.
func NormalizeSurface(raw string) (canonical string, ok bool) {
	folded := strings.ToLower(strings.TrimSpace(raw))
	if folded == "" {
		return "", false
	}
	if canon, found := surfaceAliases[folded]; found {
		return canon, true
	}
	return folded, false
}

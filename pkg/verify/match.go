package verify

import "strings"

// SelectorsEquivalent reports whether two selectors plausibly refer to the
// same element, using a three-way heuristic applied in order:
//
//  1. exact equality
//  2. substring containment in either direction (a container selector
//     matching an inner icon, and vice versa)
//  3. a shared #id token
//
// The heuristic is intentionally fuzzy and can false-positive on short
// selectors; hit-test selectors come back from the engine in whatever
// normalized form it computes, so strict equality alone would reject far
// too much.
func SelectorsEquivalent(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	idA, idB := idToken(a), idToken(b)
	return idA != "" && idA == idB
}

// idToken extracts the first #id token from a selector, stopping at any
// combinator or qualifier character.
func idToken(selector string) string {
	idx := strings.IndexByte(selector, '#')
	if idx < 0 || idx+1 >= len(selector) {
		return ""
	}
	rest := selector[idx+1:]
	end := strings.IndexAny(rest, " .[:>~+,")
	if end < 0 {
		return rest
	}
	return rest[:end]
}

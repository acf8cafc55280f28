package oauthx

import (
	"slices"
	"strings"
)

// ParseScope splits a space-delimited scope string, dropping duplicates and
// keeping first-seen order. Empty input yields nil.
func ParseScope(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// FormatScope joins scopes with single spaces.
func FormatScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// Subset reports whether every requested scope is in allowed.
func Subset(requested, allowed []string) bool {
	for _, s := range requested {
		if !slices.Contains(allowed, s) {
			return false
		}
	}
	return true
}

// Intersect returns the scopes of a that are also in b, in a's order.
func Intersect(a, b []string) []string {
	out := make([]string, 0, len(a))
	for _, s := range a {
		if slices.Contains(b, s) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Contains reports whether scope is present.
func Contains(scopes []string, scope string) bool {
	return slices.Contains(scopes, scope)
}

// ValidScopeToken reports whether s only uses the characters RFC 6749
// section 3.3 allows in a scope token.
func ValidScopeToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == 0x21 || (r >= 0x23 && r <= 0x5B) || (r >= 0x5D && r <= 0x7E) {
			continue
		}
		return false
	}
	return true
}

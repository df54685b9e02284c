package auth

import (
	"fmt"
	"strings"
)

// Wildcard grants everything. A principal whose permission set contains
// it bypasses all further matching (superadmin).
const Wildcard = "*"

// HasPermission reports whether the granted set satisfies required.
//
// Matching rules, in order: the wildcard grant wins unconditionally;
// an exact string match wins; otherwise both keys are split on ":" and
// every positional segment must be equal or "*" on the granted side.
// Keys with differing segment counts never match. Malformed keys are
// treated as opaque literals, so they can only ever match exactly.
func HasPermission(granted []string, required string) bool {
	for _, g := range granted {
		if g == Wildcard || g == required {
			return true
		}
	}
	want := strings.Split(required, ":")
	for _, g := range granted {
		if matchSegments(strings.Split(g, ":"), want) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether granted satisfies at least one of
// the required alternatives (OR semantics, e.g. read:self OR read:all).
// An empty alternatives list denies.
func HasAnyPermission(granted []string, required ...string) bool {
	for _, req := range required {
		if HasPermission(granted, req) {
			return true
		}
	}
	return false
}

func matchSegments(have, want []string) bool {
	if len(have) != len(want) {
		return false
	}
	for i := range want {
		if have[i] != want[i] && have[i] != Wildcard {
			return false
		}
	}
	return true
}

// Key is a parsed permission key. Keys in the catalog follow the
// resource:action:scope grammar; a fourth segment narrows the scope
// further (e.g. academy:content:create:self_domain).
type Key struct {
	Resource string
	Action   string
	Scope    string
}

// ParseKey validates a catalog entry. Accepted forms are the literal
// wildcard and colon-delimited keys of three or four non-empty
// segments. Used at seed/config time so that ad hoc strings never
// enter the catalog; matching itself stays string-based.
func ParseKey(raw string) (Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Key{}, fmt.Errorf("%w: empty permission key", ErrInvalidInput)
	}
	if raw == Wildcard {
		return Key{Resource: Wildcard, Action: Wildcard, Scope: Wildcard}, nil
	}
	parts := strings.Split(raw, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return Key{}, fmt.Errorf("%w: permission key %q must have 3 or 4 segments", ErrInvalidInput, raw)
	}
	for _, p := range parts {
		if p == "" {
			return Key{}, fmt.Errorf("%w: permission key %q has an empty segment", ErrInvalidInput, raw)
		}
	}
	key := Key{Resource: parts[0], Action: parts[1], Scope: parts[2]}
	if len(parts) == 4 {
		key.Scope = parts[2] + ":" + parts[3]
	}
	return key, nil
}

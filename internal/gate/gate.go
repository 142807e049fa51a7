// Package gate decides the authorization level of an identity.
//
// Classify is pure: no I/O, no side effects, and every input maps to exactly
// one Level. Swapping the allowlist for a claims based source only means
// providing different Matchers.
package gate

import (
	"fmt"
	"strings"

	"wayfarer/internal/auth"
)

// Level is the coarse access tier of an identity.
type Level int

const (
	Unauthenticated Level = iota
	Standard
	Privileged
)

func (l Level) String() string {
	switch l {
	case Unauthenticated:
		return "unauthenticated"
	case Standard:
		return "standard"
	case Privileged:
		return "privileged"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Matcher tests a single privileged-identity rule.
type Matcher interface {
	Match(identity auth.Identity) bool
	String() string
}

// Allowlist is the fixed set of privileged-identity rules.
type Allowlist []Matcher

// Classify maps an identity (or nil) to its authorization level.
func Classify(identity *auth.Identity, allowlist Allowlist) Level {
	if identity == nil {
		return Unauthenticated
	}
	for _, m := range allowlist {
		if m != nil && m.Match(*identity) {
			return Privileged
		}
	}
	return Standard
}

// EmailMatcher matches on exact email equality. An identity without an
// email never matches.
type EmailMatcher string

func (m EmailMatcher) Match(identity auth.Identity) bool {
	return identity.Email != "" && identity.Email == string(m)
}

func (m EmailMatcher) String() string { return "email:" + string(m) }

// IDMatcher matches on exact id equality.
type IDMatcher string

func (m IDMatcher) Match(identity auth.Identity) bool {
	return identity.ID != "" && identity.ID == string(m)
}

func (m IDMatcher) String() string { return "id:" + string(m) }

// DefaultAllowlist is the built-in privileged set.
func DefaultAllowlist() Allowlist {
	return Allowlist{
		EmailMatcher("admin@example.com"),
		IDMatcher("system"),
	}
}

// ParseAllowlist builds an allowlist from "email:", "id:" and "expr:"
// entries.
func ParseAllowlist(entries []string) (Allowlist, error) {
	out := make(Allowlist, 0, len(entries))
	for _, entry := range entries {
		kind, value, ok := strings.Cut(strings.TrimSpace(entry), ":")
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			return nil, fmt.Errorf("gate: malformed allowlist entry %q", entry)
		}

		switch kind {
		case "email":
			out = append(out, EmailMatcher(value))
		case "id":
			out = append(out, IDMatcher(value))
		case "expr":
			m, err := NewExprMatcher(value)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		default:
			return nil, fmt.Errorf("gate: unknown allowlist kind %q", kind)
		}
	}
	return out, nil
}

package middleware

import (
	"net/http"

	"wayfarer/internal/auth"
	"wayfarer/internal/gate"
	"wayfarer/internal/session"
)

// SessionReader is the part of authctx.Context the middleware consumes.
type SessionReader interface {
	State() auth.SessionState
	Allowlist() gate.Allowlist
}

// Owner reports whether a session id names the active session. idp.Hub
// implements it.
type Owner interface {
	Owns(sessionID string) bool
}

// Sessions scopes the process-wide session state to a single request.
// A request sees the published state only when its session cookie names the
// active session. Any other request is signed out.
type Sessions struct {
	reader  SessionReader
	owner   Owner
	cookies session.CookieOptions
}

func NewSessions(reader SessionReader, owner Owner, cookies session.CookieOptions) *Sessions {
	return &Sessions{
		reader:  reader,
		owner:   owner,
		cookies: cookies,
	}
}

// Holds reports whether r carries the cookie of the active session.
func (s *Sessions) Holds(r *http.Request) bool {
	id, ok := session.ReadCookie(r, s.cookies)
	return ok && s.owner.Owns(id)
}

// State returns the session state as seen by r.
func (s *Sessions) State(r *http.Request) auth.SessionState {
	if !s.Holds(r) {
		return auth.SessionState{}
	}
	return s.reader.State()
}

// Allowlist returns the privileged-identity rules.
func (s *Sessions) Allowlist() gate.Allowlist {
	return s.reader.Allowlist()
}

// Level classifies the identity r is bound to.
func (s *Sessions) Level(r *http.Request) gate.Level {
	return gate.Classify(s.State(r).Identity, s.reader.Allowlist())
}

// Scope captures r's session cookie and returns a view that applies the
// same binding to states published later, for long-lived connections.
func (s *Sessions) Scope(r *http.Request) func(auth.SessionState) auth.SessionState {
	id, ok := session.ReadCookie(r, s.cookies)
	return func(state auth.SessionState) auth.SessionState {
		if !ok || !s.owner.Owns(id) {
			return auth.SessionState{}
		}
		return state
	}
}

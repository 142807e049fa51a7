package auth

import "time"

// Identity represents the authenticated-session record issued by the
// identity provider. It contains facts only, no decisions.
type Identity struct {
	ID            string `json:"id"`                    // internal user id (users.id) or a well-known id such as "system"
	Email         string `json:"email,omitempty"`       // optional
	DisplayName   string `json:"displayName,omitempty"` // optional
	PhotoURL      string `json:"photoURL,omitempty"`    // optional
	Provider      string `json:"provider,omitempty"`    // e.g. "google", "keycloak", "password"
	EmailVerified bool   `json:"emailVerified,omitempty"`
}

// Profile extends Identity with application specific fields.
type Profile struct {
	Identity
	IsAdmin   bool       `json:"isAdmin"`
	CreatedAt *time.Time `json:"createdAt"`
}

// SessionState is the single value published to the rest of the
// application describing current auth status.
//
// While IsLoading is true a nil Identity does not mean signed out.
// Profile is only ever set together with Identity.
type SessionState struct {
	Identity  *Identity `json:"identity"`
	Profile   *Profile  `json:"profile"`
	IsLoading bool      `json:"isLoading"`
}

// InitialState is the state before the provider has reported anything.
func InitialState() SessionState {
	return SessionState{IsLoading: true}
}

// SignedIn reports whether the state is settled with an identity present.
func (s SessionState) SignedIn() bool {
	return !s.IsLoading && s.Identity != nil
}

// SignedOut reports whether the state is settled without an identity.
func (s SessionState) SignedOut() bool {
	return !s.IsLoading && s.Identity == nil
}

// Clone returns a deep copy so callers cannot mutate published state.
func (s SessionState) Clone() SessionState {
	out := SessionState{IsLoading: s.IsLoading}
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	if s.Profile != nil {
		p := *s.Profile
		if s.Profile.CreatedAt != nil {
			ts := *s.Profile.CreatedAt
			p.CreatedAt = &ts
		}
		out.Profile = &p
	}
	return out
}

// Claims are the identity facts an external provider asserts at sign-in.
type Claims struct {
	Provider      string // e.g. "google", "keycloak"
	Subject       string // provider-scoped unique user identifier (sub)
	Email         string // email returned by provider
	EmailVerified bool   // whether provider asserts email ownership
	Name          string
	Picture       string
}

// Identity builds the session identity for the internal user the claims
// were resolved to.
func (c Claims) Identity(userID string) Identity {
	return Identity{
		ID:            userID,
		Email:         c.Email,
		DisplayName:   c.Name,
		PhotoURL:      c.Picture,
		Provider:      c.Provider,
		EmailVerified: c.EmailVerified,
	}
}

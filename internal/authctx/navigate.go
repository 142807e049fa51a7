package authctx

import (
	"net/url"

	"wayfarer/internal/auth"
)

const (
	LoginPath = "/login"
	HomePath  = "/"
)

// Navigator performs a full navigation to target.
type Navigator interface {
	Navigate(target string)
}

// Hint is carried alongside a declarative sign-in prompt so the login page
// can return the user to where they were.
type Hint struct {
	From string
}

// HintNavigator navigates while attaching an in-memory hint.
type HintNavigator interface {
	NavigateWithHint(target string, hint Hint)
}

// LoginRedirect is the sign-in destination carrying target.
func LoginRedirect(target string) string {
	return LoginPath + "?redirect=" + url.QueryEscape(target)
}

// RequireAuthentication reports whether s carries an identity. When it
// does not and redirectTarget is non-empty, nav is sent to the sign-in page
// carrying the target.
func RequireAuthentication(s auth.SessionState, nav Navigator, redirectTarget string) bool {
	if s.Identity != nil {
		return true
	}
	if redirectTarget != "" && nav != nil {
		nav.Navigate(LoginRedirect(redirectTarget))
	}
	return false
}

// PromptSignIn is the declarative variant: it sends nav to the plain sign-in
// page with a {from} hint instead of a query parameter.
func PromptSignIn(s auth.SessionState, nav HintNavigator, from string) bool {
	if s.Identity != nil {
		return true
	}
	if nav != nil {
		nav.NavigateWithHint(LoginPath, Hint{From: from})
	}
	return false
}

// RequireAuthentication checks the published state.
func (c *Context) RequireAuthentication(nav Navigator, redirectTarget string) bool {
	return RequireAuthentication(c.State(), nav, redirectTarget)
}

// PromptSignIn checks the published state.
func (c *Context) PromptSignIn(nav HintNavigator, from string) bool {
	return PromptSignIn(c.State(), nav, from)
}

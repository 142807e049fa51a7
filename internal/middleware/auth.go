package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"wayfarer/internal/auth"
	"wayfarer/internal/authctx"
	"wayfarer/internal/notify"
)

// unexported, collision-proof context key
type identityContextKeyType struct{}

var identityKey = identityContextKeyType{}

// IdentityFromContext extracts the authenticated identity from context.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

func withIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// httpNavigator turns a navigation into a 302 and stops the chain.
type httpNavigator struct {
	c    *gin.Context
	opts notify.CookieOptions
}

func (n httpNavigator) Navigate(target string) {
	n.c.Redirect(http.StatusFound, target)
	n.c.Abort()
}

func (n httpNavigator) NavigateWithHint(target string, hint authctx.Hint) {
	if hint.From != "" {
		notify.SetLoginHint(n.c.Writer, hint.From, n.opts)
	}
	n.Navigate(target)
}

// NewNavigator exposes the redirecting navigator to handlers.
func NewNavigator(c *gin.Context, opts notify.CookieOptions) interface {
	authctx.Navigator
	authctx.HintNavigator
} {
	return httpNavigator{c: c, opts: opts}
}

// Waiting renders the neutral placeholder used while the session is still
// loading. No decision is made and no redirect is issued.
func Waiting(c *gin.Context) {
	c.Header("Retry-After", "1")
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
		"status": "loading",
	})
}

// RequireAuth redirects signed-out requests to the sign-in page carrying
// the requested URI. A request without the active session's cookie is
// signed out whatever the process-wide state says.
func RequireAuth(sessions *Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.State(c.Request)
		if s.IsLoading {
			Waiting(c)
			return
		}

		nav := httpNavigator{c: c}
		if !authctx.RequireAuthentication(s, nav, c.Request.URL.RequestURI()) {
			return
		}

		c.Request = c.Request.WithContext(withIdentity(c.Request.Context(), *s.Identity))
		c.Next()
	}
}

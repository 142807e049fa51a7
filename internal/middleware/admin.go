package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wayfarer/internal/auth"
	"wayfarer/internal/authctx"
	"wayfarer/internal/gate"
	"wayfarer/internal/logger"
)

const adminDeniedMessage = "You need administrator access to view that page."

// Decision is the outcome of the admin guard for one request.
type Decision int

const (
	DecisionWait Decision = iota
	DecisionAllow
	DecisionDeny
)

// Notifier shows a one-time message on the next page.
type Notifier interface {
	Warn(w http.ResponseWriter, message string)
}

// AdminGuard blocks views that require a privileged identity.
type AdminGuard struct {
	sessions *Sessions
	notifier Notifier
	bypass   bool
}

// NewAdminGuard builds the guard. bypass disables the privilege check
// entirely and is meant for local development only.
func NewAdminGuard(sessions *Sessions, notifier Notifier, bypass bool) *AdminGuard {
	if bypass {
		logger.Warn("ADMIN GUARD BYPASS ENABLED: every request is treated as privileged", map[string]any{
			"setting": "DEV_ADMIN_BYPASS",
		})
	}
	return &AdminGuard{
		sessions: sessions,
		notifier: notifier,
		bypass:   bypass,
	}
}

// Decide classifies a session state for a guarded view.
func (g *AdminGuard) Decide(s auth.SessionState) Decision {
	if g.bypass {
		return DecisionAllow
	}
	if s.IsLoading {
		return DecisionWait
	}
	if gate.Classify(s.Identity, g.sessions.Allowlist()) != gate.Privileged {
		return DecisionDeny
	}
	return DecisionAllow
}

func (g *AdminGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := g.sessions.State(c.Request)

		switch g.Decide(s) {
		case DecisionWait:
			Waiting(c)
			return
		case DecisionDeny:
			fields := map[string]any{"path": c.Request.URL.Path}
			if s.Identity != nil {
				fields["user_id"] = s.Identity.ID
			}
			logger.Info("admin access denied", fields)

			if g.notifier != nil {
				g.notifier.Warn(c.Writer, adminDeniedMessage)
			}
			c.Redirect(http.StatusFound, authctx.HomePath)
			c.Abort()
			return
		}

		if g.bypass {
			logger.Warn("admin guard bypassed", map[string]any{
				"path": c.Request.URL.Path,
			})
		}
		if s.Identity != nil {
			c.Request = c.Request.WithContext(withIdentity(c.Request.Context(), *s.Identity))
		}
		c.Next()
	}
}

package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"wayfarer/internal/auth"
	"wayfarer/internal/auth/provider"
	"wayfarer/internal/auth/resolver"
	"wayfarer/internal/authctx"
	"wayfarer/internal/logger"
	"wayfarer/internal/notify"
	"wayfarer/internal/session"
)

// SessionIssuer starts and ends the provider session. idp.Hub implements it.
type SessionIssuer interface {
	SignIn(ctx context.Context, identity auth.Identity) (session.Session, error)
	SignOut(ctx context.Context) error
	Owns(sessionID string) bool
}

// Credentials is the password sign-in backend.
type Credentials interface {
	Register(ctx context.Context, email, password string) (auth.Identity, error)
	Authenticate(ctx context.Context, email, password string) (auth.Identity, error)
}

type Handler struct {
	providers   *provider.Registry
	resolver    resolver.Resolver
	credentials Credentials
	sessions    SessionIssuer
	cookies     notify.CookieOptions
}

func NewHandler(
	registry *provider.Registry,
	resolver resolver.Resolver,
	credentials Credentials,
	sessions SessionIssuer,
	cookies notify.CookieOptions,
) *Handler {
	return &Handler{
		providers:   registry,
		resolver:    resolver,
		credentials: credentials,
		sessions:    sessions,
		cookies:     cookies,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET(authctx.LoginPath, h.LoginPage)
	r.GET("/oauth/login/:provider", h.login)
	r.GET("/oauth/callback/:provider", h.callback)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/register", h.Register)
	r.POST("/auth/logout", h.Logout)
}

type providerLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// LoginPage describes the available sign-in methods. The post-login target
// comes from ?redirect= or, failing that, the remembered sign-in origin.
func (h *Handler) LoginPage(c *gin.Context) {
	target := c.Query("redirect")
	if target == "" {
		if from, ok := notify.PopLoginHint(c.Writer, c.Request, h.cookies); ok {
			target = from
		}
	}
	target = safeRedirect(target)

	links := make([]providerLink, 0, len(h.providers.Names()))
	for _, name := range h.providers.Names() {
		link := "/oauth/login/" + url.PathEscape(name)
		if target != authctx.HomePath {
			link += "?redirect=" + url.QueryEscape(target)
		}
		links = append(links, providerLink{Name: name, URL: link})
	}

	c.JSON(http.StatusOK, gin.H{
		"providers": links,
		"password":  h.credentials != nil,
		"redirect":  target,
	})
}

func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	state, err := generateState(c, h.cookies.Secure)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}
	_, codeChallenge, err := generatePKCE(c, h.cookies.Secure)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}

	if target := c.Query("redirect"); target != "" {
		notify.SetLoginHint(c.Writer, safeRedirect(target), h.cookies)
	}

	c.Redirect(http.StatusFound, p.AuthCodeURL(state, codeChallenge))
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	if !validateState(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid state",
		})
		return
	}

	// The provider reported an error, e.g. the user cancelled consent.
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"provider": providerName,
			"error":    errParam,
			"desc":     c.Query("error_description"),
		})
		c.Redirect(http.StatusFound, authctx.LoginPath)
		return
	}

	code := c.Query("code")
	if code == "" {
		logger.Error("oidc callback missing code and error", nil)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	codeVerifier := getPKCEVerifier(c)
	if codeVerifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing pkce verifier",
		})
		return
	}

	claims, err := p.ExchangeCode(
		c.Request.Context(),
		code,
		codeVerifier,
	)
	if err != nil {
		logger.Warn("oidc code exchange failed", map[string]any{
			"provider": providerName,
			"error":    err.Error(),
		})
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return
	}

	userID, err := h.resolver.Resolve(c.Request.Context(), claims)
	if err != nil {
		logger.Error("user resolution failed", map[string]any{
			"provider": providerName,
			"error":    err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to resolve user",
		})
		return
	}

	if err := h.startSession(c, claims.Identity(userID)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to persist session",
		})
		return
	}

	logger.Info("login success", map[string]any{
		"user_id":  userID,
		"provider": providerName,
		"ip":       c.ClientIP(),
	})

	c.Redirect(http.StatusFound, h.postLoginTarget(c, ""))
}

// Logout ends the active session only for the browser holding it. Other
// callers just get their stale cookie cleared.
func (h *Handler) Logout(c *gin.Context) {
	sessionID, ok := session.ReadCookie(c.Request, h.sessionCookie())
	if ok && h.sessions.Owns(sessionID) {
		if err := h.sessions.SignOut(c.Request.Context()); err != nil {
			// The hub already dropped the session in memory; the store
			// failure only affects the next restart.
			logger.Warn("logout store cleanup failed", map[string]any{
				"error": err.Error(),
			})
		}

		logger.Info("logout", map[string]any{
			"ip": c.ClientIP(),
		})
	}

	if ok {
		session.ClearCookie(c.Writer, h.sessionCookie())
	}

	// Idempotent response
	c.Status(http.StatusNoContent)
}

// startSession signs identity in and binds this browser to the session.
func (h *Handler) startSession(c *gin.Context, identity auth.Identity) error {
	s, err := h.sessions.SignIn(c.Request.Context(), identity)
	if err != nil {
		logger.Error("session start failed", map[string]any{
			"user_id": identity.ID,
			"error":   err.Error(),
		})
		return err
	}
	session.SetCookie(c.Writer, s, h.sessionCookie())
	return nil
}

func (h *Handler) sessionCookie() session.CookieOptions {
	return session.CookieOptions{Secure: h.cookies.Secure}
}

// postLoginTarget picks where to send the user after sign-in.
func (h *Handler) postLoginTarget(c *gin.Context, requested string) string {
	if requested != "" {
		return safeRedirect(requested)
	}
	if from, ok := notify.PopLoginHint(c.Writer, c.Request, h.cookies); ok {
		return safeRedirect(from)
	}
	return authctx.HomePath
}

// safeRedirect only allows same-origin absolute paths.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return authctx.HomePath
	}
	return target
}

package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"wayfarer/internal/auth/handler"
	"wayfarer/internal/authctx"
	"wayfarer/internal/gate"
	"wayfarer/internal/itinerary"
	"wayfarer/internal/middleware"
	"wayfarer/internal/notify"
	"wayfarer/internal/stream"
)

// healthCheck pings one backing service.
type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

// components are the wired parts the router serves.
type components struct {
	sessions *middleware.Sessions
	auth     *handler.Handler
	stream   *stream.Server
	guard    *middleware.AdminGuard
	drafter  *itinerary.Drafter
	cookies  notify.CookieOptions
	health   []healthCheck
}

func newRouter(c components) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	flash := notify.Flash{Options: c.cookies}

	// ----------------------------
	// Public Routes
	// ----------------------------

	c.auth.RegisterRoutes(router)

	router.GET("/health", func(ctx *gin.Context) {
		status := http.StatusOK
		checks := gin.H{}
		for _, h := range c.health {
			if err := h.check(ctx.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				checks[h.name] = err.Error()
				continue
			}
			checks[h.name] = "ok"
		}
		ctx.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
	})

	// Declarative sign-in prompt: remembers the origin in a hint cookie.
	router.GET("/signin", func(ctx *gin.Context) {
		nav := middleware.NewNavigator(ctx, c.cookies)
		if authctx.PromptSignIn(c.sessions.State(ctx.Request), nav, ctx.Query("from")) {
			ctx.Redirect(http.StatusFound, authctx.HomePath)
		}
	})

	// ----------------------------
	// Session API
	// ----------------------------

	api := router.Group("/api")

	api.GET("/session", c.stream.Snapshot)
	api.GET("/session/ws", c.stream.HandleWebSocket)

	api.GET("/notifications", func(ctx *gin.Context) {
		n, ok := flash.Pop(ctx.Writer, ctx.Request)
		if !ok {
			ctx.Status(http.StatusNoContent)
			return
		}
		ctx.JSON(http.StatusOK, n)
	})

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	protected := api.Group("")
	protected.Use(middleware.RequireAuth(c.sessions))

	protected.GET("/me", func(ctx *gin.Context) {
		s := c.sessions.State(ctx.Request)
		ctx.JSON(http.StatusOK, gin.H{
			"identity": s.Identity,
			"profile":  s.Profile,
			"level":    gate.Classify(s.Identity, c.sessions.Allowlist()).String(),
		})
	})

	protected.POST("/itineraries", itinerary.Handler(c.drafter))

	// ----------------------------
	// Admin Routes
	// ----------------------------

	admin := router.Group("/admin")
	admin.Use(c.guard.Handler())

	admin.GET("/overview", func(ctx *gin.Context) {
		s := c.sessions.State(ctx.Request)
		ctx.JSON(http.StatusOK, gin.H{
			"identity":        s.Identity,
			"profile":         s.Profile,
			"level":           gate.Classify(s.Identity, c.sessions.Allowlist()).String(),
			"stream_clients":  c.stream.ClientCount(),
			"admin_allowlist": allowlistStrings(c.sessions.Allowlist()),
		})
	})

	return router
}

func allowlistStrings(list gate.Allowlist) []string {
	out := make([]string, 0, len(list))
	for _, m := range list {
		out = append(out, m.String())
	}
	return out
}

package app

import (
	"context"

	"github.com/gin-gonic/gin"

	"wayfarer/internal/auth/credentials"
	"wayfarer/internal/auth/handler"
	"wayfarer/internal/auth/provider"
	"wayfarer/internal/auth/provider/google"
	"wayfarer/internal/auth/provider/keycloak"
	"wayfarer/internal/auth/resolver"
	"wayfarer/internal/authctx"
	"wayfarer/internal/config"
	"wayfarer/internal/gate"
	"wayfarer/internal/idp"
	"wayfarer/internal/itinerary"
	"wayfarer/internal/logger"
	"wayfarer/internal/middleware"
	"wayfarer/internal/notify"
	"wayfarer/internal/observer"
	"wayfarer/internal/profile"
	"wayfarer/internal/session"
	"wayfarer/internal/stream"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	fail := func(err error) (*gin.Engine, func() error, error) {
		_ = infra.Close()
		return nil, nil, err
	}

	// ----------------------------
	// Identity provider
	// ----------------------------

	hub := idp.NewHub(session.NewRedisStore(infra.Redis.Client), cfg.SessionTTL)
	if err := hub.Restore(ctx); err != nil {
		return fail(err)
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	go hub.Watch(watchCtx, cfg.SessionCheckInterval)

	// ----------------------------
	// Session state
	// ----------------------------

	allowlist, err := gate.ParseAllowlist(cfg.AdminAllowlist)
	if err != nil {
		stopWatch()
		hub.Close()
		return fail(err)
	}

	documents := profile.NewCachedStore(
		profile.NewPostgresStore(infra.DB),
		cfg.ProfileCacheSize,
		cfg.ProfileCacheTTL,
	)

	// A new sign-in always reads the stored profile, never a cached copy.
	stopInvalidate := hub.OnSessionChange(func(ev idp.Event) {
		if ev.Identity != nil {
			documents.Invalidate(profile.UsersCollection, ev.Identity.ID)
		}
	})

	sessions := authctx.New(
		observer.New(hub),
		profile.NewResolver(documents),
		allowlist,
	)
	sessions.Start()

	// ----------------------------
	// Sign-in
	// ----------------------------

	providers, err := setupProviders(ctx, cfg)
	if err != nil {
		sessions.Close()
		stopWatch()
		hub.Close()
		return fail(err)
	}

	cookies := notify.CookieOptions{Secure: cfg.CookieSecure}

	// Only the browser holding the session cookie sees the signed-in state.
	scoped := middleware.NewSessions(sessions, hub, session.CookieOptions{Secure: cfg.CookieSecure})

	authHandler := handler.NewHandler(
		provider.NewRegistry(providers...),
		resolver.NewDBResolver(infra.DB),
		credentials.NewService(infra.DB),
		hub,
		cookies,
	)

	// ----------------------------
	// Itineraries
	// ----------------------------

	var generator itinerary.Generator
	if cfg.GenerativeAPIKey != "" {
		client, err := itinerary.NewGeminiClient(cfg.GenerativeAPIURL, cfg.GenerativeAPIKey, cfg.GenerativeAPIModel)
		if err != nil {
			sessions.Close()
			stopWatch()
			hub.Close()
			return fail(err)
		}
		generator = client
	} else {
		logger.Info("generative api not configured, itineraries use the fallback template", nil)
	}

	sessionStream := stream.NewServer(sessions, scoped)

	router := newRouter(components{
		sessions: scoped,
		auth:     authHandler,
		stream:   sessionStream,
		guard:    middleware.NewAdminGuard(scoped, notify.Flash{Options: cookies}, cfg.DevAdminBypass),
		drafter:  itinerary.NewDrafter(generator),
		cookies:  cookies,
		health: []healthCheck{
			{name: "postgres", check: infra.DB.PingContext},
			{name: "redis", check: infra.Redis.Ping},
		},
	})

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func() error {
		sessionStream.Close()
		sessions.Close()
		stopInvalidate()
		stopWatch()
		hub.Close()
		return infra.Close()
	}, nil
}

// setupProviders builds the OAuth providers that are configured. A provider
// with no client id is skipped.
func setupProviders(ctx context.Context, cfg config.Config) ([]provider.OAuthProvider, error) {
	var providers []provider.OAuthProvider

	if cfg.GoogleClientID != "" {
		googleProvider, err := google.New(
			ctx,
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleRedirectURL,
		)
		if err != nil {
			return nil, err
		}
		providers = append(providers, googleProvider)
	}

	if cfg.KeycloakClientID != "" {
		keycloakProvider, err := keycloak.New(
			ctx,
			cfg.KeycloakIssuer,
			cfg.KeycloakClientID,
			cfg.KeycloakRedirectURL,
			cfg.KeycloakPublicBaseURL,
		)
		if err != nil {
			return nil, err
		}
		providers = append(providers, keycloakProvider)
	}

	if len(providers) == 0 {
		logger.Warn("no oauth providers configured, only password sign-in is available", nil)
	}

	return providers, nil
}

package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"wayfarer/internal/auth/provider"
)

const providerName = "keycloak"

// New initializes a Keycloak OIDC client using discovery.
// issuer must be the realm issuer URL, e.g.
// http://keycloak:8080/realms/wayfarer
//
// publicBaseURL replaces the issuer host in the browser-facing authorization
// URL when Keycloak is reached through a different address internally.
func New(
	ctx context.Context,
	issuer string,
	clientID string,
	redirectURL string,
	publicBaseURL string,
) (*provider.OIDCClient, error) {

	if issuer == "" || clientID == "" || redirectURL == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init keycloak oidc provider: %w", err)
	}

	verifier := oidcProvider.Verifier(&oidc.Config{
		ClientID: clientID,
	})

	ep := oidcProvider.Endpoint()
	if publicBaseURL != "" {
		authURL, err := rebase(ep.AuthURL, publicBaseURL)
		if err != nil {
			return nil, err
		}
		ep.AuthURL = authURL
	}

	oauthCfg := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Endpoint:    ep,
		Scopes: []string{
			oidc.ScopeOpenID,
			"email",
			"profile",
		},
	}

	return provider.NewOIDCClient(providerName, oauthCfg, verifier), nil
}

// rebase swaps scheme and host of endpoint for those of base, keeping the
// realm path.
func rebase(endpoint, base string) (string, error) {
	e, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("keycloak: parse auth url: %w", err)
	}
	b, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || b.Host == "" {
		return "", fmt.Errorf("keycloak: invalid public base url %q", base)
	}
	e.Scheme = b.Scheme
	e.Host = b.Host
	return e.String(), nil
}

// Package google implementa el Handler OAuth2/OIDC de Google. Endpoints por
// discovery, client credentials en el form y el perfil remoto sale del
// id_token verificado contra el JWKS, sin round-trip extra.
package google

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/oauth2"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn/internal/providers"
	"github.com/dropDatabas3/hellojohn/internal/providers/oidc"
	"github.com/dropDatabas3/hellojohn/internal/store/core"
)

const (
	ProviderName = "google"

	discoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

	defaultScopes = "openid email profile"
)

// Handler implementa oauth2.Handler para Google.
type Handler struct {
	providers.Base
	deps providers.Deps
	oidc *oidc.Verifier

	clientID     string
	clientSecret string
	redirectURI  string
	scopes       string
}

// Factory construye el handler desde la vista de configuración del proveedor.
func Factory(cfg *oauth2.Configuration, deps providers.Deps) (oauth2.Handler, error) {
	h := &Handler{
		Base:         providers.Base{ProviderID: cfg.Provider(), States: deps.States},
		deps:         deps,
		clientID:     cfg.GetString("client_id"),
		clientSecret: cfg.GetString("client_secret"),
		redirectURI:  cfg.GetString("redirect_uri"),
		scopes:       cfg.GetDefault("scopes", defaultScopes),
	}
	if h.clientID == "" {
		return nil, fmt.Errorf("google: client_id is required")
	}
	if h.clientSecret == "" {
		return nil, fmt.Errorf("google: client_secret is required")
	}
	if h.redirectURI == "" {
		return nil, fmt.Errorf("google: redirect_uri is required")
	}

	h.oidc = oidc.NewVerifier(deps.HTTPClient(), cfg.GetDefault("discovery_url", discoveryURL), h.clientID)
	if iss := cfg.GetString("issuer"); iss != "" {
		h.oidc.ValidIssuer = func(got string) bool { return got == iss }
	} else {
		h.oidc.ValidIssuer = func(got string) bool {
			return got == "https://accounts.google.com" || got == "accounts.google.com"
		}
	}
	return h, nil
}

// Authorize emite el state y arma la URL de consent. access_type=offline y
// prompt=consent fuerzan a Google a emitir refresh token; el nonce del
// id_token se ata al nonce del state.
func (h *Handler) Authorize(ctx context.Context, relay string) (string, error) {
	state, err := h.States.Issue(ctx, relay)
	if err != nil {
		return "", fmt.Errorf("google: issuing state: %w", err)
	}
	authURL, _, err := h.oidc.Endpoints(ctx)
	if err != nil {
		return "", fmt.Errorf("google: discovery: %w", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		return "", fmt.Errorf("google: auth endpoint: %w", err)
	}
	q := u.Query()
	q.Set("client_id", h.clientID)
	q.Set("redirect_uri", h.redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", h.scopes)
	q.Set("state", state)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("nonce", providers.NonceFromState(state))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Authenticate intercambia el code, verifica el id_token y persiste la
// credencial en la cuenta host.
func (h *Handler) Authenticate(ctx context.Context, info *oauth2.AuthInfo) error {
	claims, err := h.deps.Session(info.SessionToken)
	if err != nil {
		return err
	}

	_, tokenURL, err := h.oidc.Endpoints(ctx)
	if err != nil {
		return oauth2.Failure(oauth2.CodeAuthFailed, "provider discovery unavailable", err)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", info.Param("code"))
	form.Set("redirect_uri", h.redirectURI)
	tr, err := providers.Exchange(ctx, h.deps.HTTPClient(), providers.ExchangeRequest{
		Endpoint:     tokenURL,
		Form:         form,
		ClientID:     h.clientID,
		ClientSecret: h.clientSecret,
		Provider:     ProviderName,
		Grant:        "authorization_code",
	})
	if err != nil {
		return err
	}
	if tr.IDToken == "" {
		return oauth2.Failure(oauth2.CodeAuthFailed, "token response without id_token", nil)
	}

	idc, err := h.oidc.Verify(ctx, tr.IDToken, providers.NonceFromState(info.Param("state")))
	if err != nil {
		return oauth2.Failure(oauth2.CodeAuthFailed, "id_token verification failed", err)
	}

	username := idc.Email
	if username == "" {
		username = idc.Sub
	}
	cred := &core.Credential{
		AccountID:    claims.AccountID,
		Provider:     ProviderName,
		RemoteID:     idc.Sub,
		Username:     username,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Scopes:       tr.ScopeList(),
		ExpiresAt:    tr.ExpiryTime(time.Now()),
	}
	if err := h.deps.Store.Upsert(ctx, cred); err != nil {
		return oauth2.Failure(oauth2.CodeAuthFailed, "storing credential failed", err)
	}
	info.Username = cred.Username

	logger.From(ctx).Info("external account linked",
		logger.Provider(ProviderName), logger.Account(claims.AccountID), logger.Username(cred.Username))
	h.deps.Audit(ctx, "credential_linked", cred)
	h.deps.Notify(cred, claims.Email)
	return nil
}

// Refresh re-intercambia el refresh token guardado. Google no rota el refresh
// token en cada uso: la respuesta suele venir sin él y se conserva el actual.
func (h *Handler) Refresh(ctx context.Context, info *oauth2.AuthInfo) (bool, error) {
	claims, err := h.deps.Session(info.SessionToken)
	if err != nil {
		return false, err
	}

	cred, err := h.deps.Store.GetByAccountProvider(ctx, claims.AccountID, ProviderName, info.Username)
	if err != nil {
		return false, oauth2.Failure(oauth2.CodeAuthFailed, "no linked credential for that username", err)
	}
	if cred.RefreshToken == "" {
		return false, oauth2.Failure(oauth2.CodeAuthFailed, "stored credential has no refresh token", nil)
	}

	_, tokenURL, err := h.oidc.Endpoints(ctx)
	if err != nil {
		return false, oauth2.Failure(oauth2.CodeAuthFailed, "provider discovery unavailable", err)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	tr, err := providers.Exchange(ctx, h.deps.HTTPClient(), providers.ExchangeRequest{
		Endpoint:     tokenURL,
		Form:         form,
		ClientID:     h.clientID,
		ClientSecret: h.clientSecret,
		Provider:     ProviderName,
		Grant:        "refresh_token",
	})
	if err != nil {
		return false, err
	}

	if err := h.deps.Store.Touch(ctx, cred.ID, tr.AccessToken, tr.RefreshToken, tr.ExpiryTime(time.Now())); err != nil {
		return false, oauth2.Failure(oauth2.CodeAuthFailed, "updating credential failed", err)
	}

	logger.From(ctx).Info("credential refreshed",
		logger.Provider(ProviderName), logger.Account(claims.AccountID), logger.Username(cred.Username))
	return true, nil
}

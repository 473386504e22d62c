// Package yahoo implementa el Handler OAuth2 de Yahoo. Endpoints fijos,
// credenciales de cliente por Basic auth en el token endpoint y perfil remoto
// via el userinfo OIDC.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/oauth2"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn/internal/providers"
	"github.com/dropDatabas3/hellojohn/internal/store/core"
)

const (
	ProviderName = "yahoo"

	authEndpoint     = "https://api.login.yahoo.com/oauth2/request_auth"
	tokenEndpoint    = "https://api.login.yahoo.com/oauth2/get_token"
	userinfoEndpoint = "https://api.login.yahoo.com/openid/v1/userinfo"

	defaultScopes = "openid email profile"
)

// Handler implementa oauth2.Handler para Yahoo.
type Handler struct {
	providers.Base
	deps providers.Deps

	clientID     string
	clientSecret string
	redirectURI  string
	scopes       string

	// Sobreescribibles en tests.
	authURL     string
	tokenURL    string
	userinfoURL string
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
		authURL:      cfg.GetDefault("auth_endpoint", authEndpoint),
		tokenURL:     cfg.GetDefault("token_endpoint", tokenEndpoint),
		userinfoURL:  cfg.GetDefault("userinfo_endpoint", userinfoEndpoint),
	}
	if h.clientID == "" {
		return nil, fmt.Errorf("yahoo: client_id is required")
	}
	if h.clientSecret == "" {
		return nil, fmt.Errorf("yahoo: client_secret is required")
	}
	if h.redirectURI == "" {
		return nil, fmt.Errorf("yahoo: redirect_uri is required")
	}
	return h, nil
}

// Authorize emite el state y arma la URL del consent de Yahoo.
func (h *Handler) Authorize(ctx context.Context, relay string) (string, error) {
	state, err := h.States.Issue(ctx, relay)
	if err != nil {
		return "", fmt.Errorf("yahoo: issuing state: %w", err)
	}
	u, err := url.Parse(h.authURL)
	if err != nil {
		return "", fmt.Errorf("yahoo: auth endpoint: %w", err)
	}
	q := u.Query()
	q.Set("client_id", h.clientID)
	q.Set("redirect_uri", h.redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", h.scopes)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Authenticate intercambia el code, resuelve el perfil remoto y persiste la
// credencial en la cuenta host.
func (h *Handler) Authenticate(ctx context.Context, info *oauth2.AuthInfo) error {
	claims, err := h.deps.Session(info.SessionToken)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", info.Param("code"))
	form.Set("redirect_uri", h.redirectURI)
	tr, err := providers.Exchange(ctx, h.deps.HTTPClient(), providers.ExchangeRequest{
		Endpoint:     h.tokenURL,
		Form:         form,
		BasicAuth:    true,
		ClientID:     h.clientID,
		ClientSecret: h.clientSecret,
		Provider:     ProviderName,
		Grant:        "authorization_code",
	})
	if err != nil {
		return err
	}

	profile, err := h.userinfo(ctx, tr.AccessToken)
	if err != nil {
		return oauth2.Failure(oauth2.CodeAuthFailed, "fetching remote profile failed", err)
	}
	if profile.Sub == "" {
		return oauth2.Failure(oauth2.CodeAuthFailed, "remote profile without subject", nil)
	}

	cred := &core.Credential{
		AccountID:    claims.AccountID,
		Provider:     ProviderName,
		RemoteID:     profile.Sub,
		Username:     profile.username(),
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

// Refresh re-intercambia el refresh token guardado de (cuenta, username).
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

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("redirect_uri", h.redirectURI)
	tr, err := providers.Exchange(ctx, h.deps.HTTPClient(), providers.ExchangeRequest{
		Endpoint:     h.tokenURL,
		Form:         form,
		BasicAuth:    true,
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

// userProfile es la respuesta del userinfo de Yahoo.
type userProfile struct {
	Sub       string `json:"sub"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Nickname  string `json:"nickname"`
	GivenName string `json:"given_name"`
}

func (p *userProfile) username() string {
	if p.Email != "" {
		return p.Email
	}
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.Sub
}

func (h *Handler) userinfo(ctx context.Context, accessToken string) (*userProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.userinfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := h.deps.HTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("userinfo http %d", resp.StatusCode)
	}
	var p userProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/metrics"
	"github.com/dropDatabas3/hellojohn/internal/oauth2"
)

// TokenResponse es la respuesta del token endpoint, común a los grants
// authorization_code y refresh_token. Los campos error vienen en el mismo
// body cuando el proveedor rechaza el grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorDesc string `json:"error_description,omitempty"`
}

// ExpiryTime convierte expires_in en un instante absoluto. Nil si el
// proveedor no informó expiración.
func (t *TokenResponse) ExpiryTime(now time.Time) *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	e := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	return &e
}

// ScopeList separa el scope del proveedor (espacio o coma según el dialecto).
func (t *TokenResponse) ScopeList() []string {
	return strings.FieldsFunc(t.Scope, func(r rune) bool { return r == ' ' || r == ',' })
}

// ExchangeRequest describe un POST form-urlencoded al token endpoint.
type ExchangeRequest struct {
	Endpoint string
	Form     url.Values

	// BasicAuth manda las credenciales de cliente en el header Authorization
	// en lugar del form (dialecto Yahoo). Sino van como client_id/client_secret.
	BasicAuth    bool
	ClientID     string
	ClientSecret string

	Provider string // label de métricas
	Grant    string // "authorization_code" | "refresh_token"
}

// Exchange ejecuta el POST y decodifica la respuesta. Un rechazo del grant se
// clasifica: errores de consentimiento/grant son denegación (PermDenied);
// problemas de red, decode o del servidor son fallos genéricos.
func Exchange(ctx context.Context, hc *http.Client, req ExchangeRequest) (*TokenResponse, error) {
	form := url.Values{}
	for k, vs := range req.Form {
		form[k] = vs
	}
	if !req.BasicAuth {
		form.Set("client_id", req.ClientID)
		form.Set("client_secret", req.ClientSecret)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, oauth2.Failure(oauth2.CodeAuthFailed, "building token request failed", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if req.BasicAuth {
		httpReq.SetBasicAuth(req.ClientID, req.ClientSecret)
	}

	start := time.Now()
	resp, err := hc.Do(httpReq)
	elapsed := time.Since(start)
	metrics.ExchangeLatency.WithLabelValues(req.Provider, req.Grant).Observe(float64(elapsed.Milliseconds()))
	if err != nil {
		return nil, oauth2.Failure(oauth2.CodeAuthFailed, "token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, oauth2.Failure(oauth2.CodeAuthFailed,
			fmt.Sprintf("token endpoint returned http %d with undecodable body", resp.StatusCode), err)
	}

	if tr.Error != "" {
		if grantDenied(tr.Error) {
			return nil, oauth2.PermDenied(providerErrorMessage(&tr), nil)
		}
		return nil, oauth2.Failure(tr.Error, providerErrorMessage(&tr), nil)
	}
	if resp.StatusCode/100 != 2 {
		return nil, oauth2.Failure(oauth2.CodeAuthFailed,
			fmt.Sprintf("token endpoint returned http %d", resp.StatusCode), nil)
	}
	if tr.AccessToken == "" {
		return nil, oauth2.Failure(oauth2.CodeAuthFailed, "token response without access_token", nil)
	}
	return &tr, nil
}

// grantDenied reporta si el código OAuth2 del proveedor significa que el
// usuario o el proveedor negó el acceso (vs. un problema operativo nuestro).
func grantDenied(code string) bool {
	switch code {
	case "access_denied", "invalid_grant", "unauthorized_client", "consent_required", "interaction_required":
		return true
	}
	return false
}

func providerErrorMessage(tr *TokenResponse) string {
	if tr.ErrorDesc != "" {
		return tr.ErrorDesc
	}
	return tr.Error
}

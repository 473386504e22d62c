// Package credentials expone la gestión de cuentas vinculadas: listado y
// desvinculación. Siempre en nombre de la cuenta de la sesión host.
package credentials

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/hellojohn/internal/audit"
	httpx "github.com/dropDatabas3/hellojohn/internal/http"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn/internal/security/session"
	"github.com/dropDatabas3/hellojohn/internal/store/core"
	"github.com/dropDatabas3/hellojohn/internal/util"
)

type Controller struct {
	store         core.CredentialStore
	sessions      *session.Verifier
	sessionCookie string
	allowBearer   bool
}

type Options struct {
	SessionCookie string
	AllowBearer   bool
}

func New(store core.CredentialStore, sessions *session.Verifier, opts Options) *Controller {
	cookie := opts.SessionCookie
	if cookie == "" {
		cookie = httpx.DefaultSessionCookie
	}
	return &Controller{store: store, sessions: sessions, sessionCookie: cookie, allowBearer: opts.AllowBearer}
}

// Register monta las rutas de gestión de credenciales.
func (c *Controller) Register(r chi.Router) {
	r.Get("/oauth2/credentials", c.List)
	r.Delete("/oauth2/credentials/{provider}/{username}", c.Delete)
}

// credentialView es la proyección pública de una credencial. Los tokens no
// salen del proceso: solo metadata de la vinculación.
type credentialView struct {
	Provider   string     `json:"provider"`
	Username   string     `json:"username"`
	RemoteID   string     `json:"remote_id"`
	Scopes     []string   `json:"scopes"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastAuthAt *time.Time `json:"last_auth_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Expired    bool       `json:"expired"`
	CanRefresh bool       `json:"can_refresh"`
}

// List maneja GET /oauth2/credentials.
func (c *Controller) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("credentials.List"))

	claims, ok := c.authenticate(w, r)
	if !ok {
		return
	}

	creds, err := c.store.ListByAccount(ctx, claims.AccountID)
	if err != nil {
		log.Error("list credentials failed", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not list credentials", httpx.CodeNumInternal)
		return
	}

	now := time.Now()
	views := make([]credentialView, 0, len(creds))
	for i := range creds {
		cr := &creds[i]
		views = append(views, credentialView{
			Provider:   cr.Provider,
			Username:   cr.Username,
			RemoteID:   cr.RemoteID,
			Scopes:     cr.Scopes,
			ExpiresAt:  cr.ExpiresAt,
			LastAuthAt: cr.LastAuthAt,
			CreatedAt:  cr.CreatedAt,
			Expired:    cr.Expired(now),
			CanRefresh: cr.RefreshToken != "",
		})
	}

	log.Info("credentials listed", logger.Account(claims.AccountID), logger.Count(len(views)))
	httpx.WriteData(w, http.StatusOK, views)
}

// Delete maneja DELETE /oauth2/credentials/{provider}/{username}.
func (c *Controller) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")
	username := chi.URLParam(r, "username")
	if u, err := url.PathUnescape(username); err == nil {
		username = u
	}
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("credentials.Delete"), logger.Provider(provider))

	claims, ok := c.authenticate(w, r)
	if !ok {
		return
	}

	if err := c.store.Delete(ctx, claims.AccountID, provider, username); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "no linked credential matched", httpx.CodeNumNotFound)
			return
		}
		log.Error("delete credential failed", logger.Username(util.MaskIdentity(username)), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not unlink credential", httpx.CodeNumInternal)
		return
	}

	log.Info("credential unlinked", logger.Account(claims.AccountID), logger.Username(util.MaskIdentity(username)))
	audit.Log(r.Context(), "credential_unlinked", map[string]any{
		"account": claims.AccountID, "provider": provider, "username": util.MaskIdentity(username),
	})
	w.WriteHeader(http.StatusNoContent)
}

// authenticate exige una sesión host válida; responde 401 si falta o no
// verifica. El motivo exacto no se ecoa, queda en logs.
func (c *Controller) authenticate(w http.ResponseWriter, r *http.Request) (*session.Claims, bool) {
	token := httpx.SessionFromRequest(r, c.sessionCookie, c.allowBearer)
	claims, err := c.sessions.Verify(token)
	if err != nil {
		logger.From(r.Context()).Info("request without valid host session", logger.Layer("controller"))
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "a valid host session is required", httpx.CodeNumUnauthorized)
		return nil, false
	}
	return claims, true
}

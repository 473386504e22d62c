// Package flow expone el flujo OAuth2 del broker sobre HTTP: inicio de
// autorización, callback del proveedor y refresh server-to-server.
package flow

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	httpx "github.com/dropDatabas3/hellojohn/internal/http"
	"github.com/dropDatabas3/hellojohn/internal/oauth2"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
)

// Controller traduce requests HTTP a llamadas del orquestador. No contiene
// lógica de flujo: mapea params, sesión y errores, nada más.
type Controller struct {
	svc           *oauth2.Service
	sessionCookie string
	allowBearer   bool
}

// Options ajusta de dónde sale el token de sesión host.
type Options struct {
	SessionCookie string
	AllowBearer   bool
}

func New(svc *oauth2.Service, opts Options) *Controller {
	cookie := opts.SessionCookie
	if cookie == "" {
		cookie = httpx.DefaultSessionCookie
	}
	return &Controller{svc: svc, sessionCookie: cookie, allowBearer: opts.AllowBearer}
}

// Register monta las rutas del flujo.
func (c *Controller) Register(r chi.Router) {
	r.Get("/oauth2/authorize/{provider}", c.Authorize)
	r.Get("/oauth2/authenticate/{provider}", c.Authenticate)
	r.Post("/oauth2/refresh/{provider}/{username}", c.Refresh)
}

// Authorize maneja GET /oauth2/authorize/{provider}?relay=...
// Redirige 303 al proveedor; fallos de resolución salen como JSON.
func (c *Controller) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("flow.Authorize"), logger.Provider(provider))

	location, err := c.svc.Authorize(ctx, provider, r.URL.Query().Get("relay"))
	if err != nil {
		writeResolveError(w, log, err)
		return
	}

	http.Redirect(w, r, location, http.StatusSeeOther)
}

// Authenticate maneja GET /oauth2/authenticate/{provider}: el callback que el
// proveedor invoca tras el consentimiento. Resuelto el handler, la respuesta
// es siempre un 303 al relay; los errores del flujo viajan en el query.
func (c *Controller) Authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("flow.Authenticate"), logger.Provider(provider))

	session := httpx.SessionFromRequest(r, c.sessionCookie, c.allowBearer)

	location, err := c.svc.Authenticate(ctx, provider, r.URL.Query(), session)
	if err != nil {
		writeResolveError(w, log, err)
		return
	}

	http.Redirect(w, r, location, http.StatusSeeOther)
}

// Refresh maneja POST /oauth2/refresh/{provider}/{username}. Llamada
// server-to-server: la respuesta es un envelope JSON, nunca un redirect.
func (c *Controller) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")
	username := chi.URLParam(r, "username")
	// chi rutea sobre RawPath: el username puede venir con el @ escapado
	if u, err := url.PathUnescape(username); err == nil {
		username = u
	}
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("flow.Refresh"), logger.Provider(provider))

	session := httpx.SessionFromRequest(r, c.sessionCookie, c.allowBearer)

	result, err := c.svc.Refresh(ctx, provider, username, session)
	if err != nil {
		if oauth2.IsInvalidClient(err) || oauth2.IsConfiguration(err) {
			writeResolveError(w, log, err)
			return
		}
		if fe, ok := oauth2.AsFlow(err); ok {
			if fe.PermDenied {
				httpx.WriteError(w, http.StatusUnauthorized, oauth2.CodeAccessDenied, fe.Message, httpx.CodeNumUnauthorized)
				return
			}
			httpx.WriteError(w, http.StatusBadGateway, fe.Code, fe.Message, httpx.CodeNumFlowFailed)
			return
		}
		log.Error("refresh failed with unclassified error", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "refresh failed", httpx.CodeNumInternal)
		return
	}

	httpx.WriteData(w, http.StatusOK, result)
}

// writeResolveError mapea fallos de resolución de handler. El detalle crudo
// ya quedó en los logs del registry; al caller solo le llega la clase.
func writeResolveError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case oauth2.IsInvalidClient(err):
		httpx.WriteError(w, http.StatusNotFound, "invalid_client", "unknown oauth2 provider", httpx.CodeNumInvalidClient)
	case oauth2.IsConfiguration(err):
		httpx.WriteError(w, http.StatusInternalServerError, "configuration_error", "provider configuration invalid", httpx.CodeNumConfiguration)
	default:
		log.Error("unexpected resolve error", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "", httpx.CodeNumInternal)
	}
}

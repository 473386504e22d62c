// Package providers contiene el registry de handlers OAuth2 y la
// infraestructura que comparten las implementaciones por proveedor: el codec
// de state nonces, el cliente del token endpoint y el esqueleto común del
// flujo authorization-code. Cada proveedor concreto vive en su sub-paquete.
package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/audit"
	"github.com/dropDatabas3/hellojohn/internal/email"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn/internal/oauth2"
	"github.com/dropDatabas3/hellojohn/internal/security/session"
	"github.com/dropDatabas3/hellojohn/internal/store/core"
	"github.com/dropDatabas3/hellojohn/internal/util"
)

// Factory construye el Handler de un proveedor a partir de su vista de
// configuración y las dependencias compartidas. Se registra una por
// implementation id en el bootstrap.
type Factory func(cfg *oauth2.Configuration, deps Deps) (oauth2.Handler, error)

// Deps agrupa las dependencias que reciben los factories. Una instancia por
// proceso, armada en el bootstrap.
type Deps struct {
	Store    core.CredentialStore
	States   *StateCodec
	Sessions *session.Verifier
	HTTP     *http.Client // nil usa un cliente con timeout de 10s
	Notifier email.Sender // nil deshabilita avisos
}

// HTTPClient retorna el cliente HTTP compartido, o uno con timeout razonable.
func (d Deps) HTTPClient() *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Session valida el credencial de sesión del host y retorna la identidad.
// Un token inválido clasifica como denegación: sin identidad host no hay a
// qué cuenta colgar la credencial.
func (d Deps) Session(token string) (*session.Claims, error) {
	if d.Sessions == nil {
		return nil, oauth2.Failure(oauth2.CodeAuthFailed, "session verifier not configured", nil)
	}
	claims, err := d.Sessions.Verify(token)
	if err != nil {
		return nil, oauth2.PermDenied("invalid host session", err)
	}
	return claims, nil
}

// Audit registra el evento de vínculo en el canal de auditoría, con el
// username enmascarado.
func (d Deps) Audit(ctx context.Context, event string, cred *core.Credential) {
	audit.Log(ctx, event, map[string]any{
		"account": cred.AccountID, "provider": cred.Provider, "username": util.MaskIdentity(cred.Username),
	})
}

// Notify dispara el aviso de cuenta vinculada en background. Nil-safe y
// fire-and-forget: un fallo se loguea y nunca corta el flujo.
func (d Deps) Notify(cred *core.Credential, to string) {
	if d.Notifier == nil || to == "" {
		return
	}
	provider, username := cred.Provider, cred.Username
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.Notifier.SendAccountLinked(ctx, to, provider, username); err != nil {
			logger.L().Warn("account linked notice failed",
				logger.Provider(provider), logger.Username(username), logger.Err(err))
		}
	}()
}

package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/hellojohn/internal/oauth2"
)

// Base implementa la porción del contrato Handler común al flujo
// authorization-code: claves del callback, verificación de params y rescate
// del relay. Los sub-paquetes por proveedor la embeben y aportan
// Authorize/Authenticate/Refresh contra sus endpoints.
type Base struct {
	ProviderID string
	States     *StateCodec

	// ExtraKeys son claves de callback adicionales a code/state/error que el
	// proveedor manda (ej: error_description).
	ExtraKeys []string
}

// AuthenticateParamKeys lista las claves que el proveedor manda al callback.
func (b *Base) AuthenticateParamKeys() []string {
	keys := []string{"code", "state", "error"}
	return append(keys, b.ExtraKeys...)
}

// VerifyAuthenticateParams clasifica el callback antes de tocar la red:
//
//   - param error presente: el proveedor reporta denegación; el detalle viaja
//     como mensaje de la denegación
//   - code ausente: callback inválido, código propio invalid_request
//   - state ausente, malformado o nonce quemado: denegación (CSRF o replay)
//
// Consumir el nonce acá lo quema: un segundo callback con el mismo state cae
// como denegación.
func (b *Base) VerifyAuthenticateParams(ctx context.Context, params map[string]string) error {
	if e := params["error"]; e != "" {
		msg := e
		if d := params["error_description"]; d != "" {
			msg = fmt.Sprintf("%s: %s", e, d)
		}
		return oauth2.PermDenied(msg, nil)
	}
	if params["code"] == "" {
		return oauth2.Failure(oauth2.CodeInvalidRequest, "missing authorization code", nil)
	}
	state := params["state"]
	if state == "" {
		return oauth2.PermDenied("missing state parameter", nil)
	}
	if err := b.States.Consume(ctx, state); err != nil {
		if errors.Is(err, ErrStateMalformed) || errors.Is(err, ErrStateUnknown) {
			return oauth2.PermDenied("invalid or already used state", err)
		}
		return oauth2.Failure(oauth2.CodeAuthFailed, "state validation unavailable", err)
	}
	return nil
}

// Relay recupera el relay embebido en el state, todavía url-encoded.
func (b *Base) Relay(params map[string]string) string {
	return RelayFromState(params["state"])
}

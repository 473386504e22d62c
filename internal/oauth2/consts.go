// Package oauth2 contiene el núcleo del broker: el contrato Handler por
// proveedor, la vista de configuración, el orquestador authorize/authenticate/
// refresh y las utilidades de relay/redirect.
package oauth2

// Query params que el broker agrega al redirect final.
const (
	QueryError    = "error"
	QueryErrorMsg = "error_msg"
)

// Códigos de error del flujo. Van en el query param "error" del redirect.
const (
	// CodeAccessDenied: el usuario o el proveedor denegó el acceso.
	CodeAccessDenied = "access_denied"

	// CodeInvalidSession: falta la sesión host que identifica a qué cuenta
	// colgar la credencial. El valor literal lo espera el cliente webmail.
	CodeInvalidSession = "invalid_zm_auth_code"

	// CodeAuthFailed: el intercambio de tokens o la persistencia fallaron.
	CodeAuthFailed = "authentication_error"

	// CodeInvalidRequest: faltan parámetros requeridos en el callback.
	CodeInvalidRequest = "invalid_request"
)

// MsgInvalidSession acompaña a CodeInvalidSession en el redirect.
const MsgInvalidSession = "Invalid or missing session token. An authenticated host session is required to link an account."

// DefaultSuccessRedirect es el relay usado cuando el caller no pidió uno
// válido. Configurable por servicio; este es el fallback.
const DefaultSuccessRedirect = "/"

// HandlerKeyPrefix + provider es la clave de configuración que nombra la
// implementación de Handler a construir para ese proveedor.
const HandlerKeyPrefix = "classes.handlers."

// HandlerKey arma la clave de configuración del implementation id.
func HandlerKey(provider string) string {
	return HandlerKeyPrefix + provider
}

package oauth2

import "context"

// Handler es la capacidad por proveedor que consume el orquestador. Una
// instancia viva por provider id, construida lazy por el registry y
// compartida entre requests concurrentes: debe ser segura para uso
// concurrente después de construida.
type Handler interface {
	// Authorize arma la URL del endpoint de autorización del proveedor,
	// embebiendo el relay en el parámetro state.
	Authorize(ctx context.Context, relay string) (string, error)

	// AuthenticateParamKeys lista, en orden, los query params que el
	// proveedor manda en su redirect de callback.
	AuthenticateParamKeys() []string

	// VerifyAuthenticateParams valida los params extraídos del callback.
	// Falla con un *FlowError clasificado (PermDenied o no).
	VerifyAuthenticateParams(ctx context.Context, params map[string]string) error

	// Authenticate intercambia el code por tokens y persiste la credencial
	// en la cuenta host. Falla con un *FlowError clasificado.
	Authenticate(ctx context.Context, info *AuthInfo) error

	// Refresh re-intercambia una credencial existente y reporta éxito.
	Refresh(ctx context.Context, info *AuthInfo) (bool, error)

	// Relay recupera el destino post-flujo pedido por el caller desde los
	// params del callback. "" si no hay.
	Relay(params map[string]string) string
}

// HandlerResolver es lo que el orquestador necesita del registry.
type HandlerResolver interface {
	// GetHandler falla envolviendo ErrInvalidClient (proveedor desconocido)
	// o ErrConfiguration (config/construcción).
	GetHandler(ctx context.Context, provider string) (Handler, error)
}

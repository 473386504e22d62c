package oauth2

import (
	"errors"
	"fmt"
)

// =================================================================================
// ERRORES DEL REGISTRY
// =================================================================================

var (
	// ErrInvalidClient: el provider id no está configurado.
	ErrInvalidClient = errors.New("unknown oauth2 provider")

	// ErrConfiguration: la configuración del proveedor no se pudo resolver o
	// el handler no se pudo construir.
	ErrConfiguration = errors.New("oauth2 configuration error")
)

// IsInvalidClient reporta si err proviene de un provider id desconocido.
func IsInvalidClient(err error) bool { return errors.Is(err, ErrInvalidClient) }

// IsConfiguration reporta si err es un fallo de configuración/construcción.
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }

// =================================================================================
// FALLOS CLASIFICADOS DEL FLUJO
// =================================================================================

// FlowError es un fallo clasificado de verificación/autenticación. La
// clasificación viaja como dato (PermDenied) en lugar de inferirse comparando
// strings de códigos. El orquestador lo absorbe en query params del redirect;
// nunca se propaga más arriba.
type FlowError struct {
	Code       string // código máquina, termina en el query param "error"
	Message    string // detalle humano, puede terminar en "error_msg"
	PermDenied bool   // true si el proveedor o el usuario denegó el acceso
	Err        error  // causa original, solo para logs
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite errors.Is/As sobre la causa.
func (e *FlowError) Unwrap() error { return e.Err }

// PermDenied construye un FlowError clasificado como acceso denegado.
func PermDenied(message string, cause error) *FlowError {
	return &FlowError{Code: CodeAccessDenied, Message: message, PermDenied: true, Err: cause}
}

// Failure construye un FlowError no clasificado como denegación, con su
// propio código.
func Failure(code, message string, cause error) *FlowError {
	return &FlowError{Code: code, Message: message, Err: cause}
}

// AsFlow extrae el FlowError de una cadena de errores, si hay uno.
func AsFlow(err error) (*FlowError, bool) {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

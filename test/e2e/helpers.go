package e2e

import (
	"net/http"
	"testing"
	"time"
)

// La suite corre contra un broker YA levantado (no arranca procesos). TestMain
// setea estas variables desde el entorno; sin URL todos los tests se saltan.
var (
	baseURL      string
	sessionToken string
	e2eProvider  string
)

// requireE2E salta el test cuando la suite no está habilitada.
func requireE2E(t *testing.T) {
	t.Helper()
	if baseURL == "" {
		t.Skip("e2e deshabilitado: exportar LINKJOHN_E2E_URL apuntando a un broker vivo")
	}
}

// requireSession salta cuando no hay token de sesión del host.
func requireSession(t *testing.T) {
	t.Helper()
	requireE2E(t)
	if sessionToken == "" {
		t.Skip("falta LINKJOHN_E2E_SESSION (token de sesión del host)")
	}
}

// requireProvider salta cuando no hay un proveedor habilitado para probar.
func requireProvider(t *testing.T) string {
	t.Helper()
	requireE2E(t)
	if e2eProvider == "" {
		t.Skip("falta LINKJOHN_E2E_PROVIDER (proveedor habilitado en el broker)")
	}
	return e2eProvider
}

// newHTTPClient no sigue redirects: el flujo contesta 303 y queremos el
// Location crudo.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func authed(req *http.Request) *http.Request {
	if sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
	}
	return req
}

package oauth2

import (
	"net/url"

	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
)

// Param es un par clave/valor a agregar como query param. Slice en lugar de
// map para que el orden de inserción sea determinístico.
type Param struct {
	Key   string
	Value string
}

// ValidateRelay retorna un relay confiable para redirigir post-flujo.
// Vacío, indecodificable, imparseable o absoluto (con scheme o authority)
// caen al default: solo se confía en destinos relativos, para que el
// parámetro relay no sirva de open redirect hacia un host externo.
func ValidateRelay(raw, defaultRedirect string) string {
	if defaultRedirect == "" {
		defaultRedirect = DefaultSuccessRedirect
	}
	if raw == "" {
		return defaultRedirect
	}

	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		logger.L().Info("unable to decode relay parameter", logger.Relay(raw))
		return defaultRedirect
	}

	u, err := url.Parse(decoded)
	if err != nil {
		logger.L().Info("invalid relay uri syntax", logger.Relay(decoded))
		return defaultRedirect
	}

	if u.IsAbs() || u.Host != "" {
		logger.L().Info("absolute relay rejected", logger.Relay(decoded))
		return defaultRedirect
	}

	return decoded
}

// AddQueryParams agrega params a un path preservando los query params que ya
// tenga. Path vacío o params vacíos: retorna path sin tocar. Pares con clave
// o valor vacío se saltean. Si el path no parsea, loguea y retorna el path
// original sin modificar: esta utilidad nunca falla hacia el caller.
func AddQueryParams(path string, params []Param) string {
	if path == "" || len(params) == 0 {
		return path
	}

	u, err := url.Parse(path)
	if err != nil {
		logger.L().Warn("could not add query params to path", logger.Path(path), logger.Err(err))
		return path
	}

	q := u.Query()
	for _, p := range params {
		if p.Key != "" && p.Value != "" {
			q.Add(p.Key, p.Value)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

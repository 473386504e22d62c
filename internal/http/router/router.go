// Package router arma el árbol de rutas del broker sobre chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/hellojohn/internal/http"
	"github.com/dropDatabas3/hellojohn/internal/http/controllers/credentials"
	"github.com/dropDatabas3/hellojohn/internal/http/controllers/flow"
	"github.com/dropDatabas3/hellojohn/internal/http/controllers/health"
)

// Deps agrupa los controllers ya construidos y los knobs de la capa externa.
type Deps struct {
	Flow        *flow.Controller
	Credentials *credentials.Controller
	Health      *health.Controller

	// AllowedOrigins habilita CORS para el host webmail. Vacío lo apaga.
	AllowedOrigins []string

	// Metrics sirve GET /metrics (promhttp). nil omite la ruta.
	Metrics http.Handler
}

// New construye el handler raíz con la cadena completa:
// recover → request id → cors → security headers → logging.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(httpx.WithRecover)
	r.Use(httpx.WithRequestID)
	if len(d.AllowedOrigins) > 0 {
		r.Use(func(next http.Handler) http.Handler { return httpx.WithCORS(next, d.AllowedOrigins) })
	}
	r.Use(httpx.WithSecurityHeaders)
	r.Use(httpx.WithLogging)

	// flujo y gestión: las respuestas llevan códigos de un solo uso y
	// metadata de cuenta, nunca cacheables
	r.Group(func(g chi.Router) {
		g.Use(httpx.WithNoStore)
		d.Flow.Register(g)
		d.Credentials.Register(g)
	})

	d.Health.Register(r)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	return r
}

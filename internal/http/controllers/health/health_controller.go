// Package health expone el liveness/readiness del broker.
package health

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/hellojohn/internal/http"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
)

// Pinger es lo mínimo que el health check necesita de una dependencia.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SelfChecker valida que un componente pueda operar con su configuración.
type SelfChecker interface {
	SelfCheck() error
}

type Controller struct {
	store    Pinger
	cache    Pinger
	sessions SelfChecker
}

// New arma el controller. Dependencias nil se saltan su chequeo.
func New(store, cache Pinger, sessions SelfChecker) *Controller {
	return &Controller{store: store, cache: cache, sessions: sessions}
}

func (c *Controller) Register(r chi.Router) {
	r.Get("/healthz", c.Healthz)
}

// Healthz maneja GET /healthz. Chequeos en secuencia: el primero que falla
// corta con 503 y su propio código.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	if v := os.Getenv("SERVICE_VERSION"); v != "" {
		w.Header().Set("X-Service-Version", v)
	}
	if commit := os.Getenv("SERVICE_COMMIT"); commit != "" {
		w.Header().Set("X-Service-Commit", commit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("health.Healthz"))

	if c.store != nil {
		if err := c.store.Ping(ctx); err != nil {
			log.Error("store unavailable", logger.Err(err))
			httpx.WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "credential store unavailable", httpx.CodeNumUnavailable)
			return
		}
	}

	if c.cache != nil {
		if err := c.cache.Ping(ctx); err != nil {
			log.Error("cache unavailable", logger.Err(err))
			httpx.WriteError(w, http.StatusServiceUnavailable, "cache_unavailable", "state cache unavailable", httpx.CodeNumUnavailable)
			return
		}
	}

	if c.sessions != nil {
		if err := c.sessions.SelfCheck(); err != nil {
			log.Error("session self-check failed", logger.Err(err))
			httpx.WriteError(w, http.StatusServiceUnavailable, "session_selfcheck_failed", "session verifier misconfigured", httpx.CodeNumUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

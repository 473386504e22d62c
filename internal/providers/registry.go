package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/hellojohn/internal/metrics"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn/internal/oauth2"
)

// Registry resuelve provider id -> Handler construyendo lazy y cacheando la
// instancia. Implementa oauth2.HandlerResolver.
//
// Contrato de concurrencia: el camino común (handler ya construido) es un
// RLock; la construcción pasa por singleflight, así N requests concurrentes
// del mismo proveedor producen exactamente UNA construcción y comparten el
// resultado. Una construcción fallida no se cachea: el próximo request
// reintenta.
//
// La tabla de factories se llena en el bootstrap (compile-time wiring); la
// config decide qué implementation id usa cada proveedor via la clave
// "classes.handlers.<provider>", con el propio provider id como default.
type Registry struct {
	resolver oauth2.ConfigResolver
	deps     Deps

	mu        sync.RWMutex
	factories map[string]Factory
	handlers  map[string]oauth2.Handler
	sf        singleflight.Group
}

// NewRegistry construye un registry vacío; registrar factories antes de servir.
func NewRegistry(resolver oauth2.ConfigResolver, deps Deps) *Registry {
	return &Registry{
		resolver:  resolver,
		deps:      deps,
		factories: make(map[string]Factory),
		handlers:  make(map[string]oauth2.Handler),
	}
}

// RegisterFactory registra la implementación bajo un implementation id.
// Solo durante el bootstrap, antes de atender requests.
func (r *Registry) RegisterFactory(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// Implementations lista los implementation ids registrados, ordenados.
func (r *Registry) Implementations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetHandler retorna el handler vivo del proveedor, construyéndolo si es la
// primera vez. Falla envolviendo oauth2.ErrInvalidClient (proveedor
// desconocido) u oauth2.ErrConfiguration (config o construcción). Las causas
// crudas se loguean y nunca viajan en el error retornado.
func (r *Registry) GetHandler(ctx context.Context, provider string) (oauth2.Handler, error) {
	r.mu.RLock()
	h, ok := r.handlers[provider]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	v, err, _ := r.sf.Do(provider, func() (any, error) {
		// otro vuelo pudo completar entre el fast path y este Do
		r.mu.RLock()
		h, ok := r.handlers[provider]
		r.mu.RUnlock()
		if ok {
			return h, nil
		}

		h, err := r.build(provider)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.handlers[provider] = h
		r.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(oauth2.Handler), nil
}

func (r *Registry) build(provider string) (oauth2.Handler, error) {
	cfg, err := r.resolver.Resolve(provider)
	if err != nil {
		if oauth2.IsInvalidClient(err) {
			logger.L().Warn("oauth2 provider not configured", logger.Provider(provider), logger.Err(err))
			metrics.HandlerBuilds.WithLabelValues(provider, "invalid_client").Inc()
			return nil, fmt.Errorf("%w: %s", oauth2.ErrInvalidClient, provider)
		}
		logger.L().Error("oauth2 provider config rejected", logger.Provider(provider), logger.Err(err))
		metrics.HandlerBuilds.WithLabelValues(provider, "config_error").Inc()
		return nil, fmt.Errorf("%w: provider %s", oauth2.ErrConfiguration, provider)
	}

	implID := cfg.GetDefault(oauth2.HandlerKey(provider), provider)

	r.mu.RLock()
	factory, ok := r.factories[implID]
	r.mu.RUnlock()
	if !ok {
		logger.L().Error("oauth2 handler implementation not registered",
			logger.Provider(provider), logger.String("impl", implID))
		metrics.HandlerBuilds.WithLabelValues(provider, "config_error").Inc()
		return nil, fmt.Errorf("%w: provider %s", oauth2.ErrConfiguration, provider)
	}

	h, err := factory(cfg, r.deps)
	if err != nil {
		logger.L().Error("oauth2 handler build failed",
			logger.Provider(provider), logger.String("impl", implID), logger.Err(err))
		metrics.HandlerBuilds.WithLabelValues(provider, "factory_error").Inc()
		return nil, fmt.Errorf("%w: provider %s", oauth2.ErrConfiguration, provider)
	}

	logger.L().Info("oauth2 handler ready", logger.Provider(provider), logger.String("impl", implID))
	metrics.HandlerBuilds.WithLabelValues(provider, "ok").Inc()
	return h, nil
}

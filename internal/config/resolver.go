package config

import (
	"fmt"
	"strings"

	"github.com/dropDatabas3/hellojohn/internal/oauth2"
)

// Resolver adapta la sección providers del Config al contrato de resolución
// por clave que consume el registry. Una vista por proveedor, claves planas.
type Resolver struct {
	cfg *Config
}

func NewResolver(cfg *Config) *Resolver { return &Resolver{cfg: cfg} }

// Resolve arma la vista de configuración del proveedor. Proveedor ausente o
// deshabilitado falla envolviendo oauth2.ErrInvalidClient; el resto de la
// validación (claves requeridas) es asunto del factory.
func (r *Resolver) Resolve(provider string) (*oauth2.Configuration, error) {
	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		return nil, fmt.Errorf("%w: empty provider id", oauth2.ErrInvalidClient)
	}

	pc, ok := r.cfg.Providers[name]
	if !ok || !pc.Enabled {
		return nil, fmt.Errorf("%w: %s", oauth2.ErrInvalidClient, name)
	}

	values := make(map[string]string, len(pc.Extra)+8)
	for k, v := range pc.Extra {
		values[k] = v
	}
	put := func(k, v string) {
		if v != "" {
			values[k] = v
		}
	}
	put("client_id", pc.ClientID)
	put("client_secret", pc.ClientSecret)
	put("redirect_uri", pc.RedirectURI)
	put("scopes", pc.Scopes)
	put("tenant", pc.Tenant)
	put("issuer", pc.Issuer)
	put("discovery_url", pc.DiscoveryURL)
	put(oauth2.HandlerKey(name), pc.Impl)

	return oauth2.NewConfiguration(name, values), nil
}

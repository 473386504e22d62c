// Package config carga la configuración del broker: YAML + overrides por
// variables de entorno LINKJOHN_*. Los secretos (master key de secretbox)
// viajan solo por env, nunca por YAML.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// builtinProviders son los proveedores con factory compilada. La config
// puede habilitarlos solo por env, sin sección YAML.
var builtinProviders = []string{"google", "outlook", "yahoo"}

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"` // debug | info | warn | error
	} `yaml:"log"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Driver string `yaml:"driver"` // memory | redis
		Prefix string `yaml:"prefix"`
		Redis  struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	// Session es el credencial del host webmail: el broker solo lo verifica.
	Session struct {
		Secret      string `yaml:"secret"`
		Issuer      string `yaml:"issuer"`
		CookieName  string `yaml:"cookie_name"`
		AllowBearer bool   `yaml:"allow_bearer"`
	} `yaml:"session"`

	Flow struct {
		DefaultRedirect string `yaml:"default_redirect"`
		StateTTL        string `yaml:"state_ttl"`
	} `yaml:"flow"`

	SMTP struct {
		Enabled            bool   `yaml:"enabled"`
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"` // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	} `yaml:"smtp"`

	Flags struct {
		Migrate       bool   `yaml:"migrate"`
		MigrationsDir string `yaml:"migrations_dir"`
	} `yaml:"flags"`

	Providers map[string]Provider `yaml:"providers"`
}

// Provider es la sección de un proveedor OAuth2. La resolución por clave la
// hace el Resolver; acá solo se tipa lo estructural y Extra pasa tal cual.
type Provider struct {
	Enabled      bool              `yaml:"enabled"`
	Impl         string            `yaml:"impl"` // implementation id; default: el propio nombre
	ClientID     string            `yaml:"client_id"`
	ClientSecret string            `yaml:"client_secret"`
	RedirectURI  string            `yaml:"redirect_uri"`
	Scopes       string            `yaml:"scopes"`
	Tenant       string            `yaml:"tenant"`
	Issuer       string            `yaml:"issuer"`
	DiscoveryURL string            `yaml:"discovery_url"`
	Extra        map[string]string `yaml:"extra"`
}

// Load lee el YAML, aplica defaults, pisa con env y valida.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return finish(&c)
}

// FromEnv arma la config solo desde variables de entorno, sin YAML.
func FromEnv() (*Config, error) {
	return finish(&Config{})
}

func finish(c *Config) (*Config, error) {
	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "linkjohn"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "LINKJOHN_SESSION"
	}
	// Bearer habilitado por default, por compat con el host en dev; se apaga
	// con LINKJOHN_ALLOW_BEARER_SESSION=false.
	if !c.Session.AllowBearer {
		c.Session.AllowBearer = true
	}
	if c.Flow.DefaultRedirect == "" {
		c.Flow.DefaultRedirect = "/"
	}
	if c.Flow.StateTTL == "" {
		c.Flow.StateTTL = "10m"
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.Flags.MigrationsDir == "" {
		c.Flags.MigrationsDir = "migrations/postgres"
	}

	// nombres de proveedor siempre en minúsculas
	norm := make(map[string]Provider, len(c.Providers))
	for k, v := range c.Providers {
		norm[strings.ToLower(strings.TrimSpace(k))] = v
	}
	c.Providers = norm
}

// StateTTLDuration retorna el TTL de state nonces ya parseado.
func (c *Config) StateTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.Flow.StateTTL)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// ProviderNames lista los proveedores conocidos: builtins más los declarados
// en YAML, ordenados.
func (c *Config) ProviderNames() []string {
	seen := make(map[string]bool, len(builtinProviders)+len(c.Providers))
	for _, n := range builtinProviders {
		seen[n] = true
	}
	for n := range c.Providers {
		seen[n] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides pisa el YAML con variables LINKJOHN_*.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("LINKJOHN_APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LINKJOHN_LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("LINKJOHN_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("LINKJOHN_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	// STORAGE
	if v, ok := getEnvStr("LINKJOHN_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("LINKJOHN_PG_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("LINKJOHN_PG_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}
	if v, ok := getEnvStr("LINKJOHN_PG_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}

	// CACHE
	if v, ok := getEnvStr("LINKJOHN_CACHE_DRIVER"); ok {
		c.Cache.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LINKJOHN_CACHE_PREFIX"); ok {
		c.Cache.Prefix = v
	}
	if v, ok := getEnvStr("LINKJOHN_REDIS_HOST"); ok {
		c.Cache.Redis.Host = v
	}
	if v, ok := getEnvInt("LINKJOHN_REDIS_PORT"); ok {
		c.Cache.Redis.Port = v
	}
	if v, ok := getEnvStr("LINKJOHN_REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("LINKJOHN_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	// SESSION
	if v, ok := getEnvStr("LINKJOHN_SESSION_SECRET"); ok {
		c.Session.Secret = v
	}
	if v, ok := getEnvStr("LINKJOHN_SESSION_ISSUER"); ok {
		c.Session.Issuer = v
	}
	if v, ok := getEnvStr("LINKJOHN_SESSION_COOKIE"); ok {
		c.Session.CookieName = v
	}
	if v, ok := getEnvBool("LINKJOHN_ALLOW_BEARER_SESSION"); ok {
		c.Session.AllowBearer = v
	}

	// FLOW
	if v, ok := getEnvStr("LINKJOHN_DEFAULT_REDIRECT"); ok {
		c.Flow.DefaultRedirect = v
	}
	if v, ok := getEnvStr("LINKJOHN_STATE_TTL"); ok {
		c.Flow.StateTTL = v
	}

	// SMTP
	if v, ok := getEnvBool("LINKJOHN_SMTP_ENABLED"); ok {
		c.SMTP.Enabled = v
	}
	if v, ok := getEnvStr("LINKJOHN_SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("LINKJOHN_SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("LINKJOHN_SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("LINKJOHN_SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("LINKJOHN_SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("LINKJOHN_SMTP_TLS"); ok {
		c.SMTP.TLS = strings.ToLower(v)
	}
	if v, ok := getEnvBool("LINKJOHN_SMTP_INSECURE_SKIP_VERIFY"); ok {
		c.SMTP.InsecureSkipVerify = v
	}

	// FLAGS
	if v, ok := getEnvBool("LINKJOHN_MIGRATE"); ok {
		c.Flags.Migrate = v
	}
	if v, ok := getEnvStr("LINKJOHN_MIGRATIONS_DIR"); ok {
		c.Flags.MigrationsDir = v
	}

	// PROVIDERS: LINKJOHN_<NOMBRE>_CLIENT_ID etc, para builtins y declarados
	for _, name := range c.ProviderNames() {
		prefix := "LINKJOHN_" + strings.ToUpper(name) + "_"
		pc := c.Providers[name]
		touched := false

		if v, ok := getEnvBool(prefix + "ENABLED"); ok {
			pc.Enabled, touched = v, true
		}
		if v, ok := getEnvStr(prefix + "CLIENT_ID"); ok {
			pc.ClientID, touched = v, true
		}
		if v, ok := getEnvStr(prefix + "CLIENT_SECRET"); ok {
			pc.ClientSecret, touched = v, true
		}
		if v, ok := getEnvStr(prefix + "REDIRECT_URI"); ok {
			pc.RedirectURI, touched = v, true
		}
		if v, ok := getEnvStr(prefix + "SCOPES"); ok {
			pc.Scopes, touched = v, true
		}
		if v, ok := getEnvStr(prefix + "TENANT"); ok {
			pc.Tenant, touched = v, true
		}
		if v, ok := getEnvStr(prefix + "ISSUER"); ok {
			pc.Issuer, touched = v, true
		}
		if v, ok := getEnvStr(prefix + "DISCOVERY_URL"); ok {
			pc.DiscoveryURL, touched = v, true
		}

		if touched {
			if c.Providers == nil {
				c.Providers = map[string]Provider{}
			}
			c.Providers[name] = pc
		}
	}
}

// Validate chequea lo estructural. Las secciones de proveedor NO se validan
// acá: un proveedor a medio configurar debe fallar recién al resolverlo, no
// impedir el arranque del resto.
func (c *Config) Validate() error {
	switch c.App.Env {
	case "dev", "staging", "prod":
	default:
		return fmt.Errorf("config: app.env inválido: %q", c.App.Env)
	}

	if strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("config: storage.dsn requerido (o LINKJOHN_DSN)")
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return fmt.Errorf("config: storage.postgres.conn_max_lifetime: %w", err)
		}
	}

	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Cache.Redis.Host == "" {
			return fmt.Errorf("config: cache.redis.host requerido con driver redis")
		}
	default:
		return fmt.Errorf("config: cache.driver inválido: %q", c.Cache.Driver)
	}

	if strings.TrimSpace(c.Session.Secret) == "" {
		return fmt.Errorf("config: session.secret requerido (o LINKJOHN_SESSION_SECRET)")
	}

	if _, err := time.ParseDuration(c.Flow.StateTTL); err != nil {
		return fmt.Errorf("config: flow.state_ttl: %w", err)
	}

	if c.SMTP.Enabled && (c.SMTP.Host == "" || c.SMTP.From == "") {
		return fmt.Errorf("config: smtp habilitado necesita host y from")
	}

	return nil
}

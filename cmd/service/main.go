package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/hellojohn/internal/cache"
	"github.com/dropDatabas3/hellojohn/internal/config"
	"github.com/dropDatabas3/hellojohn/internal/email"
	httpserver "github.com/dropDatabas3/hellojohn/internal/http"
	"github.com/dropDatabas3/hellojohn/internal/http/controllers/credentials"
	"github.com/dropDatabas3/hellojohn/internal/http/controllers/flow"
	"github.com/dropDatabas3/hellojohn/internal/http/controllers/health"
	"github.com/dropDatabas3/hellojohn/internal/http/router"
	"github.com/dropDatabas3/hellojohn/internal/metrics"
	"github.com/dropDatabas3/hellojohn/internal/oauth2"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn/internal/providers"
	"github.com/dropDatabas3/hellojohn/internal/providers/google"
	"github.com/dropDatabas3/hellojohn/internal/providers/outlook"
	"github.com/dropDatabas3/hellojohn/internal/providers/yahoo"
	"github.com/dropDatabas3/hellojohn/internal/security/secretbox"
	"github.com/dropDatabas3/hellojohn/internal/security/session"
	"github.com/dropDatabas3/hellojohn/internal/store/pg"
	pgmigrations "github.com/dropDatabas3/hellojohn/migrations/postgres"
)

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func dirExists(p string) bool {
	if p == "" {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

func mask(s string) string {
	if strings.TrimSpace(s) == "" {
		return "NOT_SET"
	}
	return "***masked***"
}

func printConfigSummary(c *config.Config) {
	masterKey := "NOT_SET"
	if secretbox.IsReady() {
		masterKey = "***masked***"
	}

	enabled := make([]string, 0, len(c.Providers))
	for _, name := range c.ProviderNames() {
		if c.Providers[name].Enabled {
			enabled = append(enabled, name)
		}
	}

	log.Printf(`CONFIG:
  app.env=%s log.level=%s

  server.addr=%s
  cors=%v

  storage.dsn=%s
  postgres(max_open=%d, max_idle=%d, lifetime=%s)

  cache.driver=%s prefix=%s
  redis.host=%s port=%d db=%d

  session(cookie=%s, issuer=%s, secret=%s, allow_bearer=%t)

  flow(default_redirect=%s, state_ttl=%s)

  smtp(enabled=%t, host=%s, port=%d, user=%s, from=%s, tls=%s)

  flags(migrate=%t, migrations_dir=%s)

  master_key=%s
  providers.enabled=%v
`,
		c.App.Env, c.Log.Level,
		c.Server.Addr, c.Server.CORSAllowedOrigins,
		mask(c.Storage.DSN),
		c.Storage.Postgres.MaxOpenConns, c.Storage.Postgres.MaxIdleConns, c.Storage.Postgres.ConnMaxLifetime,
		c.Cache.Driver, c.Cache.Prefix,
		c.Cache.Redis.Host, c.Cache.Redis.Port, c.Cache.Redis.DB,
		c.Session.CookieName, c.Session.Issuer, mask(c.Session.Secret), c.Session.AllowBearer,
		c.Flow.DefaultRedirect, c.Flow.StateTTL,
		c.SMTP.Enabled, c.SMTP.Host, c.SMTP.Port, c.SMTP.Username, c.SMTP.From, c.SMTP.TLS,
		c.Flags.Migrate, c.Flags.MigrationsDir,
		masterKey,
		enabled,
	)
}

func main() {
	var (
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (fallback: $LINKJOHN_CONFIG o configs/config.yaml)")
		flagEnvOnly    = flag.Bool("env", false, "usar SOLO env (y .env si se pasa -env-file)")
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env (si existe, se carga)")
		flagPrint      = flag.Bool("print-config", false, "imprime config efectiva y termina")
	)
	flag.Parse()

	if *flagEnvFile != "" && (fileExists(*flagEnvFile) || *flagEnvOnly) {
		if err := godotenv.Load(*flagEnvFile); err == nil {
			log.Printf("dotenv: cargado %s", *flagEnvFile)
		}
	}

	var cfg *config.Config
	var err error
	if *flagEnvOnly {
		cfg, err = config.FromEnv()
	} else {
		cfgPath := *flagConfigPath
		if cfgPath == "" {
			cfgPath = os.Getenv("LINKJOHN_CONFIG")
		}
		if cfgPath == "" {
			if fileExists("configs/config.yaml") {
				cfgPath = "configs/config.yaml"
			} else {
				cfgPath = "configs/config.example.yaml"
			}
		}
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *flagPrint {
		printConfigSummary(cfg)
		return
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "linkjohn",
		Version:     os.Getenv("SERVICE_VERSION"),
	})
	defer func() { _ = logger.Sync() }()

	// La master key cifra los refresh tokens en reposo; sin ella no hay nada
	// que servir.
	if !secretbox.IsReady() {
		log.Fatal("LINKJOHN_MASTER_KEY faltante o inválida (base64 de 32 bytes). Generala con: go run ./cmd/keys")
	}

	ctx := context.Background()

	store, err := pg.New(ctx, cfg.Storage.DSN, pg.Tuning{
		MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	if cfg.Flags.Migrate {
		// En dev el directorio permite iterar sin recompilar; el binario
		// deployado usa el set embebido.
		if dirExists(cfg.Flags.MigrationsDir) {
			err = store.RunMigrations(ctx, cfg.Flags.MigrationsDir)
		} else {
			err = store.RunMigrationsFS(ctx, pgmigrations.FS)
		}
		if err != nil {
			log.Fatalf("migrations: %v", err)
		}
	}

	cacheClient, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Driver,
		Host:     cfg.Cache.Redis.Host,
		Port:     cfg.Cache.Redis.Port,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Prefix,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer func() { _ = cacheClient.Close() }()

	verifier := session.NewVerifier(cfg.Session.Secret, cfg.Session.Issuer)

	var notifier email.Sender
	if cfg.SMTP.Enabled {
		sender := email.FromConfig(email.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.From,
			TLSMode:   cfg.SMTP.TLS,
		})
		sender.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify
		notifier = sender
	}

	registry := providers.NewRegistry(config.NewResolver(cfg), providers.Deps{
		Store:    store,
		States:   providers.NewStateCodec(cacheClient, cfg.StateTTLDuration()),
		Sessions: verifier,
		Notifier: notifier,
	})
	registry.RegisterFactory(yahoo.ProviderName, yahoo.Factory)
	registry.RegisterFactory(google.ProviderName, google.Factory)
	registry.RegisterFactory(outlook.ProviderName, outlook.Factory)

	svc := oauth2.NewService(oauth2.Deps{
		Resolver:        registry,
		DefaultRedirect: cfg.Flow.DefaultRedirect,
	})

	if err := metrics.RegisterFlow(nil); err != nil {
		log.Fatalf("metrics: %v", err)
	}

	handler := router.New(router.Deps{
		Flow: flow.New(svc, flow.Options{
			SessionCookie: cfg.Session.CookieName,
			AllowBearer:   cfg.Session.AllowBearer,
		}),
		Credentials: credentials.New(store, verifier, credentials.Options{
			SessionCookie: cfg.Session.CookieName,
			AllowBearer:   cfg.Session.AllowBearer,
		}),
		Health:         health.New(store, cacheClient, verifier),
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Metrics:        promhttp.Handler(),
	})

	logger.L().Info("linkjohn up",
		logger.String("addr", cfg.Server.Addr),
		logger.String("env", cfg.App.Env),
		logger.String("cache", cfg.Cache.Driver),
		logger.Any("handlers", registry.Implementations()),
	)

	if err := httpserver.Start(cfg.Server.Addr, handler); err != nil {
		log.Fatalf("http: %v", err)
	}
}

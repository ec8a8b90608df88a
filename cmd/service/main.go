package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/userauth/internal/config"
	"github.com/dropDatabas3/userauth/internal/directory"
	authctrl "github.com/dropDatabas3/userauth/internal/http/controllers/auth"
	"github.com/dropDatabas3/userauth/internal/http/controllers/health"
	mw "github.com/dropDatabas3/userauth/internal/http/middlewares"
	"github.com/dropDatabas3/userauth/internal/http/router"
	svc "github.com/dropDatabas3/userauth/internal/http/services/auth"
	"github.com/dropDatabas3/userauth/internal/infra/cachefactory"
	jwtx "github.com/dropDatabas3/userauth/internal/jwt"
	"github.com/dropDatabas3/userauth/internal/metrics"
	"github.com/dropDatabas3/userauth/internal/oauth/kakao"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
	"github.com/dropDatabas3/userauth/internal/rate"
	"github.com/dropDatabas3/userauth/internal/store"
	"github.com/dropDatabas3/userauth/internal/store/pg"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "YAML config path (default $CONFIG_PATH or configs/config.yaml)")
		envOnly     = flag.Bool("env", false, "build the configuration from environment variables only")
		envFile     = flag.String("env-file", "", "load this .env file before reading the environment")
		printConfig = flag.Bool("print-config", false, "print the effective configuration (secrets masked) and exit")
	)
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "env-file: %v\n", err)
			os.Exit(2)
		}
	} else {
		_ = godotenv.Load() // optional .env in cwd
	}

	cfg, err := loadConfig(*configPath, *envOnly)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *printConfig {
		fmt.Print(cfg.Redacted())
		return
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "userauth",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.L().Fatal("service stopped with error", logger.Err(err))
	}
}

func loadConfig(path string, envOnly bool) (*config.Config, error) {
	if envOnly {
		return config.FromEnv()
	}
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.FromEnv()
		}
	}
	return config.Load(path)
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.L()
	ctx = logger.ToContext(ctx, log)

	stores, err := store.Open(ctx, store.Config{
		UsersDriver:   cfg.Storage.Driver,
		RefreshDriver: cfg.RefreshStore.Driver,
		DSN:           cfg.Storage.DSN,
		Postgres: pg.PoolConfig{
			MaxConns:        int32(cfg.Storage.Postgres.MaxOpenConns),
			MinConns:        int32(cfg.Storage.Postgres.MaxIdleConns),
			MaxConnLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		},
		Migrate: cfg.Storage.Migrate,
		Redis:   redisConfig(cfg),
	})
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()

	states, err := cachefactory.Open(cachefactory.Config{
		Kind:       cfg.Cache.Kind,
		Prefix:     cfg.Cache.Redis.Prefix + "state:",
		DefaultTTL: cfg.Cache.Memory.DefaultTTL,
	}, stores.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = states.Close() }()

	issuer, err := jwtx.NewIssuer(jwtx.Options{
		Secret:     []byte(cfg.JWT.Secret),
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})
	if err != nil {
		return err
	}

	provider := kakao.New(kakao.Config{
		ClientID:      cfg.Kakao.ClientID,
		ClientSecret:  cfg.Kakao.ClientSecret,
		RedirectURI:   cfg.Kakao.RedirectURI,
		AdminKey:      cfg.Kakao.AdminKey,
		AuthURL:       cfg.Kakao.AuthURL,
		TokenURL:      cfg.Kakao.TokenURL,
		APIURL:        cfg.Kakao.APIURL,
		Timeout:       cfg.Kakao.Timeout,
		UnlinkRetries: cfg.Kakao.UnlinkRetries,
		UnlinkBackoff: cfg.Kakao.UnlinkBackoff,
	}, nil)

	var (
		recorder svc.Recorder
		observer mw.HTTPObserver
		metricsH http.Handler
	)
	if cfg.MetricsEnabled() {
		m := metrics.New()
		if stores.PG != nil {
			if err := m.RegisterPool(stores.PG.Pool()); err != nil {
				return err
			}
		}
		recorder, observer, metricsH = m, m, m.Handler()
	}

	services := svc.NewServices(svc.Deps{
		Provider:  provider,
		Directory: directory.New(stores.Users, directory.Options{}),
		Issuer:    issuer,
		Refresh:   stores.Refresh,
		Metrics:   recorder,
		Config: svc.Config{
			RotateRefresh: cfg.Auth.RotateRefresh,
			IdentityMode:  svc.IdentityMode(cfg.Auth.IdentityMode),
			UnlinkTimeout: cfg.Auth.UnlinkTimeout,
		},
	})

	ctrls := authctrl.NewControllers(services, authctrl.BrowserDeps{
		Authorizer:    provider,
		States:        states,
		StateTTL:      cfg.Auth.StateTTL,
		LoginRedirect: cfg.Auth.LoginRedirect,
		Cookies: authctrl.CookieConfig{
			Secure:   cfg.Auth.Cookies.Secure,
			Domain:   cfg.Auth.Cookies.Domain,
			SameSite: cfg.CookieSameSite(),
		},
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})

	var checks []health.Check
	if stores.PG != nil {
		checks = append(checks, health.Check{Name: "postgres", Pinger: stores.PG})
	}
	if stores.Redis != nil {
		checks = append(checks, health.Check{Name: "redis", Pinger: store.RedisPinger(stores.Redis)})
	}

	var limiter mw.RateLimiter
	if cfg.Rate.Enabled {
		limiter = router.RateAdapter{Limiter: rate.NewRedisLimiter(
			stores.Redis, cfg.Cache.Redis.Prefix+"rl:", cfg.Rate.MaxRequests, cfg.Rate.Window)}
	}

	handler := router.New(router.Deps{
		BasePath: cfg.Server.BasePath,
		Auth:     ctrls,
		Health:   health.NewHealthController(version, checks...),
		Identity: mw.IdentityConfig{
			Mode:     cfg.Auth.IdentityMode,
			Header:   cfg.Auth.IdentityHeader,
			Verifier: issuer,
		},
		RateLimiter:    limiter,
		Observer:       observer,
		MetricsHandler: metricsH,
		MetricsPath:    cfg.Metrics.Path,
	})

	if rt, ok := stores.Refresh.(*pg.RefreshTokens); ok && cfg.Storage.Postgres.PurgeInterval > 0 {
		go rt.RunPurgeLoop(ctx, cfg.Storage.Postgres.PurgeInterval)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			logger.String("addr", cfg.Server.Addr),
			logger.String("base_path", cfg.Server.BasePath),
			logger.String("identity_mode", cfg.Auth.IdentityMode),
			logger.String("refresh_store", cfg.RefreshStore.Driver),
			logger.Bool("rotate_refresh", cfg.Auth.RotateRefresh),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func redisConfig(cfg *config.Config) store.RedisConfig {
	if !cfg.UsesRedis() {
		return store.RedisConfig{}
	}
	return store.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		DB:       cfg.Cache.Redis.DB,
		Password: cfg.Cache.Redis.Password,
		Prefix:   cfg.Cache.Redis.Prefix,
	}
}

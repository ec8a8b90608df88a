package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/userauth/internal/util"
)

const minJWTSecretLen = 32

type Config struct {
	App struct {
		// dev | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr            string        `yaml:"addr"`
		BasePath        string        `yaml:"base_path"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Migrate  bool   `yaml:"migrate"`
		Postgres struct {
			MaxOpenConns    int           `yaml:"max_open_conns"`
			MaxIdleConns    int           `yaml:"max_idle_conns"`
			ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
			// PurgeInterval drives the expired refresh token janitor; 0 disables it.
			PurgeInterval time.Duration `yaml:"purge_interval"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	RefreshStore struct {
		// memory | redis | postgres
		Driver string `yaml:"driver"`
	} `yaml:"refresh_store"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			DB       int    `yaml:"db"`
			Password string `yaml:"password"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL time.Duration `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	JWT struct {
		Secret     string        `yaml:"secret"`
		Issuer     string        `yaml:"issuer"`
		AccessTTL  time.Duration `yaml:"access_ttl"`
		RefreshTTL time.Duration `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	Auth struct {
		RotateRefresh bool `yaml:"rotate_refresh"`
		// header | local
		IdentityMode   string `yaml:"identity_mode"`
		IdentityHeader string `yaml:"identity_header"`
		Cookies        struct {
			Secure   bool   `yaml:"secure"`
			Domain   string `yaml:"domain"`
			SameSite string `yaml:"samesite"`
		} `yaml:"cookies"`
		LoginRedirect string        `yaml:"login_redirect"`
		StateTTL      time.Duration `yaml:"state_ttl"`
		UnlinkTimeout time.Duration `yaml:"unlink_timeout"`
	} `yaml:"auth"`

	Kakao struct {
		ClientID      string        `yaml:"client_id"`
		ClientSecret  string        `yaml:"client_secret"`
		RedirectURI   string        `yaml:"redirect_uri"`
		AdminKey      string        `yaml:"admin_key"`
		AuthURL       string        `yaml:"auth_url"`
		TokenURL      string        `yaml:"token_url"`
		APIURL        string        `yaml:"api_url"`
		Timeout       time.Duration `yaml:"timeout"`
		UnlinkRetries int           `yaml:"unlink_retries"`
		UnlinkBackoff time.Duration `yaml:"unlink_backoff"`
	} `yaml:"kakao"`

	Rate struct {
		Enabled     bool          `yaml:"enabled"`
		Window      time.Duration `yaml:"window"`
		MaxRequests int           `yaml:"max_requests"`
	} `yaml:"rate"`

	Metrics struct {
		// nil means enabled
		Enabled *bool  `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// Load reads the YAML file at path, then applies defaults, env overrides and
// validation.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c.finish()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	var c Config
	return c.finish()
}

func (c *Config) finish() (*Config, error) {
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
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/user/auth"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 10
	}
	if c.Storage.Postgres.ConnMaxLifetime == 0 {
		c.Storage.Postgres.ConnMaxLifetime = time.Hour
	}
	if c.Storage.Postgres.PurgeInterval == 0 {
		c.Storage.Postgres.PurgeInterval = time.Hour
	}
	if c.RefreshStore.Driver == "" {
		c.RefreshStore.Driver = "memory"
	}

	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "userauth:"
	}
	if c.Cache.Memory.DefaultTTL == 0 {
		c.Cache.Memory.DefaultTTL = 10 * time.Minute
	}

	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "userauth"
	}
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = 30 * time.Minute
	}
	if c.JWT.RefreshTTL == 0 {
		c.JWT.RefreshTTL = 14 * 24 * time.Hour
	}

	if c.Auth.IdentityMode == "" {
		c.Auth.IdentityMode = "header"
	}
	if c.Auth.IdentityHeader == "" {
		c.Auth.IdentityHeader = "X-User-Id"
	}
	if c.Auth.Cookies.SameSite == "" {
		c.Auth.Cookies.SameSite = "Lax"
	}
	if c.Auth.LoginRedirect == "" {
		c.Auth.LoginRedirect = "/login"
	}
	if c.Auth.StateTTL == 0 {
		c.Auth.StateTTL = 10 * time.Minute
	}
	if c.Auth.UnlinkTimeout == 0 {
		c.Auth.UnlinkTimeout = 5 * time.Second
	}

	if c.Kakao.Timeout == 0 {
		c.Kakao.Timeout = 10 * time.Second
	}
	if c.Kakao.UnlinkRetries == 0 {
		c.Kakao.UnlinkRetries = 3
	}
	if c.Kakao.UnlinkBackoff == 0 {
		c.Kakao.UnlinkBackoff = 200 * time.Millisecond
	}

	if c.Rate.Window == 0 {
		c.Rate.Window = time.Minute
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

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
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_BASE_PATH"); ok {
		c.Server.BasePath = v
	}
	if v, ok := getEnvDur("SERVER_READ_TIMEOUT"); ok {
		c.Server.ReadTimeout = v
	}
	if v, ok := getEnvDur("SERVER_WRITE_TIMEOUT"); ok {
		c.Server.WriteTimeout = v
	}
	if v, ok := getEnvDur("SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvBool("STORAGE_MIGRATE"); ok {
		c.Storage.Migrate = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}
	if v, ok := getEnvDur("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}
	if v, ok := getEnvDur("POSTGRES_PURGE_INTERVAL"); ok {
		c.Storage.Postgres.PurgeInterval = v
	}
	if v, ok := getEnvStr("REFRESH_STORE_DRIVER"); ok {
		c.RefreshStore.Driver = strings.ToLower(v)
	}

	// CACHE / REDIS
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvDur("CACHE_MEMORY_DEFAULT_TTL"); ok {
		c.Cache.Memory.DefaultTTL = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvDur("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvDur("JWT_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v
	}

	// AUTH
	if v, ok := getEnvBool("AUTH_ROTATE_REFRESH"); ok {
		c.Auth.RotateRefresh = v
	}
	if v, ok := getEnvStr("AUTH_IDENTITY_MODE"); ok {
		c.Auth.IdentityMode = strings.ToLower(v)
	}
	if v, ok := getEnvStr("AUTH_IDENTITY_HEADER"); ok {
		c.Auth.IdentityHeader = v
	}
	if v, ok := getEnvBool("AUTH_COOKIE_SECURE"); ok {
		c.Auth.Cookies.Secure = v
	}
	if v, ok := getEnvStr("AUTH_COOKIE_DOMAIN"); ok {
		c.Auth.Cookies.Domain = v
	}
	if v, ok := getEnvStr("AUTH_COOKIE_SAMESITE"); ok {
		c.Auth.Cookies.SameSite = v
	}
	if v, ok := getEnvStr("AUTH_LOGIN_REDIRECT"); ok {
		c.Auth.LoginRedirect = v
	}
	if v, ok := getEnvDur("AUTH_STATE_TTL"); ok {
		c.Auth.StateTTL = v
	}
	if v, ok := getEnvDur("AUTH_UNLINK_TIMEOUT"); ok {
		c.Auth.UnlinkTimeout = v
	}

	// KAKAO
	if v, ok := getEnvStr("KAKAO_CLIENT_ID"); ok {
		c.Kakao.ClientID = v
	}
	if v, ok := getEnvStr("KAKAO_CLIENT_SECRET"); ok {
		c.Kakao.ClientSecret = v
	}
	if v, ok := getEnvStr("KAKAO_REDIRECT_URI"); ok {
		c.Kakao.RedirectURI = v
	}
	if v, ok := getEnvStr("KAKAO_ADMIN_KEY"); ok {
		c.Kakao.AdminKey = v
	}
	if v, ok := getEnvStr("KAKAO_AUTH_URL"); ok {
		c.Kakao.AuthURL = v
	}
	if v, ok := getEnvStr("KAKAO_TOKEN_URL"); ok {
		c.Kakao.TokenURL = v
	}
	if v, ok := getEnvStr("KAKAO_API_URL"); ok {
		c.Kakao.APIURL = v
	}
	if v, ok := getEnvDur("KAKAO_TIMEOUT"); ok {
		c.Kakao.Timeout = v
	}
	if v, ok := getEnvInt("KAKAO_UNLINK_RETRIES"); ok {
		c.Kakao.UnlinkRetries = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvDur("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}

	// METRICS
	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = &v
	}
	if v, ok := getEnvStr("METRICS_PATH"); ok {
		c.Metrics.Path = v
	}
}

// Validate rejects configurations the service cannot start with. All problems
// are reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if len(c.JWT.Secret) < minJWTSecretLen {
		add("jwt.secret (JWT_SECRET) must be at least %d bytes", minJWTSecretLen)
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		add("jwt.access_ttl and jwt.refresh_ttl must be positive")
	}
	if strings.TrimSpace(c.Kakao.ClientID) == "" {
		add("kakao.client_id (KAKAO_CLIENT_ID) is required")
	}
	if strings.TrimSpace(c.Kakao.RedirectURI) == "" {
		add("kakao.redirect_uri (KAKAO_REDIRECT_URI) is required")
	}

	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		add("storage.driver %q: want memory|postgres", c.Storage.Driver)
	}
	switch c.RefreshStore.Driver {
	case "memory", "redis", "postgres":
	default:
		add("refresh_store.driver %q: want memory|redis|postgres", c.RefreshStore.Driver)
	}
	switch c.Cache.Kind {
	case "memory", "redis":
	default:
		add("cache.kind %q: want memory|redis", c.Cache.Kind)
	}
	switch c.Auth.IdentityMode {
	case "header", "local":
	default:
		add("auth.identity_mode %q: want header|local", c.Auth.IdentityMode)
	}
	if _, ok := parseSameSite(c.Auth.Cookies.SameSite); !ok {
		add("auth.cookies.samesite %q: want Lax|Strict|None", c.Auth.Cookies.SameSite)
	}

	if c.UsesPostgres() && strings.TrimSpace(c.Storage.DSN) == "" {
		add("storage.dsn (STORAGE_DSN) is required for postgres")
	}
	if c.UsesRedis() && strings.TrimSpace(c.Cache.Redis.Addr) == "" {
		add("cache.redis.addr (REDIS_ADDR) is required for redis")
	}
	if c.Rate.Enabled && (c.Rate.MaxRequests <= 0 || c.Rate.Window <= 0) {
		add("rate.max_requests and rate.window must be positive")
	}
	return errors.Join(errs...)
}

// UsesPostgres reports whether any component is backed by Postgres.
func (c *Config) UsesPostgres() bool {
	return c.Storage.Driver == "postgres" || c.RefreshStore.Driver == "postgres"
}

// UsesRedis reports whether any component is backed by Redis.
func (c *Config) UsesRedis() bool {
	return c.Cache.Kind == "redis" || c.RefreshStore.Driver == "redis" || c.Rate.Enabled
}

func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

// CookieSameSite returns the configured SameSite mode.
func (c *Config) CookieSameSite() http.SameSite {
	s, _ := parseSameSite(c.Auth.Cookies.SameSite)
	return s
}

func parseSameSite(v string) (http.SameSite, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "lax":
		return http.SameSiteLaxMode, true
	case "strict":
		return http.SameSiteStrictMode, true
	case "none":
		return http.SameSiteNoneMode, true
	}
	return http.SameSiteDefaultMode, false
}

// Redacted returns a printable summary with secrets masked.
func (c *Config) Redacted() string {
	var b strings.Builder
	line := func(k string, v any) { fmt.Fprintf(&b, "%-28s %v\n", k, v) }
	line("app.env", c.App.Env)
	line("app.log_level", c.App.LogLevel)
	line("server.addr", c.Server.Addr)
	line("server.base_path", c.Server.BasePath)
	line("storage.driver", c.Storage.Driver)
	line("storage.dsn", util.MaskDSN(c.Storage.DSN))
	line("storage.migrate", c.Storage.Migrate)
	line("refresh_store.driver", c.RefreshStore.Driver)
	line("cache.kind", c.Cache.Kind)
	line("cache.redis.addr", c.Cache.Redis.Addr)
	line("cache.redis.password", mask(c.Cache.Redis.Password))
	line("jwt.secret", mask(c.JWT.Secret))
	line("jwt.issuer", c.JWT.Issuer)
	line("jwt.access_ttl", c.JWT.AccessTTL)
	line("jwt.refresh_ttl", c.JWT.RefreshTTL)
	line("auth.rotate_refresh", c.Auth.RotateRefresh)
	line("auth.identity_mode", c.Auth.IdentityMode)
	line("auth.identity_header", c.Auth.IdentityHeader)
	line("kakao.client_id", c.Kakao.ClientID)
	line("kakao.client_secret", mask(c.Kakao.ClientSecret))
	line("kakao.redirect_uri", c.Kakao.RedirectURI)
	line("kakao.admin_key", mask(c.Kakao.AdminKey))
	line("rate.enabled", c.Rate.Enabled)
	line("metrics.enabled", c.MetricsEnabled())
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// Package router mounts the controllers on a chi route tree and wraps each
// route in its middleware chain.
package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authctrl "github.com/dropDatabas3/userauth/internal/http/controllers/auth"
	"github.com/dropDatabas3/userauth/internal/http/controllers/health"
	httperrors "github.com/dropDatabas3/userauth/internal/http/errors"
	mw "github.com/dropDatabas3/userauth/internal/http/middlewares"
	"github.com/dropDatabas3/userauth/internal/rate"
)

const DefaultBasePath = "/user/auth"

// Deps contains everything the route tree needs. RateLimiter, Observer and
// MetricsHandler are optional.
type Deps struct {
	BasePath string
	Auth     *authctrl.Controllers
	Health   *health.HealthController
	Identity mw.IdentityConfig

	RateLimiter mw.RateLimiter
	Observer    mw.HTTPObserver

	MetricsHandler http.Handler
	MetricsPath    string
}

// New builds the HTTP handler for the service.
func New(d Deps) http.Handler {
	base := "/" + strings.Trim(d.BasePath, "/")
	if base == "/" {
		base = DefaultBasePath
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	rt := routes{deps: d, base: base}
	c := d.Auth

	r.Route(base, func(r chi.Router) {
		r.Method(http.MethodPost, "/kakao", rt.public("/kakao", http.HandlerFunc(c.Login.Login)))
		r.Method(http.MethodGet, "/kakao", rt.public("/kakao", http.HandlerFunc(c.Browser.Callback)))
		r.Method(http.MethodGet, "/kakao/authorize", rt.public("/kakao/authorize", http.HandlerFunc(c.Browser.Authorize)))

		// Refresh and logout accept a missing or unusable bearer; in local mode the
		// refresh token subject stands in for it.
		r.Method(http.MethodPost, "/refresh", rt.identified("/refresh", false, http.HandlerFunc(c.Refresh.Refresh)))
		r.Method(http.MethodPost, "/logout", rt.identified("/logout", false, http.HandlerFunc(c.Logout.Logout)))

		r.Method(http.MethodPost, "/logout-all", rt.identified("/logout-all", true, http.HandlerFunc(c.Logout.LogoutAll)))
		r.Method(http.MethodGet, "/me", rt.identified("/me", true, http.HandlerFunc(c.Me.Me)))
		r.Method(http.MethodDelete, "/me", rt.identified("/me", true, http.HandlerFunc(c.Me.Delete)))
	})

	if d.Health != nil {
		r.Method(http.MethodGet, "/healthz", rt.probe("/healthz", http.HandlerFunc(d.Health.Healthz)))
		r.Method(http.MethodGet, "/readyz", rt.probe("/readyz", http.HandlerFunc(d.Health.Readyz)))
	}
	if d.MetricsHandler != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, d.MetricsHandler)
	}
	return r
}

type routes struct {
	deps Deps
	base string
}

func (rt routes) common(route string) []mw.Middleware {
	return []mw.Middleware{
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithSecurityHeaders(),
		mw.WithNoStore(),
		mw.WithMetrics(rt.deps.Observer, rt.base+route),
	}
}

// public is the chain for unauthenticated, rate-limited endpoints. Each route
// has its own limiter bucket per client IP.
func (rt routes) public(route string, h http.Handler) http.Handler {
	chain := rt.common(route)
	if rt.deps.RateLimiter != nil {
		chain = append(chain, mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: rt.deps.RateLimiter,
			KeyFunc: func(r *http.Request) string { return rate.Key(route, mw.IPOnlyRateKey(r)) },
		}))
	}
	chain = append(chain, mw.WithLogging())
	return mw.Chain(h, chain...)
}

// identified extracts the caller identity after the public chain.
func (rt routes) identified(route string, required bool, h http.Handler) http.Handler {
	idc := rt.deps.Identity
	idc.Required = required
	return rt.public(route, mw.WithIdentity(idc)(h))
}

func (rt routes) probe(route string, h http.Handler) http.Handler {
	return mw.Chain(h, mw.WithRecover(), mw.WithMetrics(rt.deps.Observer, route))
}

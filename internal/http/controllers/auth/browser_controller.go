package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/userauth/internal/cache"
	dto "github.com/dropDatabas3/userauth/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/userauth/internal/http/errors"
	svc "github.com/dropDatabas3/userauth/internal/http/services/auth"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
	tokens "github.com/dropDatabas3/userauth/internal/security/token"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	statePrefix = "oauth_state:"
)

// Authorizer builds the provider authorize URL for a state value.
type Authorizer interface {
	AuthorizeURL(state string) string
}

// CookieConfig controls the session cookies set by the browser callback.
type CookieConfig struct {
	Secure   bool
	Domain   string
	SameSite http.SameSite
}

// BrowserDeps configures the browser redirect flow.
type BrowserDeps struct {
	Login      svc.LoginService
	Authorizer Authorizer
	States     cache.Cache
	StateTTL   time.Duration
	// LoginRedirect receives ?error=<reason> when the flow fails.
	LoginRedirect string
	Cookies       CookieConfig
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// BrowserController handles the redirect-based login:
// GET /kakao/authorize and the provider callback GET /kakao.
type BrowserController struct {
	deps BrowserDeps
}

func NewBrowserController(deps BrowserDeps) *BrowserController {
	if deps.LoginRedirect == "" {
		deps.LoginRedirect = "/login"
	}
	if deps.StateTTL <= 0 {
		deps.StateTTL = 10 * time.Minute
	}
	if deps.Cookies.SameSite == 0 {
		deps.Cookies.SameSite = http.SameSiteLaxMode
	}
	return &BrowserController{deps: deps}
}

// Authorize stores the requested return path under a fresh opaque state and
// redirects to the provider.
func (c *BrowserController) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("BrowserController.Authorize"))

	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	state, err := tokens.GenerateOpaqueToken(24)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	returnTo := r.URL.Query().Get("return_to")
	if !isLocalPath(returnTo) {
		returnTo = "/"
	}
	if err := c.deps.States.Set(ctx, statePrefix+state, returnTo, c.deps.StateTTL); err != nil {
		log.Error("state store failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	http.Redirect(w, r, c.deps.Authorizer.AuthorizeURL(state), http.StatusFound)
}

// Callback completes the provider redirect, sets the session cookies and sends
// the browser back to where it started.
func (c *BrowserController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("BrowserController.Callback"))

	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		log.Info("provider returned error",
			logger.String("error", e), logger.String("error_description", q.Get("error_description")))
		c.failRedirect(w, r, e)
		return
	}
	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		c.failRedirect(w, r, "code_missing")
		return
	}

	res, err := c.deps.Login.Login(ctx, dto.LoginRequest{Code: code})
	if err != nil {
		log.Info("callback login failed", logger.Err(err))
		c.failRedirect(w, r, "login_failed")
		return
	}

	c.setCookie(w, AccessCookie, res.AccessToken, c.deps.AccessTTL)
	c.setCookie(w, RefreshCookie, res.RefreshToken, c.deps.RefreshTTL)
	http.Redirect(w, r, c.returnPath(r, q.Get("state")), http.StatusFound)
}

// returnPath resolves the post-login destination: a path stored for an opaque
// state (single use), else a local path passed as the state itself, else "/".
func (c *BrowserController) returnPath(r *http.Request, state string) string {
	if state == "" {
		return "/"
	}
	if !strings.HasPrefix(state, "/") {
		path, err := c.deps.States.Take(r.Context(), statePrefix+state)
		if err == nil && isLocalPath(path) {
			return path
		}
		if err != nil && !cache.IsNotFound(err) {
			logger.From(r.Context()).Warn("state lookup failed", logger.Err(err))
		}
		return "/"
	}
	if isLocalPath(state) {
		return state
	}
	return "/"
}

func (c *BrowserController) failRedirect(w http.ResponseWriter, r *http.Request, reason string) {
	target := c.deps.LoginRedirect
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	http.Redirect(w, r, target+sep+"error="+url.QueryEscape(reason), http.StatusFound)
}

func (c *BrowserController) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.deps.Cookies.Domain,
		MaxAge:   maxAge(ttl),
		HttpOnly: true,
		Secure:   c.deps.Cookies.Secure,
		SameSite: c.deps.Cookies.SameSite,
	})
}

// isLocalPath rejects absolute and protocol-relative URLs so the redirect
// cannot leave this site.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

// Package auth contains the HTTP controllers for the /user/auth endpoints.
package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	httperrors "github.com/dropDatabas3/userauth/internal/http/errors"
	svc "github.com/dropDatabas3/userauth/internal/http/services/auth"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	maxBodySize     = 8 * 1024 // 8KB
)

// Controllers groups every controller of the auth domain.
type Controllers struct {
	Login   *LoginController
	Browser *BrowserController
	Refresh *RefreshController
	Logout  *LogoutController
	Me      *MeController
}

// NewControllers builds the auth controllers on top of the services.
func NewControllers(s svc.Services, browser BrowserDeps) *Controllers {
	browser.Login = s.Login
	return &Controllers{
		Login:   NewLoginController(s.Login),
		Browser: NewBrowserController(browser),
		Refresh: NewRefreshController(s.Refresh),
		Logout:  NewLogoutController(s.Logout),
		Me:      NewMeController(s.Account),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
}

// decodeJSON reads a size-limited JSON body into dst. An empty body leaves
// dst zero.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) *httperrors.AppError {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return httperrors.ErrBodyTooLarge
	}
	return httperrors.ErrInvalidJSON
}

// readRefreshToken accepts {"refreshToken"} as JSON or refreshToken /
// refresh_token as a form field.
func readRefreshToken(w http.ResponseWriter, r *http.Request) (string, *httperrors.AppError) {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.Contains(ct, "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		if err := r.ParseForm(); err != nil {
			return "", httperrors.ErrBadRequest.WithDetail("invalid form")
		}
		tok := r.PostFormValue("refreshToken")
		if tok == "" {
			tok = r.PostFormValue("refresh_token")
		}
		return tok, nil
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if appErr := decodeJSON(w, r, &body); appErr != nil {
		return "", appErr
	}
	return body.RefreshToken, nil
}

// writeAuthError maps the service error taxonomy onto HTTP errors.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, svc.ErrMissingIdentity):
		httperrors.WriteError(w, httperrors.ErrMissingIdentity.WithCause(err))
	case errors.Is(err, svc.ErrBadRequest):
		detail := strings.TrimPrefix(err.Error(), svc.ErrBadRequest.Error()+": ")
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail(detail))
	case errors.Is(err, svc.ErrUpstreamAuth):
		httperrors.WriteError(w, httperrors.ErrUpstreamAuth.WithCause(err))
	case errors.Is(err, svc.ErrUpstreamUnavailable):
		httperrors.WriteError(w, httperrors.ErrUpstreamUnavailable.WithCause(err))
	case errors.Is(err, svc.ErrTokenExpired):
		httperrors.WriteError(w, httperrors.ErrTokenExpired.WithCause(err))
	case errors.Is(err, svc.ErrTokenInvalid):
		httperrors.WriteError(w, httperrors.ErrTokenInvalid.WithCause(err))
	case errors.Is(err, svc.ErrSubjectMismatch):
		httperrors.WriteError(w, httperrors.ErrSubjectMismatch.WithCause(err))
	case errors.Is(err, svc.ErrRefreshInvalidated):
		httperrors.WriteError(w, httperrors.ErrRefreshInvalidated.WithCause(err))
	case errors.Is(err, svc.ErrNotFound):
		httperrors.WriteError(w, httperrors.ErrUserNotFound.WithCause(err))
	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
	}
}

// maxAge converts a TTL to a cookie Max-Age in whole seconds.
func maxAge(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	return int(ttl / time.Second)
}

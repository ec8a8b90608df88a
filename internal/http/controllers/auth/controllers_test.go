package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/userauth/internal/cache/memory"
	dto "github.com/dropDatabas3/userauth/internal/http/dto/auth"
	"github.com/dropDatabas3/userauth/internal/http/middlewares"
	svc "github.com/dropDatabas3/userauth/internal/http/services/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogin struct {
	got dto.LoginRequest
	res *dto.LoginResult
	err error
}

func (f *fakeLogin) Login(_ context.Context, in dto.LoginRequest) (*dto.LoginResult, error) {
	f.got = in
	return f.res, f.err
}

type fakeRefresh struct {
	identity string
	token    string
	res      *dto.RefreshResult
	err      error
}

func (f *fakeRefresh) Refresh(_ context.Context, identity string, in dto.RefreshRequest) (*dto.RefreshResult, error) {
	f.identity, f.token = identity, in.RefreshToken
	return f.res, f.err
}

type fakeLogout struct {
	identity string
	token    string
	err      error
}

func (f *fakeLogout) Logout(_ context.Context, identity string, in dto.RefreshRequest) error {
	f.identity, f.token = identity, in.RefreshToken
	return f.err
}

func (f *fakeLogout) LogoutAll(_ context.Context, identity string) (int, error) {
	f.identity = identity
	return 2, f.err
}

type fakeAccount struct {
	deleted string
	err     error
}

func (f *fakeAccount) CurrentUser(_ context.Context, identity string) (*dto.UserSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.UserSummary{ID: identity, UserID: identity, Nickname: "neo"}, nil
}

func (f *fakeAccount) DeleteAccount(_ context.Context, identity string) error {
	f.deleted = identity
	return f.err
}

type authorizer struct{}

func (authorizer) AuthorizeURL(state string) string {
	return "https://kauth.example/oauth/authorize?state=" + url.QueryEscape(state)
}

func loginResult() *dto.LoginResult {
	return &dto.LoginResult{
		AccessToken:  "acc",
		RefreshToken: "ref",
		User:         dto.UserSummary{ID: "u1", UserID: "u1", Nickname: "neo", ProfileImageURL: "https://img"},
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func withUser(r *http.Request, id string) *http.Request {
	return r.WithContext(middlewares.WithUserID(r.Context(), id))
}

func TestLogin(t *testing.T) {
	f := &fakeLogin{res: loginResult()}
	c := NewLoginController(f)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/user/auth/kakao", strings.NewReader(`{"code":"abc","redirectUri":"http://cb"}`))
	c.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", f.got.Code)
	assert.Equal(t, "http://cb", f.got.RedirectURI)
	assert.JSONEq(t, `{"accessToken":"acc","refreshToken":"ref","user":{"id":"u1","userId":"u1","nickname":"neo","profileImageUrl":"https://img"}}`, rec.Body.String())
}

func TestLogin_Errors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{svc.ErrLoginInputRequired, http.StatusBadRequest, "BAD_REQUEST"},
		{fmt.Errorf("%w: boom", svc.ErrUpstreamAuth), http.StatusUnauthorized, "UPSTREAM_AUTH_FAILED"},
		{fmt.Errorf("%w: boom", svc.ErrUpstreamUnavailable), http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
		{fmt.Errorf("%w: boom", svc.ErrInternal), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		NewLoginController(&fakeLogin{err: tc.err}).Login(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
		assert.Equal(t, tc.status, rec.Code, tc.code)
		assert.Equal(t, tc.code, errorCode(t, rec))
	}

	rec := httptest.NewRecorder()
	NewLoginController(&fakeLogin{err: svc.ErrLoginInputRequired}).Login(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Contains(t, rec.Body.String(), "Either 'code' or 'kakaoAccessToken' is required")

	rec = httptest.NewRecorder()
	NewLoginController(&fakeLogin{}).Login(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)))
	assert.Equal(t, "INVALID_JSON", errorCode(t, rec))

	rec = httptest.NewRecorder()
	NewLoginController(&fakeLogin{}).Login(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))
}

func TestRefresh_JSONAndForm(t *testing.T) {
	f := &fakeRefresh{res: &dto.RefreshResult{AccessToken: "acc2"}}
	c := NewRefreshController(f)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refreshToken":"r1"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Refresh(rec, withUser(req, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", f.identity)
	assert.Equal(t, "r1", f.token)
	assert.JSONEq(t, `{"accessToken":"acc2"}`, rec.Body.String())

	f.res = &dto.RefreshResult{AccessToken: "acc3", RefreshToken: "r2"}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("refresh_token=r9"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.Refresh(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", f.identity)
	assert.Equal(t, "r9", f.token)
	assert.JSONEq(t, `{"accessToken":"acc3","refreshToken":"r2"}`, rec.Body.String())
}

func TestRefresh_Errors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{svc.ErrMissingIdentity, http.StatusBadRequest, "MISSING_IDENTITY"},
		{svc.ErrTokenExpired, http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{svc.ErrTokenInvalid, http.StatusUnauthorized, "TOKEN_INVALID"},
		{svc.ErrSubjectMismatch, http.StatusUnauthorized, "SUBJECT_MISMATCH"},
		{svc.ErrRefreshInvalidated, http.StatusUnauthorized, "REFRESH_INVALIDATED"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		NewRefreshController(&fakeRefresh{err: tc.err}).Refresh(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refreshToken":"x"}`)))
		assert.Equal(t, tc.status, rec.Code, tc.code)
		assert.Equal(t, tc.code, errorCode(t, rec))
	}
}

func TestRefresh_BodyTooLarge(t *testing.T) {
	big := `{"refreshToken":"` + strings.Repeat("a", maxBodySize) + `"}`
	rec := httptest.NewRecorder()
	NewRefreshController(&fakeRefresh{}).Refresh(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLogoutAndLogoutAll(t *testing.T) {
	f := &fakeLogout{}
	c := NewLogoutController(f)

	rec := httptest.NewRecorder()
	c.Logout(rec, withUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refreshToken":"r1"}`)), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", f.token)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	c.LogoutAll(rec, withUser(httptest.NewRequest(http.MethodPost, "/", nil), "u7"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u7", f.identity)

	f.err = svc.ErrRefreshInvalidated
	rec = httptest.NewRecorder()
	c.Logout(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refreshToken":"r1"}`)))
	assert.Equal(t, "REFRESH_INVALIDATED", errorCode(t, rec))
}

func TestMe(t *testing.T) {
	f := &fakeAccount{}
	c := NewMeController(f)

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/me", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"userId":"u1"`)

	rec = httptest.NewRecorder()
	c.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodDelete, "/me", nil), "u1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", f.deleted)

	f.err = svc.ErrNotFound
	rec = httptest.NewRecorder()
	c.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/me", nil), "ghost"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", errorCode(t, rec))

	rec = httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/me", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func newBrowser(login svc.LoginService) (*BrowserController, *memory.Mem) {
	states := memory.New(time.Minute)
	return NewBrowserController(BrowserDeps{
		Login:         login,
		Authorizer:    authorizer{},
		States:        states,
		StateTTL:      time.Minute,
		LoginRedirect: "/login",
		Cookies:       CookieConfig{Secure: true, SameSite: http.SameSiteLaxMode},
		AccessTTL:     30 * time.Minute,
		RefreshTTL:    14 * 24 * time.Hour,
	}), states
}

func TestBrowser_AuthorizeThenCallback(t *testing.T) {
	f := &fakeLogin{res: loginResult()}
	c, _ := newBrowser(f)

	rec := httptest.NewRecorder()
	c.Authorize(rec, httptest.NewRequest(http.MethodGet, "/kakao/authorize?return_to=/dashboard", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	rec = httptest.NewRecorder()
	c.Callback(rec, httptest.NewRequest(http.MethodGet, "/kakao?code=c1&state="+url.QueryEscape(state), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.Equal(t, "c1", f.got.Code)

	cookies := map[string]*http.Cookie{}
	for _, ck := range rec.Result().Cookies() {
		cookies[ck.Name] = ck
	}
	require.Contains(t, cookies, AccessCookie)
	require.Contains(t, cookies, RefreshCookie)
	assert.Equal(t, "acc", cookies[AccessCookie].Value)
	assert.True(t, cookies[AccessCookie].HttpOnly)
	assert.True(t, cookies[AccessCookie].Secure)
	assert.Equal(t, "/", cookies[AccessCookie].Path)
	assert.Equal(t, 1800, cookies[AccessCookie].MaxAge)
	assert.Equal(t, 14*24*3600, cookies[RefreshCookie].MaxAge)

	// state is single use
	rec = httptest.NewRecorder()
	c.Callback(rec, httptest.NewRequest(http.MethodGet, "/kakao?code=c2&state="+url.QueryEscape(state), nil))
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestBrowser_CallbackReturnPaths(t *testing.T) {
	c, _ := newBrowser(&fakeLogin{res: loginResult()})
	cases := map[string]string{
		"":                      "/",
		"/settings":             "/settings",
		"//evil.example":        "/",
		"unknown-opaque-state":  "/",
		"https://evil.example/": "/",
	}
	for state, want := range cases {
		rec := httptest.NewRecorder()
		c.Callback(rec, httptest.NewRequest(http.MethodGet, "/kakao?code=c&state="+url.QueryEscape(state), nil))
		assert.Equal(t, want, rec.Header().Get("Location"), state)
	}
}

func TestBrowser_CallbackFailures(t *testing.T) {
	c, _ := newBrowser(&fakeLogin{err: svc.ErrUpstreamAuth})

	rec := httptest.NewRecorder()
	c.Callback(rec, httptest.NewRequest(http.MethodGet, "/kakao?error=access_denied&error_description=nope", nil))
	assert.Equal(t, "/login?error=access_denied", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	c.Callback(rec, httptest.NewRequest(http.MethodGet, "/kakao", nil))
	assert.Equal(t, "/login?error=code_missing", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	c.Callback(rec, httptest.NewRequest(http.MethodGet, "/kakao?code=bad", nil))
	assert.Equal(t, "/login?error=login_failed", rec.Header().Get("Location"))
	assert.Empty(t, rec.Result().Cookies())
}

func TestBrowser_AuthorizeRejectsForeignReturnTo(t *testing.T) {
	c, states := newBrowser(&fakeLogin{})
	rec := httptest.NewRecorder()
	c.Authorize(rec, httptest.NewRequest(http.MethodGet, "/kakao/authorize?return_to=https://evil.example", nil))
	loc, _ := url.Parse(rec.Header().Get("Location"))
	v, err := states.Get(context.Background(), statePrefix+loc.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, "/", v)
}

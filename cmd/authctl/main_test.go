package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seen struct {
	method string
	path   string
	user   string
	body   map[string]string
}

func fakeAPI(t *testing.T, status int, reply string) (*httptest.Server, *seen) {
	t.Helper()
	s := &seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.method, s.path, s.user = r.Method, r.URL.Path, r.Header.Get("X-User-Id")
		b, _ := io.ReadAll(r.Body)
		s.body = map[string]string{}
		_ = json.Unmarshal(b, &s.body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, s
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLoginCommand(t *testing.T) {
	srv, s := fakeAPI(t, http.StatusOK, `{"accessToken":"a"}`)
	out, err := run(t, "--base-url", srv.URL, "login", "--code", "abc")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, s.method)
	assert.Equal(t, "/user/auth/kakao", s.path)
	assert.Equal(t, "abc", s.body["code"])
	assert.Contains(t, out, `"accessToken":"a"`)

	_, err = run(t, "--base-url", srv.URL, "login")
	assert.ErrorContains(t, err, "exactly one of --code or --kakao-token")
}

func TestRefreshSendsIdentity(t *testing.T) {
	srv, s := fakeAPI(t, http.StatusOK, `{"accessToken":"a2"}`)
	_, err := run(t, "--base-url", srv.URL, "refresh", "--user", "u1", "--token", "r1")
	require.NoError(t, err)
	assert.Equal(t, "/user/auth/refresh", s.path)
	assert.Equal(t, "u1", s.user)
	assert.Equal(t, "r1", s.body["refreshToken"])
}

func TestDeleteAndErrors(t *testing.T) {
	srv, s := fakeAPI(t, http.StatusNoContent, "")
	out, err := run(t, "--base-url", srv.URL, "delete", "--user", "u1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, s.method)
	assert.Equal(t, "/user/auth/me", s.path)
	assert.Contains(t, out, "status=204")

	srv, _ = fakeAPI(t, http.StatusUnauthorized, `{"code":"REFRESH_INVALIDATED"}`)
	_, err = run(t, "--base-url", srv.URL, "logout", "--user", "u1", "--token", "r")
	assert.ErrorContains(t, err, "REFRESH_INVALIDATED")
}

func TestMigrateList(t *testing.T) {
	out, err := run(t, "migrate", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "0001_init_up.sql")

	out, err = run(t, "migrate", "--list", "--down")
	require.NoError(t, err)
	assert.Contains(t, out, "0001_init_down.sql")
}

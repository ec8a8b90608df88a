package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/userauth/internal/directory"
	"github.com/dropDatabas3/userauth/internal/domain/repository"
	dto "github.com/dropDatabas3/userauth/internal/http/dto/auth"
	jwtx "github.com/dropDatabas3/userauth/internal/jwt"
	"github.com/dropDatabas3/userauth/internal/oauth/kakao"
	"github.com/dropDatabas3/userauth/internal/store/memory"
	"github.com/dropDatabas3/userauth/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/userauth/internal/audit"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
)

// fakeProvider maps codes to provider tokens and tokens to profiles.
type fakeProvider struct {
	mu        sync.Mutex
	codes     map[string]string
	profiles  map[string]*kakao.Profile
	unlinkErr error
	unlinked  []int64
	redirects []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{codes: map[string]string{}, profiles: map[string]*kakao.Profile{}}
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code, redirectURI string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects = append(f.redirects, redirectURI)
	tok, ok := f.codes[code]
	if !ok {
		return "", fmt.Errorf("%w: invalid_grant", kakao.ErrUpstreamAuth)
	}
	delete(f.codes, code) // single use
	return tok, nil
}

func (f *fakeProvider) FetchProfile(ctx context.Context, token string) (*kakao.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", kakao.ErrUpstreamUnavailable, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == "outage" {
		return nil, kakao.ErrUpstreamUnavailable
	}
	p, ok := f.profiles[token]
	if !ok {
		return nil, kakao.ErrUpstreamAuth
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProvider) Unlink(_ context.Context, providerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlinked = append(f.unlinked, providerID)
	return f.unlinkErr
}

// failingStore fails Save on demand.
type failingStore struct {
	*memory.RefreshTokens
	failSave bool
}

func (s *failingStore) Save(ctx context.Context, userID, jti string, exp time.Time) error {
	if s.failSave {
		return errors.New("store down")
	}
	return s.RefreshTokens.Save(ctx, userID, jti, exp)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) { r.mu.Lock(); r.events = append(r.events, s); r.mu.Unlock() }
func (r *recorder) Login(res string) { r.add("login:" + res) }
func (r *recorder) Refresh(res string) { r.add("refresh:" + res) }
func (r *recorder) Logout(k, res string) { r.add("logout_" + k + ":" + res) }
func (r *recorder) AccountDeleted(u string) { r.add("deleted:" + u) }

type harness struct {
	clock    *storetest.Clock
	provider *fakeProvider
	users    *memory.Users
	store    *failingStore
	issuer   *jwtx.Issuer
	metrics  *recorder
	svc      Services
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		clock:    storetest.NewClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)),
		provider: newFakeProvider(),
		users:    memory.NewUsers(),
		metrics:  &recorder{},
	}
	h.store = &failingStore{RefreshTokens: memory.NewRefreshTokens(h.clock.Now)}
	iss, err := jwtx.NewIssuer(jwtx.Options{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "userauth-test",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 14 * 24 * time.Hour,
		Now:        h.clock.Now,
	})
	require.NoError(t, err)
	h.issuer = iss
	h.svc = NewServices(Deps{
		Provider:  h.provider,
		Directory: directory.New(h.users, directory.Options{Now: h.clock.Now}),
		Issuer:    iss,
		Refresh:   h.store,
		Metrics:   h.metrics,
		Config:    cfg,
	})
	return h
}

func (h *harness) login(t *testing.T, providerToken string) *dto.LoginResult {
	t.Helper()
	res, err := h.svc.Login.Login(context.Background(), dto.LoginRequest{KakaoAccessToken: providerToken})
	require.NoError(t, err)
	return res
}

func (h *harness) jti(t *testing.T, token string) string {
	t.Helper()
	c, err := h.issuer.Verify(token)
	require.NoError(t, err)
	return c.TokenID()
}

func TestLogin_ByCodeCreatesUserAndWhitelistsRefresh(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.codes["abc"] = "tok-555"
	h.provider.profiles["tok-555"] = &kakao.Profile{ID: 555, Nickname: "Ava"}

	res, err := h.svc.Login.Login(context.Background(), dto.LoginRequest{Code: "abc", RedirectURI: "myapp://cb"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "Ava", res.User.Nickname)
	assert.Equal(t, res.User.ID, res.User.UserID)
	assert.Equal(t, []string{"myapp://cb"}, h.provider.redirects)

	u, err := h.users.GetByProviderID(context.Background(), 555)
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)

	access, err := h.issuer.Verify(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, jwtx.TypeAccess, access.Type)
	assert.Equal(t, u.ID, access.UserID())

	ok, err := h.store.Exists(context.Background(), u.ID, h.jti(t, res.RefreshToken))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"login:ok"}, h.metrics.events)
}

func TestLogin_SecondLoginReusesUserAndAddsSession(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t1"] = &kakao.Profile{ID: 555, Nickname: "Ava"}
	first := h.login(t, "t1")

	h.provider.profiles["t1"] = &kakao.Profile{ID: 555, Nickname: "Ava2"}
	second := h.login(t, "t1")

	assert.False(t, second.Created)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, "Ava2", second.User.Nickname)
	assert.NotEqual(t, h.jti(t, first.RefreshToken), h.jti(t, second.RefreshToken))
	assert.Equal(t, 2, h.store.Count(first.User.ID))
	assert.Equal(t, 1, h.users.Len())
}

func TestLogin_InputValidation(t *testing.T) {
	h := newHarness(t, Config{})
	for name, in := range map[string]dto.LoginRequest{
		"neither": {},
		"blank":   {Code: "  ", KakaoAccessToken: " "},
		"both":    {Code: "abc", KakaoAccessToken: "tok"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.Login.Login(context.Background(), in)
			assert.ErrorIs(t, err, ErrBadRequest)
			assert.ErrorContains(t, err, "Either 'code' or 'kakaoAccessToken' is required")
		})
	}
}

func TestLogin_UpstreamErrors(t *testing.T) {
	h := newHarness(t, Config{})

	_, err := h.svc.Login.Login(context.Background(), dto.LoginRequest{Code: "unknown"})
	assert.ErrorIs(t, err, ErrUpstreamAuth)

	_, err = h.svc.Login.Login(context.Background(), dto.LoginRequest{KakaoAccessToken: "rejected"})
	assert.ErrorIs(t, err, ErrUpstreamAuth)

	_, err = h.svc.Login.Login(context.Background(), dto.LoginRequest{KakaoAccessToken: "outage"})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Zero(t, h.users.Len())
}

func TestLogin_SaveFailureRemovesCreatedUser(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t"] = &kakao.Profile{ID: 1}
	h.store.failSave = true

	_, err := h.svc.Login.Login(context.Background(), dto.LoginRequest{KakaoAccessToken: "t"})
	assert.ErrorIs(t, err, ErrInternal)
	assert.Zero(t, h.users.Len())
}

func TestLogin_SaveFailureKeepsExistingUser(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t"] = &kakao.Profile{ID: 1}
	h.login(t, "t")

	h.store.failSave = true
	_, err := h.svc.Login.Login(context.Background(), dto.LoginRequest{KakaoAccessToken: "t"})
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, 1, h.users.Len())
}

func TestLogin_CancelledBeforeProviderCall(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t"] = &kakao.Profile{ID: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.Login.Login(ctx, dto.LoginRequest{KakaoAccessToken: "t"})
	assert.Error(t, err)
	assert.Zero(t, h.users.Len())
}

func TestRefresh_HeaderMode(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t"] = &kakao.Profile{ID: 1}
	lr := h.login(t, "t")

	res, err := h.svc.Refresh.Refresh(context.Background(), lr.User.ID, dto.RefreshRequest{RefreshToken: lr.RefreshToken})
	require.NoError(t, err)
	assert.Empty(t, res.RefreshToken)
	c, err := h.issuer.Verify(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, lr.User.ID, c.UserID())

	// without rotation the same token keeps working
	_, err = h.svc.Refresh.Refresh(context.Background(), lr.User.ID, dto.RefreshRequest{RefreshToken: lr.RefreshToken})
	assert.NoError(t, err)

	_, err = h.svc.Refresh.Refresh(context.Background(), "", dto.RefreshRequest{RefreshToken: lr.RefreshToken})
	assert.ErrorIs(t, err, ErrMissingIdentity)

	_, err = h.svc.Refresh.Refresh(context.Background(), lr.User.ID, dto.RefreshRequest{})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestRefresh_SubjectMismatch(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["a"] = &kakao.Profile{ID: 1}
	h.provider.profiles["b"] = &kakao.Profile{ID: 2}
	alice := h.login(t, "a")
	bob := h.login(t, "b")

	_, err := h.svc.Refresh.Refresh(context.Background(), bob.User.ID, dto.RefreshRequest{RefreshToken: alice.RefreshToken})
	assert.ErrorIs(t, err, ErrSubjectMismatch)

	err = h.svc.Logout.Logout(context.Background(), bob.User.ID, dto.RefreshRequest{RefreshToken: alice.RefreshToken})
	assert.ErrorIs(t, err, ErrSubjectMismatch)

	// alice's session is untouched
	ok, _ := h.store.Exists(context.Background(), alice.User.ID, h.jti(t, alice.RefreshToken))
	assert.True(t, ok)
}

func TestRefresh_RejectsAccessTokenAndGarbage(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t"] = &kakao.Profile{ID: 1}
	lr := h.login(t, "t")

	_, err := h.svc.Refresh.Refresh(context.Background(), lr.User.ID, dto.RefreshRequest{RefreshToken: lr.AccessToken})
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = h.svc.Refresh.Refresh(context.Background(), lr.User.ID, dto.RefreshRequest{RefreshToken: "not.a.jwt"})
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefresh_ExpiredTokenDoesNotMutate(t *testing.T) {
	h := newHarness(t, Config{RotateRefresh: true})
	h.provider.profiles["t"] = &kakao.Profile{ID: 1}
	lr := h.login(t, "t")
	jti := h.jti(t, lr.RefreshToken)

	h.clock.Advance(15 * 24 * time.Hour)
	res, err := h.svc.Refresh.Refresh(context.Background(), lr.User.ID, dto.RefreshRequest{RefreshToken: lr.RefreshToken})
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Nil(t, res)

	// the whitelist entry was neither rotated nor revoked
	h.clock.Advance(-15 * 24 * time.Hour)
	assert.Equal(t, 1, h.store.Count(lr.User.ID))
	ok, _ := h.store.Exists(context.Background(), lr.User.ID, jti)
	assert.True(t, ok)
}

func TestRefresh_NotWhitelisted(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t"] = &kakao.Profile{ID: 1}
	lr := h.login(t, "t")

	_, err := h.store.RevokeAll(context.Background(), lr.User.ID)
	require.NoError(t, err)

	_, err = h.svc.Refresh.Refresh(context.Background(), lr.User.ID, dto.RefreshRequest{RefreshToken: lr.RefreshToken})
	assert.ErrorIs(t, err, ErrRefreshInvalidated)
}

func TestRefresh_RotationIsSingleUse(t *testing.T) {
	h := newHarness(t, Config{RotateRefresh: true})
	h.provider.profiles["t"] = &kakao.Profile{ID: 1}
	lr := h.login(t, "t")
	ctx := context.Background()

	res, err := h.svc.Refresh.Refresh(ctx, lr.User.ID, dto.RefreshRequest{RefreshToken: lr.RefreshToken})
	require.NoError(t, err)
	require.NotEmpty(t, res.RefreshToken)
	assert.NotEqual(t, h.jti(t, lr.RefreshToken), h.jti(t, res.RefreshToken))

	_, err = h.svc.Refresh.Refresh(ctx, lr.User.ID, dto.RefreshRequest{RefreshToken: lr.RefreshToken})
	assert.ErrorIs(t, err, ErrRefreshInvalidated)

	// the rotated token works
	_, err = h.svc.Refresh.Refresh(ctx, lr.User.ID, dto.RefreshRequest{RefreshToken: res.RefreshToken})
	assert.NoError(t, err)
}

func TestRefresh_ConcurrentRotationHasOneWinner(t *testing.T) {
	h := newHarness(t, Config{RotateRefresh: true})
	h.provider.profiles["t"] = &kakao.Profile{ID: 1}
	lr := h.login(t, "t")

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Refresh.Refresh(context.Background(), lr.User.ID, dto.RefreshRequest{RefreshToken: lr.RefreshToken})
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrRefreshInvalidated)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, h.store.Count(lr.User.ID))
}

func TestRefresh_LocalModeFallsBackToTokenSubject(t *testing.T) {
	h := newHarness(t, Config{IdentityMode: IdentityLocal})
	h.provider.profiles["t"] = &kakao.Profile{ID: 1}
	lr := h.login(t, "t")

	_, err := h.svc.Refresh.Refresh(context.Background(), "", dto.RefreshRequest{RefreshToken: lr.RefreshToken})
	assert.NoError(t, err)

	_, err = h.svc.Refresh.Refresh(context.Background(), "someone-else", dto.RefreshRequest{RefreshToken: lr.RefreshToken})
	assert.ErrorIs(t, err, ErrSubjectMismatch)
}

func TestLogout_RevokesOnlyThatSession(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t"] = &kakao.Profile{ID: 1}
	phone := h.login(t, "t")
	laptop := h.login(t, "t")
	ctx := context.Background()

	require.NoError(t, h.svc.Logout.Logout(ctx, phone.User.ID, dto.RefreshRequest{RefreshToken: phone.RefreshToken}))

	_, err := h.svc.Refresh.Refresh(ctx, phone.User.ID, dto.RefreshRequest{RefreshToken: phone.RefreshToken})
	assert.ErrorIs(t, err, ErrRefreshInvalidated)
	_, err = h.svc.Refresh.Refresh(ctx, laptop.User.ID, dto.RefreshRequest{RefreshToken: laptop.RefreshToken})
	assert.NoError(t, err)

	// a second logout with the same token has nothing left to revoke
	err = h.svc.Logout.Logout(ctx, phone.User.ID, dto.RefreshRequest{RefreshToken: phone.RefreshToken})
	assert.ErrorIs(t, err, ErrRefreshInvalidated)
}

func TestLogoutAll(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t"] = &kakao.Profile{ID: 1}
	a := h.login(t, "t")
	h.login(t, "t")
	h.login(t, "t")

	n, err := h.svc.Logout.LogoutAll(context.Background(), a.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, h.store.Count(a.User.ID))

	_, err = h.svc.Logout.LogoutAll(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestDeleteAccount(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t"] = &kakao.Profile{ID: 77}
	lr := h.login(t, "t")
	h.login(t, "t")
	ctx := context.Background()

	require.NoError(t, h.svc.Account.DeleteAccount(ctx, lr.User.ID))
	assert.Zero(t, h.store.Count(lr.User.ID))
	assert.Equal(t, []int64{77}, h.provider.unlinked)

	_, err := h.svc.Account.CurrentUser(ctx, lr.User.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, h.svc.Account.DeleteAccount(ctx, lr.User.ID), ErrNotFound)

	_, err = h.svc.Refresh.Refresh(ctx, lr.User.ID, dto.RefreshRequest{RefreshToken: lr.RefreshToken})
	assert.ErrorIs(t, err, ErrRefreshInvalidated)
	assert.Contains(t, h.metrics.events, "deleted:ok")
}

func TestAuditTrail(t *testing.T) {
	h := newHarness(t, Config{RotateRefresh: true})
	h.provider.profiles["a"] = &kakao.Profile{ID: 1, Email: "alice@example.com"}
	h.provider.profiles["b"] = &kakao.Profile{ID: 2}

	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core))

	alice, err := h.svc.Login.Login(ctx, dto.LoginRequest{KakaoAccessToken: "a"})
	require.NoError(t, err)
	bob, err := h.svc.Login.Login(ctx, dto.LoginRequest{KakaoAccessToken: "b"})
	require.NoError(t, err)
	_, err = h.svc.Login.Login(ctx, dto.LoginRequest{KakaoAccessToken: "a"})
	require.NoError(t, err)

	_, err = h.svc.Refresh.Refresh(ctx, bob.User.ID, dto.RefreshRequest{RefreshToken: alice.RefreshToken})
	require.ErrorIs(t, err, ErrSubjectMismatch)
	_, err = h.svc.Refresh.Refresh(ctx, alice.User.ID, dto.RefreshRequest{RefreshToken: alice.RefreshToken})
	require.NoError(t, err)
	_, err = h.svc.Refresh.Refresh(ctx, alice.User.ID, dto.RefreshRequest{RefreshToken: alice.RefreshToken})
	require.ErrorIs(t, err, ErrRefreshInvalidated)
	_, err = h.svc.Logout.LogoutAll(ctx, alice.User.ID)
	require.NoError(t, err)
	require.NoError(t, h.svc.Account.DeleteAccount(ctx, bob.User.ID))

	var events []string
	for _, e := range logs.FilterLoggerName("audit").All() {
		events = append(events, e.ContextMap()["event"].(string))
	}
	assert.Equal(t, []string{
		audit.EventUserCreated,
		audit.EventUserCreated,
		audit.EventSubjectMismatch,
		audit.EventRefreshReplay,
		audit.EventLogoutAll,
		audit.EventAccountDeleted,
	}, events)

	created := logs.FilterLoggerName("audit").All()[0].ContextMap()
	assert.Equal(t, "a…@e….com", created["email"])
	assert.Equal(t, alice.User.ID, created["user_id"])
}

func TestDeleteAccount_UnlinkFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t"] = &kakao.Profile{ID: 77}
	h.provider.unlinkErr = kakao.ErrUpstreamUnavailable
	lr := h.login(t, "t")

	require.NoError(t, h.svc.Account.DeleteAccount(context.Background(), lr.User.ID))
	assert.Zero(t, h.users.Len())
	assert.Contains(t, h.metrics.events, "deleted:failed")
}

func TestDeleteAccount_UnlinkDisabled(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t"] = &kakao.Profile{ID: 77}
	h.provider.unlinkErr = kakao.ErrUnlinkDisabled
	lr := h.login(t, "t")

	require.NoError(t, h.svc.Account.DeleteAccount(context.Background(), lr.User.ID))
	assert.Contains(t, h.metrics.events, "deleted:skipped")
}

func TestCurrentUser(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.profiles["t"] = &kakao.Profile{ID: 5, Nickname: "neo", AvatarURL: "https://img", Email: "n@x.io"}
	lr := h.login(t, "t")

	u, err := h.svc.Account.CurrentUser(context.Background(), lr.User.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.UserSummary{ID: lr.User.ID, UserID: lr.User.ID, Nickname: "neo", ProfileImageURL: "https://img", Email: "n@x.io"}, *u)

	_, err = h.svc.Account.CurrentUser(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", ResultLabel(nil))
	assert.Equal(t, "token_expired", ResultLabel(mapTokenErr(jwtx.ErrTokenExpired)))
	assert.Equal(t, "token_invalid", ResultLabel(mapTokenErr(errors.New("x"))))
	assert.Equal(t, "upstream_auth", ResultLabel(mapProviderErr(kakao.ErrUpstreamAuth)))
	assert.Equal(t, "upstream_unavailable", ResultLabel(mapProviderErr(errors.New("dial"))))
	assert.Equal(t, "not_found", ResultLabel(ErrNotFound))
	assert.Equal(t, "error", ResultLabel(repository.ErrConflict))
}

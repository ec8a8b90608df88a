// Package auth holds the auth orchestration services: login, refresh, logout
// and account management. They are transport agnostic; controllers adapt them
// to HTTP.
package auth

import (
	"context"
	"time"

	"github.com/dropDatabas3/userauth/internal/directory"
	"github.com/dropDatabas3/userauth/internal/domain/repository"
	dto "github.com/dropDatabas3/userauth/internal/http/dto/auth"
	jwtx "github.com/dropDatabas3/userauth/internal/jwt"
	"github.com/dropDatabas3/userauth/internal/oauth/kakao"
	tokens "github.com/dropDatabas3/userauth/internal/security/token"
)

// IdentityMode says where the caller identity on refresh and logout comes from.
type IdentityMode string

const (
	// IdentityHeader trusts an identity injected by the gateway.
	IdentityHeader IdentityMode = "header"
	// IdentityLocal derives it from tokens verified by this service.
	IdentityLocal IdentityMode = "local"
)

type Config struct {
	RotateRefresh bool
	IdentityMode  IdentityMode
	// UnlinkTimeout bounds the best-effort provider unlink on deletion.
	UnlinkTimeout time.Duration
}

// ProviderClient is the identity provider as seen by the services.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (*kakao.Profile, error)
	Unlink(ctx context.Context, providerID int64) error
}

// UserDirectory resolves provider identities to local users.
type UserDirectory interface {
	Upsert(ctx context.Context, providerID int64, p directory.Profile) (*repository.User, bool, error)
	Get(ctx context.Context, id string) (*repository.User, error)
	Delete(ctx context.Context, id string) error
}

// TokenIssuer mints and verifies JWTs.
type TokenIssuer interface {
	IssueAccess(userID string) (string, time.Time, error)
	IssueRefresh(userID, jti string) (string, time.Time, error)
	Verify(token string) (*jwtx.Claims, error)
}

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	Login(result string)
	Refresh(result string)
	Logout(kind, result string)
	AccountDeleted(unlink string)
}

type noopRecorder struct{}

func (noopRecorder) Login(string)          {}
func (noopRecorder) Refresh(string)        {}
func (noopRecorder) Logout(string, string) {}
func (noopRecorder) AccountDeleted(string) {}

// Deps contains the dependencies shared by the auth services.
type Deps struct {
	Provider  ProviderClient
	Directory UserDirectory
	Issuer    TokenIssuer
	Refresh   repository.RefreshTokenStore
	Metrics   Recorder // nil = no-op
	NewJTI    func() string
	Config    Config
}

func (d Deps) withDefaults() Deps {
	if d.Metrics == nil {
		d.Metrics = noopRecorder{}
	}
	if d.NewJTI == nil {
		d.NewJTI = tokens.NewJTI
	}
	if d.Config.IdentityMode == "" {
		d.Config.IdentityMode = IdentityHeader
	}
	if d.Config.UnlinkTimeout <= 0 {
		d.Config.UnlinkTimeout = 30 * time.Second
	}
	return d
}

// Services groups the auth services.
type Services struct {
	Login   LoginService
	Refresh RefreshService
	Logout  LogoutService
	Account AccountService
}

// NewServices builds every auth service from one set of deps.
func NewServices(d Deps) Services {
	d = d.withDefaults()
	return Services{
		Login:   NewLoginService(d),
		Refresh: NewRefreshService(d),
		Logout:  NewLogoutService(d),
		Account: NewAccountService(d),
	}
}

func summary(u *repository.User) dto.UserSummary {
	return dto.UserSummary{
		ID:              u.ID,
		UserID:          u.ID,
		Nickname:        u.Nickname,
		ProfileImageURL: u.AvatarURL,
		Email:           u.Email,
	}
}

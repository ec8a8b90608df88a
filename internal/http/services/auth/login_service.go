package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/userauth/internal/audit"
	"github.com/dropDatabas3/userauth/internal/directory"
	dto "github.com/dropDatabas3/userauth/internal/http/dto/auth"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
	"github.com/dropDatabas3/userauth/internal/util"
	"go.uber.org/zap"
)

// LoginService signs a user in with the identity provider.
type LoginService interface {
	Login(ctx context.Context, in dto.LoginRequest) (*dto.LoginResult, error)
}

type loginService struct {
	deps Deps
}

func NewLoginService(deps Deps) LoginService {
	return &loginService{deps: deps.withDefaults()}
}

func (s *loginService) Login(ctx context.Context, in dto.LoginRequest) (res *dto.LoginResult, err error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("Login"),
	)
	defer func() { s.deps.Metrics.Login(ResultLabel(err)) }()

	code := strings.TrimSpace(in.Code)
	providerToken := strings.TrimSpace(in.KakaoAccessToken)
	if (code == "") == (providerToken == "") {
		return nil, ErrLoginInputRequired
	}

	if code != "" {
		providerToken, err = s.deps.Provider.ExchangeCode(ctx, code, strings.TrimSpace(in.RedirectURI))
		if err != nil {
			log.Info("code exchange failed", logger.Err(err))
			return nil, mapProviderErr(err)
		}
	}

	profile, err := s.deps.Provider.FetchProfile(ctx, providerToken)
	if err != nil {
		log.Info("profile fetch failed", logger.TokenTail("provider_token", providerToken), logger.Err(err))
		return nil, mapProviderErr(err)
	}
	log = log.With(logger.ProviderID(profile.ID))

	user, created, err := s.deps.Directory.Upsert(ctx, profile.ID, directory.Profile{
		Nickname:  profile.Nickname,
		AvatarURL: profile.AvatarURL,
		Email:     profile.Email,
	})
	if err != nil {
		log.Error("user upsert failed", logger.Err(err))
		return nil, fmt.Errorf("%w: upsert user: %w", ErrInternal, err)
	}
	log = log.With(logger.UserID(user.ID))

	access, accessExp, err := s.deps.Issuer.IssueAccess(user.ID)
	if err != nil {
		return nil, s.abort(ctx, log, user.ID, created, fmt.Errorf("%w: issue access: %w", ErrInternal, err))
	}
	jti := s.deps.NewJTI()
	refresh, refreshExp, err := s.deps.Issuer.IssueRefresh(user.ID, jti)
	if err != nil {
		return nil, s.abort(ctx, log, user.ID, created, fmt.Errorf("%w: issue refresh: %w", ErrInternal, err))
	}

	// Nothing is observable yet; a caller that went away gets no tokens and no new row.
	if err := ctx.Err(); err != nil {
		return nil, s.abort(ctx, log, user.ID, created, err)
	}
	if err := s.deps.Refresh.Save(ctx, user.ID, jti, refreshExp); err != nil {
		log.Error("refresh whitelist save failed", logger.Err(err))
		return nil, s.abort(ctx, log, user.ID, created, fmt.Errorf("%w: save refresh: %w", ErrInternal, err))
	}

	if created {
		audit.Log(ctx, audit.EventUserCreated,
			logger.UserID(user.ID),
			logger.ProviderID(profile.ID),
			zap.String("email", util.MaskEmail(profile.Email)))
	}
	log.Info("login ok", logger.JTI(jti), logger.Bool("created", created))
	return &dto.LoginResult{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		User:             summary(user),
		Created:          created,
	}, nil
}

// abort undoes a user row created by this login so a failed login leaves
// nothing behind. Updated rows are kept.
func (s *loginService) abort(ctx context.Context, log *zap.Logger, userID string, created bool, cause error) error {
	if !created {
		return cause
	}
	if err := s.deps.Directory.Delete(context.WithoutCancel(ctx), userID); err != nil {
		log.Error("login compensation failed, user row left behind", logger.Err(err))
		return cause
	}
	log.Warn("login aborted, created user removed", logger.Err(cause))
	return cause
}

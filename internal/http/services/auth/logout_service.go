package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/userauth/internal/audit"
	dto "github.com/dropDatabas3/userauth/internal/http/dto/auth"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
)

// LogoutService revokes refresh tokens.
type LogoutService interface {
	// Logout revokes exactly the presented token; other sessions stay valid.
	Logout(ctx context.Context, identity string, in dto.RefreshRequest) error
	// LogoutAll revokes every refresh token of identity and returns how many.
	LogoutAll(ctx context.Context, identity string) (int, error)
}

type logoutService struct {
	deps Deps
}

func NewLogoutService(deps Deps) LogoutService {
	return &logoutService{deps: deps.withDefaults()}
}

func (s *logoutService) Logout(ctx context.Context, identity string, in dto.RefreshRequest) (err error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.logout"),
		logger.Op("Logout"),
	)
	defer func() { s.deps.Metrics.Logout("single", ResultLabel(err)) }()

	claims, err := verifyRefresh(ctx, log, s.deps, identity, in.RefreshToken)
	if err != nil {
		return err
	}
	userID, jti := claims.UserID(), claims.TokenID()

	removed, err := s.deps.Refresh.Revoke(ctx, userID, jti)
	if err != nil {
		return fmt.Errorf("%w: revoke refresh: %w", ErrInternal, err)
	}
	if !removed {
		log.Info("logout of a token not whitelisted", logger.UserID(userID), logger.JTI(jti))
		return ErrRefreshInvalidated
	}
	log.Info("logout ok", logger.UserID(userID), logger.JTI(jti))
	return nil
}

func (s *logoutService) LogoutAll(ctx context.Context, identity string) (n int, err error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.logout"),
		logger.Op("LogoutAll"),
	)
	defer func() { s.deps.Metrics.Logout("all", ResultLabel(err)) }()

	identity = strings.TrimSpace(identity)
	if identity == "" {
		return 0, ErrMissingIdentity
	}
	n, err = s.deps.Refresh.RevokeAll(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("%w: revoke all: %w", ErrInternal, err)
	}
	log.Info("logout everywhere", logger.UserID(identity), logger.Count(n))
	audit.Log(ctx, audit.EventLogoutAll, logger.UserID(identity), logger.Count(n))
	return n, nil
}

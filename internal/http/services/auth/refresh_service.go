package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/userauth/internal/audit"
	"github.com/dropDatabas3/userauth/internal/domain/repository"
	dto "github.com/dropDatabas3/userauth/internal/http/dto/auth"
	jwtx "github.com/dropDatabas3/userauth/internal/jwt"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
	"go.uber.org/zap"
)

// RefreshService exchanges a whitelisted refresh token for a new access token.
// identity is the caller identity asserted by the transport; empty means none.
type RefreshService interface {
	Refresh(ctx context.Context, identity string, in dto.RefreshRequest) (*dto.RefreshResult, error)
}

type refreshService struct {
	deps Deps
}

func NewRefreshService(deps Deps) RefreshService {
	return &refreshService{deps: deps.withDefaults()}
}

func (s *refreshService) Refresh(ctx context.Context, identity string, in dto.RefreshRequest) (res *dto.RefreshResult, err error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.refresh"),
		logger.Op("Refresh"),
	)
	defer func() { s.deps.Metrics.Refresh(ResultLabel(err)) }()

	claims, err := verifyRefresh(ctx, log, s.deps, identity, in.RefreshToken)
	if err != nil {
		return nil, err
	}
	userID, jti := claims.UserID(), claims.TokenID()
	log = log.With(logger.UserID(userID), logger.JTI(jti))

	res = &dto.RefreshResult{}
	if s.deps.Config.RotateRefresh {
		newJTI := s.deps.NewJTI()
		refresh, refreshExp, err := s.deps.Issuer.IssueRefresh(userID, newJTI)
		if err != nil {
			return nil, fmt.Errorf("%w: issue refresh: %w", ErrInternal, err)
		}
		if err := s.deps.Refresh.Rotate(ctx, userID, jti, newJTI, refreshExp); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				log.Info("refresh rejected, jti not whitelisted")
				audit.Log(ctx, audit.EventRefreshReplay, logger.UserID(userID), logger.JTI(jti))
				return nil, ErrRefreshInvalidated
			}
			return nil, fmt.Errorf("%w: rotate refresh: %w", ErrInternal, err)
		}
		res.RefreshToken, res.RefreshExpiresAt = refresh, refreshExp
		log = log.With(zap.String("new_jti", newJTI))
	} else {
		ok, err := s.deps.Refresh.Exists(ctx, userID, jti)
		if err != nil {
			return nil, fmt.Errorf("%w: check refresh: %w", ErrInternal, err)
		}
		if !ok {
			log.Info("refresh rejected, jti not whitelisted")
			audit.Log(ctx, audit.EventRefreshReplay, logger.UserID(userID), logger.JTI(jti))
			return nil, ErrRefreshInvalidated
		}
	}

	res.AccessToken, res.AccessExpiresAt, err = s.deps.Issuer.IssueAccess(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: issue access: %w", ErrInternal, err)
	}
	log.Debug("refresh ok", logger.Bool("rotated", res.RefreshToken != ""))
	return res, nil
}

// verifyRefresh checks signature, expiry, token class and subject against the
// asserted identity. In local identity mode an absent identity falls back to
// the token's own subject.
func verifyRefresh(ctx context.Context, log *zap.Logger, deps Deps, identity, token string) (*jwtx.Claims, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" && deps.Config.IdentityMode != IdentityLocal {
		return nil, ErrMissingIdentity
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: refreshToken is required", ErrBadRequest)
	}

	claims, err := deps.Issuer.Verify(token)
	if err != nil {
		return nil, mapTokenErr(err)
	}
	if claims.Type != jwtx.TypeRefresh {
		return nil, fmt.Errorf("%w: token class %q", ErrTokenInvalid, claims.Type)
	}
	if claims.TokenID() == "" {
		return nil, fmt.Errorf("%w: refresh token without jti", ErrTokenInvalid)
	}
	if identity == "" {
		identity = claims.UserID()
	}
	if claims.UserID() != identity {
		log.Warn("refresh token subject mismatch",
			zap.String("asserted_user_id", identity),
			zap.String("token_subject", claims.UserID()),
			logger.JTI(claims.TokenID()))
		audit.Log(ctx, audit.EventSubjectMismatch,
			zap.String("asserted_user_id", identity),
			zap.String("token_subject", claims.UserID()),
			logger.JTI(claims.TokenID()))
		return nil, ErrSubjectMismatch
	}
	return claims, nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/userauth/internal/audit"
	"github.com/dropDatabas3/userauth/internal/domain/repository"
	dto "github.com/dropDatabas3/userauth/internal/http/dto/auth"
	"github.com/dropDatabas3/userauth/internal/oauth/kakao"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
)

// AccountService reads and deletes the caller's account.
type AccountService interface {
	CurrentUser(ctx context.Context, identity string) (*dto.UserSummary, error)
	// DeleteAccount revokes all refresh tokens, deletes the user row and then
	// asks the provider to unlink. Unlink failures are logged, never returned.
	DeleteAccount(ctx context.Context, identity string) error
}

type accountService struct {
	deps Deps
}

func NewAccountService(deps Deps) AccountService {
	return &accountService{deps: deps.withDefaults()}
}

func (s *accountService) lookup(ctx context.Context, identity string) (*repository.User, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrMissingIdentity
	}
	u, err := s.deps.Directory.Get(ctx, identity)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get user: %w", ErrInternal, err)
	}
	return u, nil
}

func (s *accountService) CurrentUser(ctx context.Context, identity string) (*dto.UserSummary, error) {
	u, err := s.lookup(ctx, identity)
	if err != nil {
		return nil, err
	}
	out := summary(u)
	return &out, nil
}

func (s *accountService) DeleteAccount(ctx context.Context, identity string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.account"),
		logger.Op("DeleteAccount"),
	)

	u, err := s.lookup(ctx, identity)
	if err != nil {
		return err
	}
	log = log.With(logger.UserID(u.ID), logger.ProviderID(u.ProviderID))

	// Revoke first: a surviving whitelist entry would keep minting access
	// tokens for a user that no longer exists.
	n, err := s.deps.Refresh.RevokeAll(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("%w: revoke all: %w", ErrInternal, err)
	}
	if err := s.deps.Directory.Delete(ctx, u.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: delete user: %w", ErrInternal, err)
	}
	log.Info("account deleted", logger.Count(n))
	audit.Log(ctx, audit.EventAccountDeleted,
		logger.UserID(u.ID), logger.ProviderID(u.ProviderID), logger.Count(n))

	s.unlink(ctx, u.ProviderID)
	return nil
}

// unlink runs detached from the request so a client hang-up does not cut it short.
func (s *accountService) unlink(ctx context.Context, providerID int64) {
	log := logger.From(ctx).With(logger.Component("auth.account"), logger.Op("Unlink"), logger.ProviderID(providerID))

	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.Config.UnlinkTimeout)
	defer cancel()

	err := s.deps.Provider.Unlink(uctx, providerID)
	switch {
	case err == nil:
		s.deps.Metrics.AccountDeleted("ok")
		log.Info("provider unlink ok")
	case errors.Is(err, kakao.ErrUnlinkDisabled):
		s.deps.Metrics.AccountDeleted("skipped")
		log.Info("provider unlink skipped, no admin key")
	default:
		s.deps.Metrics.AccountDeleted("failed")
		log.Warn("provider unlink failed", logger.Err(err))
	}
}

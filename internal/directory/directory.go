// Package directory maps identity-provider accounts onto local user records.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dropDatabas3/userauth/internal/domain/repository"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
	tokens "github.com/dropDatabas3/userauth/internal/security/token"
	"golang.org/x/sync/singleflight"
)

// maxHandleAttempts bounds login handle regeneration on collision.
const maxHandleAttempts = 5

// ErrHandleExhausted means every generated login handle collided.
var ErrHandleExhausted = errors.New("directory: could not allocate a login handle")

// Profile holds the mutable fields reported by the provider. Empty means absent.
type Profile struct {
	Nickname  string
	AvatarURL string
	Email     string
}

type Options struct {
	Now       func() time.Time
	NewID     func() string
	NewHandle func() string
}

type Directory struct {
	users     repository.UserRepository
	now       func() time.Time
	newID     func() string
	newHandle func() string
	sf        singleflight.Group
}

func New(users repository.UserRepository, opts Options) *Directory {
	d := &Directory{
		users:     users,
		now:       opts.Now,
		newID:     opts.NewID,
		newHandle: opts.NewHandle,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.newID == nil {
		d.newID = tokens.NewUserID
	}
	if d.newHandle == nil {
		d.newHandle = tokens.NewLoginHandle
	}
	return d
}

type upsertResult struct {
	user    *repository.User
	created bool
}

// Upsert returns the user linked to providerID, creating it on first sight and
// refreshing changed profile fields otherwise. created is true only for the
// caller whose flight inserted the row; callers that joined it see
// created=false, so exactly one login owns a new row.
//
// Uniqueness across processes rests on the store's constraint on provider id:
// the loser of a concurrent insert re-reads the winner's row.
func (d *Directory) Upsert(ctx context.Context, providerID int64, p Profile) (user *repository.User, created bool, err error) {
	// Only the caller that runs the flight sees its own owner flag flip.
	var owner bool
	v, err, _ := d.sf.Do(strconv.FormatInt(providerID, 10), func() (any, error) {
		owner = true
		// the shared flight must not die with the first caller
		u, c, err := d.upsert(context.WithoutCancel(ctx), providerID, p)
		if err != nil {
			return nil, err
		}
		return upsertResult{user: u, created: c}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(upsertResult)
	cp := *res.user
	return &cp, res.created && owner, nil
}

func (d *Directory) upsert(ctx context.Context, providerID int64, p Profile) (*repository.User, bool, error) {
	log := logger.From(ctx).With(logger.Layer("directory"), logger.Op("Upsert"), logger.ProviderID(providerID))

	u, err := d.users.GetByProviderID(ctx, providerID)
	switch {
	case err == nil:
		u, err = d.merge(ctx, u, p)
		return u, false, err
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, fmt.Errorf("lookup provider user: %w", err)
	}

	for attempt := 1; attempt <= maxHandleAttempts; attempt++ {
		now := d.now()
		nu := &repository.User{
			ID:          d.newID(),
			ProviderID:  providerID,
			LoginHandle: d.newHandle(),
			Nickname:    p.Nickname,
			AvatarURL:   p.AvatarURL,
			Email:       p.Email,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err := d.users.Create(ctx, nu)
		switch {
		case err == nil:
			log.Info("user created", logger.UserID(nu.ID))
			return nu, true, nil
		case errors.Is(err, repository.ErrHandleTaken):
			log.Warn("login handle collision", logger.Attempt(attempt))
			continue
		case errors.Is(err, repository.ErrConflict):
			log.Debug("concurrent first login, re-reading winner")
			u, err := d.users.GetByProviderID(ctx, providerID)
			if err != nil {
				return nil, false, fmt.Errorf("re-read after conflict: %w", err)
			}
			u, err = d.merge(ctx, u, p)
			return u, false, err
		default:
			return nil, false, fmt.Errorf("create user: %w", err)
		}
	}
	return nil, false, ErrHandleExhausted
}

// merge overwrites a field only when the provider reports a new non-empty value.
func (d *Directory) merge(ctx context.Context, u *repository.User, p Profile) (*repository.User, error) {
	var upd repository.ProfileUpdate
	if p.Nickname != "" && p.Nickname != u.Nickname {
		upd.Nickname = &p.Nickname
	}
	if p.AvatarURL != "" && p.AvatarURL != u.AvatarURL {
		upd.AvatarURL = &p.AvatarURL
	}
	if p.Email != "" && p.Email != u.Email {
		upd.Email = &p.Email
	}
	if upd.Empty() {
		return u, nil
	}
	out, err := d.users.UpdateProfile(ctx, u.ID, upd, d.now())
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return out, nil
}

// Get returns repository.ErrNotFound for unknown ids.
func (d *Directory) Get(ctx context.Context, id string) (*repository.User, error) {
	return d.users.GetByID(ctx, id)
}

// Delete removes the user row only. Token revocation and provider unlink are
// the caller's job.
func (d *Directory) Delete(ctx context.Context, id string) error {
	return d.users.Delete(ctx, id)
}

// Package storetest holds the behavioural tests shared by every backend of
// repository.UserRepository and repository.RefreshTokenStore.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/userauth/internal/domain/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// RefreshStoreFactory builds an empty store reading time from clock.
type RefreshStoreFactory func(t *testing.T, clock *Clock) repository.RefreshTokenStore

// RunRefreshTokenStore exercises the whitelist contract.
func RunRefreshTokenStore(t *testing.T, factory RefreshStoreFactory) {
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("save then exists", func(t *testing.T) {
		clock := NewClock(start)
		s := factory(t, clock)
		require.NoError(t, s.Save(ctx, "u1", "a", start.Add(time.Hour)))

		ok, err := s.Exists(ctx, "u1", "a")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.Exists(ctx, "u1", "b")
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = s.Exists(ctx, "u2", "a")
		require.NoError(t, err)
		require.False(t, ok, "entries are scoped per user")
	})

	t.Run("expired entry does not exist", func(t *testing.T) {
		clock := NewClock(start)
		s := factory(t, clock)
		require.NoError(t, s.Save(ctx, "u1", "a", start.Add(time.Minute)))

		clock.Advance(time.Minute)
		ok, err := s.Exists(ctx, "u1", "a")
		require.NoError(t, err)
		require.False(t, ok, "exists requires now < expiresAt")
	})

	t.Run("save overwrites expiry", func(t *testing.T) {
		clock := NewClock(start)
		s := factory(t, clock)
		require.NoError(t, s.Save(ctx, "u1", "a", start.Add(time.Minute)))
		require.NoError(t, s.Save(ctx, "u1", "a", start.Add(time.Hour)))

		clock.Advance(2 * time.Minute)
		ok, err := s.Exists(ctx, "u1", "a")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("revoke removes exactly one jti", func(t *testing.T) {
		clock := NewClock(start)
		s := factory(t, clock)
		require.NoError(t, s.Save(ctx, "u1", "a", start.Add(time.Hour)))
		require.NoError(t, s.Save(ctx, "u1", "b", start.Add(time.Hour)))

		removed, err := s.Revoke(ctx, "u1", "a")
		require.NoError(t, err)
		require.True(t, removed)

		ok, _ := s.Exists(ctx, "u1", "a")
		require.False(t, ok)
		ok, _ = s.Exists(ctx, "u1", "b")
		require.True(t, ok)

		removed, err = s.Revoke(ctx, "u1", "a")
		require.NoError(t, err)
		require.False(t, removed, "second revoke is a no-op")
	})

	t.Run("revoke all", func(t *testing.T) {
		clock := NewClock(start)
		s := factory(t, clock)
		for _, jti := range []string{"a", "b", "c"} {
			require.NoError(t, s.Save(ctx, "u1", jti, start.Add(time.Hour)))
		}
		require.NoError(t, s.Save(ctx, "u2", "z", start.Add(time.Hour)))

		n, err := s.RevokeAll(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, 3, n)

		for _, jti := range []string{"a", "b", "c"} {
			ok, _ := s.Exists(ctx, "u1", jti)
			require.False(t, ok)
		}
		ok, _ := s.Exists(ctx, "u2", "z")
		require.True(t, ok, "other users are untouched")

		n, err = s.RevokeAll(ctx, "nobody")
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("rotate", func(t *testing.T) {
		clock := NewClock(start)
		s := factory(t, clock)
		require.NoError(t, s.Save(ctx, "u1", "old", start.Add(time.Hour)))

		require.NoError(t, s.Rotate(ctx, "u1", "old", "new", start.Add(2*time.Hour)))
		ok, _ := s.Exists(ctx, "u1", "old")
		require.False(t, ok)
		ok, _ = s.Exists(ctx, "u1", "new")
		require.True(t, ok)

		err := s.Rotate(ctx, "u1", "old", "newer", start.Add(2*time.Hour))
		require.ErrorIs(t, err, repository.ErrNotFound)
		ok, _ = s.Exists(ctx, "u1", "newer")
		require.False(t, ok, "failed rotate inserts nothing")
	})

	t.Run("rotate expired fails", func(t *testing.T) {
		clock := NewClock(start)
		s := factory(t, clock)
		require.NoError(t, s.Save(ctx, "u1", "old", start.Add(time.Minute)))
		clock.Advance(time.Hour)

		err := s.Rotate(ctx, "u1", "old", "new", start.Add(2*time.Hour))
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("concurrent rotate has one winner", func(t *testing.T) {
		clock := NewClock(start)
		s := factory(t, clock)
		require.NoError(t, s.Save(ctx, "u1", "old", start.Add(time.Hour)))

		const n = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.Rotate(ctx, "u1", "old", fmt.Sprintf("new-%d", i), start.Add(time.Hour))
				if err == nil {
					wins.Add(1)
					return
				}
				assert.ErrorIs(t, err, repository.ErrNotFound)
			}(i)
		}
		wg.Wait()
		require.EqualValues(t, 1, wins.Load())

		live := 0
		for i := 0; i < n; i++ {
			if ok, _ := s.Exists(ctx, "u1", fmt.Sprintf("new-%d", i)); ok {
				live++
			}
		}
		require.Equal(t, 1, live)
	})
}

// UserRepoFactory builds an empty user repository.
type UserRepoFactory func(t *testing.T) repository.UserRepository

// RunUserRepository exercises the user repository contract.
func RunUserRepository(t *testing.T, factory UserRepoFactory) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	newUser := func(id string, provider int64, handle string) *repository.User {
		return &repository.User{
			ID: id, ProviderID: provider, LoginHandle: handle,
			Nickname: "Ava", CreatedAt: now, UpdatedAt: now,
		}
	}

	t.Run("create and read back", func(t *testing.T) {
		repo := factory(t)
		u := newUser("11111111-1111-1111-1111-111111111111", 555, "U0000000000000001")
		u.Email = "ava@example.com"
		require.NoError(t, repo.Create(ctx, u))

		got, err := repo.GetByProviderID(ctx, 555)
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
		require.Equal(t, "Ava", got.Nickname)
		require.Equal(t, "ava@example.com", got.Email)
		require.Empty(t, got.AvatarURL)

		got, err = repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.EqualValues(t, 555, got.ProviderID)
		require.Equal(t, "U0000000000000001", got.LoginHandle)
	})

	t.Run("not found", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.GetByID(ctx, "22222222-2222-2222-2222-222222222222")
		require.ErrorIs(t, err, repository.ErrNotFound)
		_, err = repo.GetByProviderID(ctx, 1)
		require.ErrorIs(t, err, repository.ErrNotFound)
		err = repo.Delete(ctx, "22222222-2222-2222-2222-222222222222")
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("provider id is unique", func(t *testing.T) {
		repo := factory(t)
		require.NoError(t, repo.Create(ctx, newUser("33333333-3333-3333-3333-333333333333", 7, "U0000000000000003")))
		err := repo.Create(ctx, newUser("44444444-4444-4444-4444-444444444444", 7, "U0000000000000004"))
		require.ErrorIs(t, err, repository.ErrConflict)
	})

	t.Run("handle is unique", func(t *testing.T) {
		repo := factory(t)
		require.NoError(t, repo.Create(ctx, newUser("55555555-5555-5555-5555-555555555555", 8, "U0000000000000005")))
		err := repo.Create(ctx, newUser("66666666-6666-6666-6666-666666666666", 9, "U0000000000000005"))
		require.ErrorIs(t, err, repository.ErrHandleTaken)
	})

	t.Run("update profile touches only given fields", func(t *testing.T) {
		repo := factory(t)
		u := newUser("77777777-7777-7777-7777-777777777777", 10, "U0000000000000007")
		u.AvatarURL = "https://img/a.png"
		require.NoError(t, repo.Create(ctx, u))

		nick := "Ava2"
		later := now.Add(time.Hour)
		got, err := repo.UpdateProfile(ctx, u.ID, repository.ProfileUpdate{Nickname: &nick}, later)
		require.NoError(t, err)
		require.Equal(t, "Ava2", got.Nickname)
		require.Equal(t, "https://img/a.png", got.AvatarURL)
		require.True(t, later.Equal(got.UpdatedAt))
		require.True(t, now.Equal(got.CreatedAt))
		require.EqualValues(t, 10, got.ProviderID)
	})

	t.Run("delete", func(t *testing.T) {
		repo := factory(t)
		u := newUser("88888888-8888-8888-8888-888888888888", 11, "U0000000000000008")
		require.NoError(t, repo.Create(ctx, u))
		require.NoError(t, repo.Delete(ctx, u.ID))
		_, err := repo.GetByProviderID(ctx, 11)
		require.ErrorIs(t, err, repository.ErrNotFound)

		// The provider id can be linked again after deletion.
		require.NoError(t, repo.Create(ctx, newUser("99999999-9999-9999-9999-999999999999", 11, "U0000000000000009")))
	})
}

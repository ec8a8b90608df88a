package pg

import (
	"context"
	"os"
	"testing"
	"testing/fstest"

	"github.com/dropDatabas3/userauth/internal/domain/repository"
	"github.com/dropDatabas3/userauth/internal/store/storetest"
	migrations "github.com/dropDatabas3/userauth/migrations/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to USERAUTH_TEST_PG_DSN, migrates and truncates.
// Tests are skipped when the variable is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("USERAUTH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("USERAUTH_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn, PoolConfig{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	_, err = Migrate(ctx, s.Pool(), migrations.FS, Up, 0)
	require.NoError(t, err)
	_, err = s.Pool().Exec(ctx, `TRUNCATE refresh_token, app_user`)
	require.NoError(t, err)
	return s
}

func TestUsers_Contract(t *testing.T) {
	storetest.RunUserRepository(t, func(t *testing.T) repository.UserRepository {
		return openTestStore(t).Users()
	})
}

func TestRefreshTokens_Contract(t *testing.T) {
	storetest.RunRefreshTokenStore(t, func(t *testing.T, clock *storetest.Clock) repository.RefreshTokenStore {
		return openTestStore(t).RefreshTokens(clock.Now)
	})
}

func TestUsers_MalformedIDIsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Users().GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListMigrations_Order(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b_up.sql":   {Data: []byte("select 2")},
		"0001_a_up.sql":   {Data: []byte("select 1")},
		"0001_a_down.sql": {Data: []byte("select 1")},
		"0002_b_down.sql": {Data: []byte("select 2")},
		"README.md":       {Data: []byte("x")},
	}

	up, err := ListMigrations(fsys, Up)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a_up.sql", "0002_b_up.sql"}, up)

	down, err := ListMigrations(fsys, Down)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_b_down.sql", "0001_a_down.sql"}, down)
}

func TestListMigrations_EmbeddedSchema(t *testing.T) {
	up, err := ListMigrations(migrations.FS, Up)
	require.NoError(t, err)
	assert.NotEmpty(t, up)

	down, err := ListMigrations(migrations.FS, Down)
	require.NoError(t, err)
	assert.Len(t, down, len(up))
}

package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/dropDatabas3/userauth/internal/observability/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID serializes concurrent migration runs through pg_advisory_lock.
const migrationLockID int64 = 0x75736572617574 // "useraut"

// Direction selects which set of scripts Migrate applies.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies the *_up.sql (ascending) or *_down.sql (descending) files of
// fsys. steps > 0 limits how many scripts run. It returns the number applied.
// Scripts must be idempotent; there is no version table.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir Direction, steps int) (int, error) {
	files, err := ListMigrations(fsys, dir)
	if err != nil {
		return 0, err
	}
	if steps > 0 && steps < len(files) {
		files = files[:steps]
	}
	if len(files) == 0 {
		return 0, nil
	}

	log := logger.From(ctx).With(logger.Component("store.pg"), logger.Op("Migrate"))

	// advisory locks are per session, so lock, migrate and unlock on one conn
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := conn.Exec(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("release migration lock failed", logger.Err(err))
		}
	}()

	var applied int
	for _, name := range files {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, err
		}
		start := time.Now()
		if _, err := conn.Exec(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("exec %s: %w", name, err)
		}
		applied++
		log.Info("migration applied",
			logger.String("file", name),
			logger.DurationMs(time.Since(start).Milliseconds()))
	}
	return applied, nil
}

// ListMigrations returns the script names for dir in execution order.
func ListMigrations(fsys fs.FS, dir Direction) ([]string, error) {
	suffix := "_" + string(dir) + ".sql"
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	if dir == Down {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

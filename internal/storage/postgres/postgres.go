// Package postgres stores rejoin tokens in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/matchlink/internal/config"
)

// Pool wraps a pgx connection pool with health-check and lifecycle methods.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool creates a connection pool from cfg and pings it once.
//
// Precondition: cfg must pass config validation with Enabled set.
// Postcondition: Returns a connected Pool or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Pool{pool: pool}, nil
}

// Health pings the database, giving up after timeout.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Close releases all pool resources.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool for use by repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}

// MigrateResult reports where a migration run left the schema.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies the migrations under dir to the database at dsn. A
// positive steps moves that many versions up, a negative one moves down,
// and zero applies every pending up migration.
//
// Postcondition: Returns the resulting schema version, or an error.
// Changed is false when nothing needed applying.
func Migrate(dsn, dir string, steps int) (MigrateResult, error) {
	return runMigrations(dsn, dir, func(m *migrate.Migrate) error {
		if steps == 0 {
			return m.Up()
		}
		return m.Steps(steps)
	})
}

// Rollback reverts every migration under dir.
func Rollback(dsn, dir string) (MigrateResult, error) {
	return runMigrations(dsn, dir, func(m *migrate.Migrate) error { return m.Down() })
}

func runMigrations(dsn, dir string, apply func(*migrate.Migrate) error) (MigrateResult, error) {
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return MigrateResult{}, fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	changed := true
	if err := apply(m); errors.Is(err, migrate.ErrNoChange) {
		changed = false
	} else if err != nil {
		return MigrateResult{}, fmt.Errorf("migrating: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrateResult{}, fmt.Errorf("reading schema version: %w", err)
	}
	return MigrateResult{Version: version, Dirty: dirty, Changed: changed}, nil
}

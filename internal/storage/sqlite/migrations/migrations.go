// Package migrations holds the schema of the local submission journal: the
// submissions table and the relink tasks table.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/slok/wrapperctl/internal/log"
)

//go:embed sql/*.sql
var schema embed.FS

// ErrDirty is returned when a previous migration was interrupted and the
// journal needs manual repair.
var ErrDirty = errors.New("journal schema is dirty")

// Journal migrates the journal database schema.
type Journal struct {
	db     *sql.DB
	logger log.Logger
}

// NewJournal returns a schema migrator for the journal database.
func NewJournal(db *sql.DB, logger log.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &Journal{
		db:     db,
		logger: logger.WithValues(log.Kv{"svc": "storage.SQLiteMigrations"}),
	}, nil
}

// Up brings the schema to the latest version and returns it.
func (j *Journal) Up(ctx context.Context) (uint, error) {
	var version uint
	err := j.with(ctx, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not apply schema: %w", err)
		}

		v, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("could not get schema version: %w", err)
		}
		if dirty {
			return fmt.Errorf("version %d: %w", v, ErrDirty)
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, err
	}

	j.logger.WithValues(log.Kv{"schema-version": version}).Debugf("Journal schema up to date")
	return version, nil
}

// Down drops the whole journal schema.
func (j *Journal) Down(ctx context.Context) error {
	return j.with(ctx, func(m *migrate.Migrate) error {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not drop schema: %w", err)
		}
		j.logger.Debugf("Journal schema dropped")
		return nil
	})
}

// with runs fn with a migrate instance over the embedded schema. The
// database driver is not closed, the connection belongs to the repository.
func (j *Journal) with(ctx context.Context, fn func(m *migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create sqlite driver: %w", err)
	}

	src, err := iofs.New(schema, "sql")
	if err != nil {
		return fmt.Errorf("could not load schema files: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			j.logger.Warningf("Could not close schema files: %s", err)
		}
	}()

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	return fn(m)
}

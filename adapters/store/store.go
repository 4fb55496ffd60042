package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"sherockets/domain/core"
	"sherockets/internal"
	apperrors "sherockets/internal/errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Open connects to a postgres or sqlite3 database
func Open(driver, url string) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, apperrors.ConfigInvalid(fmt.Sprintf("unsupported database driver %q (want postgres or sqlite3)", driver))
	}
	if url == "" {
		return nil, apperrors.ConfigInvalid("DATABASE_URL is required")
	}

	db, err := sqlx.Connect(driver, url)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to connect to database", err)
	}
	if driver == DriverSQLite {
		// every connection to :memory: would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migration is one embedded schema file
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// MigrationStatus reports whether a migration has been applied
type MigrationStatus struct {
	Version string
	Name    string
	Applied bool
}

// Migrator applies the embedded schema and records versions in schema_migrations
type Migrator struct {
	db     *sqlx.DB
	logger *internal.Logger
}

// NewMigrator creates a migrator for db
func NewMigrator(db *sqlx.DB, logger *internal.Logger) *Migrator {
	return &Migrator{db: db, logger: internal.OrDefault(logger).With("migrate")}
}

// Up applies all pending migrations, each in its own transaction
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return apperrors.DatabaseError("failed to read applied migrations", err)
	}
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	count := 0
	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}
		m.logger.Info("applying migration %s_%s", mig.Version, mig.Name)
		if err := m.apply(ctx, mig); err != nil {
			return apperrors.DatabaseError(fmt.Sprintf("migration %s failed", mig.Version), err)
		}
		count++
	}
	if count == 0 {
		m.logger.Debug("schema up to date")
	} else {
		m.logger.Info("applied %d migrations", count)
	}
	return nil
}

// Status lists every embedded migration and whether it has been applied
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to read applied migrations", err)
	}
	migrations, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, len(migrations))
	for i, mig := range migrations {
		out[i] = MigrationStatus{Version: mig.Version, Name: mig.Name, Applied: applied[mig.Version]}
	}
	return out, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return apperrors.DatabaseError("failed to create schema_migrations table", err)
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	var versions []string
	if err := m.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations"); err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	checksum := core.NewHash([]byte(mig.SQL))
	if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO schema_migrations (version, checksum) VALUES (?, ?)"), mig.Version, checksum.String()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads NNN_name.sql files from the embedded directory in version order
func loadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, name, ok := strings.Cut(strings.TrimSuffix(e.Name(), ".sql"), "_")
		if !ok {
			continue
		}
		data, err := migrationFiles.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

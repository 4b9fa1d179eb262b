// Package schema ensures the aggregate tables exist before the service
// accepts requests.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	pgmigrations "github.com/oksasatya/usage-aggregate-service/internal/infrastructure/postgres/migrations"
	sqlitemigrations "github.com/oksasatya/usage-aggregate-service/internal/infrastructure/sqlite/migrations"
)

// Dialect describes how to migrate and inspect one storage backend.
type Dialect struct {
	Name         string // golang-migrate database name
	SQLDriver    string // database/sql driver name
	Migrations   fs.FS
	WithInstance func(*sql.DB) (database.Driver, error)
	ListTables   string
}

var (
	Postgres = Dialect{
		Name:       "postgres",
		SQLDriver:  "pgx",
		Migrations: pgmigrations.FS,
		WithInstance: func(db *sql.DB) (database.Driver, error) {
			return pgmigrate.WithInstance(db, &pgmigrate.Config{})
		},
		ListTables: `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
			ORDER BY table_name`,
	}
	SQLite = Dialect{
		Name:       "sqlite",
		SQLDriver:  "sqlite",
		Migrations: sqlitemigrations.FS,
		WithInstance: func(db *sql.DB) (database.Driver, error) {
			return sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
		},
		ListTables: `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name`,
	}
)

// DialectFor maps a DB_DRIVER value to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Manager applies the embedded migrations for one dialect. It opens its own
// short-lived connection because golang-migrate closes the handle it is given.
type Manager struct {
	dialect Dialect
	dsn     string
	logger  *logrus.Logger
}

func NewManager(dialect Dialect, dsn string, logger *logrus.Logger) *Manager {
	return &Manager{dialect: dialect, dsn: dsn, logger: logger}
}

// EnsureSchema creates users, device_information and app_usage_stats if they
// are absent and returns the table names present afterwards. It is safe to
// call on every startup.
func (m *Manager) EnsureSchema(ctx context.Context) ([]string, error) {
	db, err := sql.Open(m.dialect.SQLDriver, m.dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", m.dialect.Name, err)
	}
	defer func() { _ = db.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", m.dialect.Name, err)
	}

	src, err := iofs.New(m.dialect.Migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := m.dialect.WithInstance(db)
	if err != nil {
		return nil, fmt.Errorf("init migrate driver: %w", err)
	}
	mg, err := migrate.NewWithInstance("iofs", src, m.dialect.Name, driver)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}

	m.logger.WithField("dialect", m.dialect.Name).Info("running migrations...")
	if err := mg.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		m.logger.Info("no migrations to run")
	}

	tables, err := listTables(ctx, db, m.dialect.ListTables)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	m.logger.WithField("tables", tables).Info("existing tables in database")
	return tables, nil
}

func listTables(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

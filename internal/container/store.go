package container

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/usage-aggregate-service/config"
	pginfra "github.com/oksasatya/usage-aggregate-service/internal/infrastructure/postgres"
	sqliteinfra "github.com/oksasatya/usage-aggregate-service/internal/infrastructure/sqlite"
	"github.com/oksasatya/usage-aggregate-service/internal/schema"
)

// OpenStore connects the backend selected by DB_DRIVER, ensures the schema
// exists and returns the repository with its close func. Binaries that
// write aggregates (server, loader in direct mode, ingest worker) share it.
func OpenStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (Store, func(), error) {
	dialect, err := schema.DialectFor(cfg.DBDriver)
	if err != nil {
		return nil, nil, err
	}

	var (
		store   Store
		dsn     string
		closeFn func()
	)
	switch dialect.Name {
	case schema.SQLite.Name:
		dsn = cfg.SQLiteDSN()
		db, err := sqliteinfra.Open(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		store = sqliteinfra.NewAggregateRepository(db, cfg.DBOpTimeout)
		closeFn = func() { _ = db.Close() }
	default:
		dsn = cfg.PostgresDSN()
		pool, err := pginfra.NewPool(ctx, dsn, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife, cfg.DBConnectTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store = pginfra.NewAggregateRepository(pool, cfg.DBOpTimeout)
		closeFn = pool.Close
	}

	if _, err := schema.NewManager(dialect, dsn, logger).EnsureSchema(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("schema setup: %w", err)
	}
	return store, closeFn, nil
}

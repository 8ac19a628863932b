// Package store opens the parking.Store backend selected by configuration.
package store

import (
	"context"
	"fmt"

	"parking-facility/internal/config"
	"parking-facility/internal/logging"
	"parking-facility/internal/parking"
	"parking-facility/internal/store/memory"
	"parking-facility/internal/store/mongostore"
	"parking-facility/internal/store/sqldb"
)

// Backend is a parking.Store that can report its health and release its
// connections.
type Backend interface {
	parking.Store
	Ping(ctx context.Context) error
	Close() error
}

func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	logging.Info(ctx).Str("driver", cfg.StoreDriver).Msg("opening store")

	var (
		backend Backend
		err     error
	)
	switch cfg.StoreDriver {
	case config.StoreMemory:
		backend = memory.New()
	case config.StorePostgres:
		backend, err = openSQL(ctx, sqldb.Postgres, cfg.DatabaseURL, cfg.StoreConnectRetries)
	case config.StoreSQLite:
		backend, err = openSQL(ctx, sqldb.SQLite, sqldb.SQLiteDSN(cfg.SQLitePath), cfg.StoreConnectRetries)
	case config.StoreMongo:
		backend, err = openMongo(ctx, cfg)
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, err
	}
	return backend, nil
}

func openSQL(ctx context.Context, dialect sqldb.Dialect, dsn string, tries int) (Backend, error) {
	s, err := sqldb.Open(ctx, dialect, dsn, tries)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openMongo(ctx context.Context, cfg *config.Config) (Backend, error) {
	s, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.StoreConnectRetries)
	if err != nil {
		return nil, err
	}
	return s, nil
}

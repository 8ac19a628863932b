package sqldb

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"parking-facility/internal/logging"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) driver() (string, attribute.KeyValue, error) {
	switch d {
	case Postgres:
		return "pgx", semconv.DBSystemPostgreSQL, nil
	case SQLite:
		return "sqlite3", semconv.DBSystemKey.String("sqlite"), nil
	}
	return "", attribute.KeyValue{}, fmt.Errorf("sqldb: unknown dialect %q", d)
}

// SQLiteDSN builds a go-sqlite3 DSN for a database file.
func SQLiteDSN(path string) string {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_journal_mode", "WAL")
	return "file:" + path + "?" + params.Encode()
}

// Open connects through an otelsql-wrapped driver, retrying the first ping up
// to connectTries times, and applies the schema.
func Open(ctx context.Context, dialect Dialect, dsn string, connectTries int) (*Store, error) {
	driverName, system, err := dialect.driver()
	if err != nil {
		return nil, err
	}

	db, err := otelsql.Open(driverName, dsn, otelsql.WithAttributes(system))
	if err != nil {
		return nil, err
	}

	if err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system)); err != nil {
		db.Close()
		return nil, err
	}

	sqlxDB := sqlx.NewDb(db, driverName)

	if err := ping(ctx, sqlxDB, connectTries); err != nil {
		sqlxDB.Close()
		return nil, err
	}

	if dialect == SQLite {
		sqlxDB.SetMaxOpenConns(1)
	} else {
		sqlxDB.SetMaxOpenConns(25)
		sqlxDB.SetMaxIdleConns(5)
	}

	s := New(sqlxDB, dialect)
	if err := s.Migrate(ctx); err != nil {
		sqlxDB.Close()
		return nil, err
	}
	return s, nil
}

func ping(ctx context.Context, db *sqlx.DB, tries int) error {
	if tries < 1 {
		tries = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, db.PingContext(ctx)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.Warn(ctx).Err(err).Dur("retry_in", next).Msg("database not reachable")
		}),
	)
	return err
}

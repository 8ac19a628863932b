package sqldb

import (
	"context"

	"parking-facility/internal/logging"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS parking_slots (
		number INTEGER PRIMARY KEY,
		available BOOLEAN NOT NULL DEFAULT TRUE,
		occupant_plate VARCHAR(32),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS vehicles (
		plate VARCHAR(32) PRIMARY KEY,
		kind VARCHAR(16) NOT NULL,
		country VARCHAR(32) NOT NULL,
		rate_per_minute DOUBLE PRECISION NOT NULL,
		active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_vehicles_country ON vehicles(country)`,

	`CREATE TABLE IF NOT EXISTS tickets (
		id BIGSERIAL PRIMARY KEY,
		plate VARCHAR(32) NOT NULL,
		slot_number INTEGER NOT NULL,
		entry_time TIMESTAMP WITH TIME ZONE NOT NULL,
		exit_time TIMESTAMP WITH TIME ZONE,
		total_price DOUBLE PRECISION
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tickets_open_plate ON tickets(plate, id DESC) WHERE exit_time IS NULL`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS parking_slots (
		number INTEGER PRIMARY KEY,
		available BOOLEAN NOT NULL DEFAULT 1,
		occupant_plate TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS vehicles (
		plate TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		country TEXT NOT NULL,
		rate_per_minute REAL NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_vehicles_country ON vehicles(country)`,

	`CREATE TABLE IF NOT EXISTS tickets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		plate TEXT NOT NULL,
		slot_number INTEGER NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP,
		total_price REAL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tickets_open_plate ON tickets(plate, id DESC) WHERE exit_time IS NULL`,
}

// Migrate creates the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := postgresMigrations
	if s.dialect == SQLite {
		migrations = sqliteMigrations
	}

	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			logging.Error(ctx).Err(err).Int("index", i).Str("dialect", string(s.dialect)).Msg("migration failed")
			return err
		}
	}
	logging.Info(ctx).Int("count", len(migrations)).Str("dialect", string(s.dialect)).Msg("migrations completed")
	return nil
}

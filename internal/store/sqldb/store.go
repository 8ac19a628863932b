// Package sqldb stores the ledger in PostgreSQL or SQLite through sqlx.
// Queries are written with ? placeholders and rebound per driver.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"gopkg.in/guregu/null.v4"

	"parking-facility/internal/parking"
)

type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

func New(db *sqlx.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

type slotRow struct {
	Number        int         `db:"number"`
	Available     bool        `db:"available"`
	OccupantPlate null.String `db:"occupant_plate"`
}

type vehicleRow struct {
	Plate         string  `db:"plate"`
	Kind          string  `db:"kind"`
	Country       string  `db:"country"`
	RatePerMinute float64 `db:"rate_per_minute"`
	Active        bool    `db:"active"`
}

type ticketRow struct {
	ID         int64      `db:"id"`
	Plate      string     `db:"plate"`
	SlotNumber int        `db:"slot_number"`
	EntryTime  time.Time  `db:"entry_time"`
	ExitTime   null.Time  `db:"exit_time"`
	TotalPrice null.Float `db:"total_price"`
}

func (r ticketRow) toTicket() parking.Ticket {
	return parking.Ticket{
		ID:         r.ID,
		Plate:      r.Plate,
		SlotNumber: r.SlotNumber,
		EntryTime:  r.EntryTime.UTC(),
		ExitTime:   utcPtr(r.ExitTime),
		TotalPrice: r.TotalPrice.Ptr(),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func (s *Store) LoadSlots(ctx context.Context) ([]parking.Slot, error) {
	var rows []slotRow
	query := `SELECT number, available, occupant_plate FROM parking_slots ORDER BY number`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("sqldb: load slots: %w", err)
	}

	slots := make([]parking.Slot, 0, len(rows))
	for _, r := range rows {
		slot := parking.NewSlot(r.Number)
		if r.OccupantPlate.ValueOrZero() != "" {
			slot.Occupy(r.OccupantPlate.String)
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (s *Store) LoadVehicles(ctx context.Context) ([]parking.Vehicle, error) {
	var rows []vehicleRow
	query := `SELECT plate, kind, country, rate_per_minute, active FROM vehicles ORDER BY plate`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("sqldb: load vehicles: %w", err)
	}

	vehicles := make([]parking.Vehicle, 0, len(rows))
	for _, r := range rows {
		kind, err := parking.ParseKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("sqldb: vehicle %s: %w", r.Plate, err)
		}
		v, err := parking.RestoreVehicle(r.Plate, kind, r.RatePerMinute, r.Active)
		if err != nil {
			return nil, fmt.Errorf("sqldb: vehicle %s: %w", r.Plate, err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

func (s *Store) LoadTickets(ctx context.Context) ([]parking.Ticket, error) {
	var rows []ticketRow
	query := `SELECT id, plate, slot_number, entry_time, exit_time, total_price FROM tickets ORDER BY id`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("sqldb: load tickets: %w", err)
	}

	tickets := make([]parking.Ticket, 0, len(rows))
	for _, r := range rows {
		tickets = append(tickets, r.toTicket())
	}
	return tickets, nil
}

func (s *Store) CreateSlot(ctx context.Context, slot parking.Slot) error {
	query := s.db.Rebind(`INSERT INTO parking_slots (number, available, occupant_plate) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, slot.Number, slot.Available, occupant(slot)); err != nil {
		return fmt.Errorf("sqldb: create slot %d: %w", slot.Number, err)
	}
	return nil
}

func (s *Store) UpdateSlot(ctx context.Context, slot parking.Slot) error {
	query := s.db.Rebind(`
		UPDATE parking_slots
		SET available = ?, occupant_plate = ?, updated_at = CURRENT_TIMESTAMP
		WHERE number = ?`)

	res, err := s.db.ExecContext(ctx, query, slot.Available, occupant(slot), slot.Number)
	if err != nil {
		return fmt.Errorf("sqldb: update slot %d: %w", slot.Number, err)
	}
	return expectRow(res, "slot", slot.Number)
}

func occupant(slot parking.Slot) null.String {
	return null.NewString(slot.OccupantPlate, slot.Occupied())
}

func (s *Store) CreateVehicle(ctx context.Context, v parking.Vehicle) (bool, error) {
	query := s.db.Rebind(`
		INSERT INTO vehicles (plate, kind, country, rate_per_minute, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (plate) DO NOTHING`)

	res, err := s.db.ExecContext(ctx, query, v.Plate, v.Kind.String(), v.Country.String(), v.RatePerMinute, v.Active)
	if err != nil {
		return false, fmt.Errorf("sqldb: create vehicle %s: %w", v.Plate, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqldb: create vehicle %s: %w", v.Plate, err)
	}
	return n == 1, nil
}

func (s *Store) UpdateVehicle(ctx context.Context, v parking.Vehicle) error {
	query := s.db.Rebind(`
		UPDATE vehicles
		SET kind = ?, country = ?, rate_per_minute = ?, active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE plate = ?`)

	res, err := s.db.ExecContext(ctx, query, v.Kind.String(), v.Country.String(), v.RatePerMinute, v.Active, v.Plate)
	if err != nil {
		return fmt.Errorf("sqldb: update vehicle %s: %w", v.Plate, err)
	}
	return expectRow(res, "vehicle", v.Plate)
}

func (s *Store) FindVehicleByPlate(ctx context.Context, plate string) (bool, error) {
	var exists bool
	query := s.db.Rebind(`SELECT EXISTS (SELECT 1 FROM vehicles WHERE plate = ?)`)
	if err := s.db.GetContext(ctx, &exists, query, plate); err != nil {
		return false, fmt.Errorf("sqldb: find vehicle %s: %w", plate, err)
	}
	return exists, nil
}

func (s *Store) CreateTicket(ctx context.Context, t parking.Ticket) (parking.Ticket, error) {
	query := s.db.Rebind(`
		INSERT INTO tickets (plate, slot_number, entry_time, exit_time, total_price)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`)

	err := s.db.QueryRowxContext(ctx, query,
		t.Plate, t.SlotNumber, t.EntryTime.UTC(), null.TimeFromPtr(t.ExitTime), null.FloatFromPtr(t.TotalPrice),
	).Scan(&t.ID)
	if err != nil {
		return parking.Ticket{}, fmt.Errorf("sqldb: create ticket for %s: %w", t.Plate, err)
	}
	return t, nil
}

func (s *Store) UpdateTicket(ctx context.Context, t parking.Ticket) error {
	query := s.db.Rebind(`
		UPDATE tickets
		SET plate = ?, slot_number = ?, entry_time = ?, exit_time = ?, total_price = ?
		WHERE id = ?`)

	res, err := s.db.ExecContext(ctx, query,
		t.Plate, t.SlotNumber, t.EntryTime.UTC(), null.TimeFromPtr(t.ExitTime), null.FloatFromPtr(t.TotalPrice), t.ID,
	)
	if err != nil {
		return fmt.Errorf("sqldb: update ticket %d: %w", t.ID, err)
	}
	return expectRow(res, "ticket", t.ID)
}

func (s *Store) FindMostRecentOpenTicket(ctx context.Context, plate string) (*parking.Ticket, error) {
	var row ticketRow
	query := s.db.Rebind(`
		SELECT id, plate, slot_number, entry_time, exit_time, total_price
		FROM tickets
		WHERE plate = ? AND exit_time IS NULL
		ORDER BY id DESC
		LIMIT 1`)

	if err := s.db.GetContext(ctx, &row, query, plate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqldb: find open ticket for %s: %w", plate, err)
	}

	t := row.toTicket()
	return &t, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func expectRow(res sql.Result, entity string, key any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: %s %v: %w", entity, key, err)
	}
	if n == 0 {
		return fmt.Errorf("sqldb: %s %v: %w", entity, key, parking.ErrNotFound)
	}
	return nil
}

var _ parking.Store = (*Store)(nil)

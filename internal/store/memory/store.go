// Package memory is a process-local parking.Store. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"parking-facility/internal/parking"
)

type Store struct {
	mu sync.RWMutex

	slots    map[int]parking.Slot
	vehicles map[string]parking.Vehicle
	tickets  []parking.Ticket
	nextID   int64
}

func New() *Store {
	return &Store{
		slots:    make(map[int]parking.Slot),
		vehicles: make(map[string]parking.Vehicle),
		tickets:  make([]parking.Ticket, 0),
	}
}

func (s *Store) LoadSlots(_ context.Context) ([]parking.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slots := make([]parking.Slot, 0, len(s.slots))
	for _, slot := range s.slots {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Number < slots[j].Number })
	return slots, nil
}

func (s *Store) LoadVehicles(_ context.Context) ([]parking.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vehicles := make([]parking.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		vehicles = append(vehicles, v)
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].Plate < vehicles[j].Plate })
	return vehicles, nil
}

func (s *Store) LoadTickets(_ context.Context) ([]parking.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickets := make([]parking.Ticket, len(s.tickets))
	for i, t := range s.tickets {
		tickets[i] = copyTicket(t)
	}
	return tickets, nil
}

func (s *Store) CreateSlot(_ context.Context, slot parking.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.slots[slot.Number]; exists {
		return fmt.Errorf("memory: slot %d already exists", slot.Number)
	}
	s.slots[slot.Number] = slot
	return nil
}

func (s *Store) UpdateSlot(_ context.Context, slot parking.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.slots[slot.Number]; !exists {
		return fmt.Errorf("memory: slot %d: %w", slot.Number, parking.ErrNotFound)
	}
	s.slots[slot.Number] = slot
	return nil
}

func (s *Store) CreateVehicle(_ context.Context, v parking.Vehicle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vehicles[v.Plate]; exists {
		return false, nil
	}
	s.vehicles[v.Plate] = v
	return true, nil
}

func (s *Store) UpdateVehicle(_ context.Context, v parking.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vehicles[v.Plate]; !exists {
		return fmt.Errorf("memory: vehicle %s: %w", v.Plate, parking.ErrNotFound)
	}
	s.vehicles[v.Plate] = v
	return nil
}

func (s *Store) FindVehicleByPlate(_ context.Context, plate string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.vehicles[plate]
	return exists, nil
}

func (s *Store) CreateTicket(_ context.Context, t parking.Ticket) (parking.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t.ID = s.nextID
	s.tickets = append(s.tickets, copyTicket(t))
	return copyTicket(t), nil
}

func (s *Store) UpdateTicket(_ context.Context, t parking.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tickets {
		if s.tickets[i].ID == t.ID {
			s.tickets[i] = copyTicket(t)
			return nil
		}
	}
	return fmt.Errorf("memory: ticket %d: %w", t.ID, parking.ErrNotFound)
}

func (s *Store) FindMostRecentOpenTicket(_ context.Context, plate string) (*parking.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.tickets) - 1; i >= 0; i-- {
		if s.tickets[i].Plate == plate && s.tickets[i].Open() {
			t := copyTicket(s.tickets[i])
			return &t, nil
		}
	}
	return nil, nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

func copyTicket(t parking.Ticket) parking.Ticket {
	if t.ExitTime != nil {
		exit := *t.ExitTime
		t.ExitTime = &exit
	}
	if t.TotalPrice != nil {
		price := *t.TotalPrice
		t.TotalPrice = &price
	}
	return t
}

var _ parking.Store = (*Store)(nil)

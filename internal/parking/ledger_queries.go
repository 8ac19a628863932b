package parking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"parking-facility/internal/plate"
)

// VehicleState is where a vehicle stands relative to the facility.
type VehicleState int

const (
	Outside VehicleState = iota
	Inside
	Parked
)

func (s VehicleState) String() string {
	switch s {
	case Inside:
		return "inside"
	case Parked:
		return "parked"
	default:
		return "outside"
	}
}

func ParseVehicleState(name string) (VehicleState, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "outside":
		return Outside, nil
	case "inside":
		return Inside, nil
	case "parked":
		return Parked, nil
	}
	return 0, fmt.Errorf("%w: unknown vehicle state %q", ErrInvalidArgument, name)
}

type VehicleOrder int

const (
	ByPlate VehicleOrder = iota
	ByCountry
	ByKind
)

func ParseVehicleOrder(name string) (VehicleOrder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "plate":
		return ByPlate, nil
	case "country":
		return ByCountry, nil
	case "kind":
		return ByKind, nil
	}
	return 0, fmt.Errorf("%w: unknown vehicle order %q", ErrInvalidArgument, name)
}

// ParkedVehicle pairs an occupied slot with its vehicle.
type ParkedVehicle struct {
	Slot    int     `json:"slot"`
	Vehicle Vehicle `json:"vehicle"`
}

// Stats summarizes the facility at one instant.
type Stats struct {
	Capacity    int     `json:"capacity"`
	Available   int     `json:"available"`
	Occupied    int     `json:"occupied"`
	Registered  int     `json:"registered"`
	Active      int     `json:"active"`
	Tickets     int     `json:"tickets"`
	OpenTickets int     `json:"open_tickets"`
	Revenue     float64 `json:"revenue"`
}

func (l *Ledger) Capacity() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.capacity
}

// IsFull reports whether no slot is available. A facility without slots is
// always full.
func (l *Ledger) IsFull() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isFullLocked()
}

func (l *Ledger) ActiveVehicles() []Vehicle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.collectLocked(func(v *Vehicle) bool { return v.Active }, ByPlate)
}

func (l *Ledger) ParkedVehicles() []ParkedVehicle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var parked []ParkedVehicle
	for _, slot := range l.slots {
		if !slot.Occupied() {
			continue
		}
		v, ok := l.vehicles[slot.OccupantPlate]
		if !ok {
			continue
		}
		parked = append(parked, ParkedVehicle{Slot: slot.Number, Vehicle: *v})
	}
	return parked
}

func (l *Ledger) AvailableSlots() []Slot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var available []Slot
	for _, slot := range l.slots {
		if slot.Available {
			available = append(available, slot)
		}
	}
	return available
}

func (l *Ledger) Slots() []Slot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	slots := make([]Slot, len(l.slots))
	copy(slots, l.slots)
	return slots
}

// TicketHistory returns every ticket in issue order.
func (l *Ledger) TicketHistory() []Ticket {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := make([]Ticket, len(l.tickets))
	for i, t := range l.tickets {
		history[i] = t.clone()
	}
	return history
}

func (l *Ledger) Vehicle(registration string) (Vehicle, error) {
	key := NormalizePlate(registration)

	l.mu.RLock()
	defer l.mu.RUnlock()

	v, ok := l.vehicles[key]
	if !ok {
		return Vehicle{}, fmt.Errorf("vehicle %s: %w", key, ErrNotFound)
	}
	return *v, nil
}

// State derives a plate's position. Unknown plates are Outside.
func (l *Ledger) State(registration string) VehicleState {
	key := NormalizePlate(registration)

	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.stateLocked(key)
}

func (l *Ledger) stateLocked(key string) VehicleState {
	v, ok := l.vehicles[key]
	switch {
	case !ok || !v.Active:
		return Outside
	case l.slotIndexLocked(key) >= 0:
		return Parked
	default:
		return Inside
	}
}

func (l *Ledger) Slot(number int) (Slot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if number < 1 || number > l.capacity {
		return Slot{}, fmt.Errorf("%w: %d is outside 1..%d", ErrInvalidSlot, number, l.capacity)
	}
	return l.slots[number-1], nil
}

// SlotOf returns the slot a plate occupies.
func (l *Ledger) SlotOf(registration string) (Slot, bool) {
	key := NormalizePlate(registration)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if idx := l.slotIndexLocked(key); idx >= 0 {
		return l.slots[idx], true
	}
	return Slot{}, false
}

func (l *Ledger) VehiclesOfCountry(country plate.Country) []Vehicle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.collectLocked(func(v *Vehicle) bool { return v.Country == country }, ByPlate)
}

func (l *Ledger) VehiclesOfKind(kind Kind) []Vehicle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.collectLocked(func(v *Vehicle) bool { return v.Kind == kind }, ByPlate)
}

// Vehicles lists every registered vehicle, active or not.
func (l *Ledger) Vehicles(order VehicleOrder) []Vehicle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.collectLocked(func(*Vehicle) bool { return true }, order)
}

// VehiclesInState lists the vehicles whose derived state is state.
func (l *Ledger) VehiclesInState(state VehicleState, order VehicleOrder) []Vehicle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.collectLocked(func(v *Vehicle) bool { return l.stateLocked(v.Plate) == state }, order)
}

func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		Capacity:   l.capacity,
		Registered: len(l.vehicles),
		Tickets:    len(l.tickets),
	}
	for _, slot := range l.slots {
		if slot.Available {
			stats.Available++
		} else {
			stats.Occupied++
		}
	}
	for _, v := range l.vehicles {
		if v.Active {
			stats.Active++
		}
	}

	revenue := decimal.Zero
	for _, t := range l.tickets {
		if t.Open() {
			stats.OpenTickets++
			continue
		}
		revenue = revenue.Add(decimal.NewFromFloat(t.Price()))
	}
	stats.Revenue, _ = revenue.Round(2).Float64()
	return stats
}

func (l *Ledger) collectLocked(keep func(*Vehicle) bool, order VehicleOrder) []Vehicle {
	var out []Vehicle
	for _, v := range l.vehicles {
		if keep(v) {
			out = append(out, *v)
		}
	}
	sortVehicles(out, order)
	return out
}

func sortVehicles(vehicles []Vehicle, order VehicleOrder) {
	sort.Slice(vehicles, func(i, j int) bool {
		a, b := vehicles[i], vehicles[j]
		switch order {
		case ByCountry:
			if a.Country != b.Country {
				return a.Country < b.Country
			}
		case ByKind:
			if a.Kind != b.Kind {
				return a.Kind < b.Kind
			}
		}
		return a.Plate < b.Plate
	})
}

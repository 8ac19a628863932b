package parking

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var errFakeDown = errors.New("fake store down")

// fakeStore keeps rows in maps and can fail any method on demand. Failures
// are scripted per method and consumed one call at a time; a nil entry lets
// that call through.
type fakeStore struct {
	mu sync.Mutex

	slots    map[int]Slot
	vehicles map[string]Vehicle
	tickets  map[int64]Ticket
	nextID   int64

	script map[string][]error
	calls  map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		slots:    make(map[int]Slot),
		vehicles: make(map[string]Vehicle),
		tickets:  make(map[int64]Ticket),
		script:   make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func (s *fakeStore) failNext(method string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script[method] = append(s.script[method], errs...)
}

func (s *fakeStore) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *fakeStore) enter(method string) error {
	s.calls[method]++
	queue := s.script[method]
	if len(queue) == 0 {
		return nil
	}
	s.script[method] = queue[1:]
	return queue[0]
}

func (s *fakeStore) LoadSlots(ctx context.Context) ([]Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("LoadSlots"); err != nil {
		return nil, err
	}

	slots := make([]Slot, 0, len(s.slots))
	for _, slot := range s.slots {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Number < slots[j].Number })
	return slots, nil
}

func (s *fakeStore) LoadVehicles(ctx context.Context) ([]Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("LoadVehicles"); err != nil {
		return nil, err
	}

	vehicles := make([]Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		vehicles = append(vehicles, v)
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].Plate < vehicles[j].Plate })
	return vehicles, nil
}

func (s *fakeStore) LoadTickets(ctx context.Context) ([]Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("LoadTickets"); err != nil {
		return nil, err
	}

	tickets := make([]Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		tickets = append(tickets, t.clone())
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })
	return tickets, nil
}

func (s *fakeStore) CreateSlot(ctx context.Context, slot Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateSlot"); err != nil {
		return err
	}
	s.slots[slot.Number] = slot
	return nil
}

func (s *fakeStore) UpdateSlot(ctx context.Context, slot Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateSlot"); err != nil {
		return err
	}
	s.slots[slot.Number] = slot
	return nil
}

func (s *fakeStore) CreateVehicle(ctx context.Context, v Vehicle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateVehicle"); err != nil {
		return false, err
	}
	if _, ok := s.vehicles[v.Plate]; ok {
		return false, nil
	}
	s.vehicles[v.Plate] = v
	return true, nil
}

func (s *fakeStore) UpdateVehicle(ctx context.Context, v Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateVehicle"); err != nil {
		return err
	}
	s.vehicles[v.Plate] = v
	return nil
}

func (s *fakeStore) FindVehicleByPlate(ctx context.Context, plate string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindVehicleByPlate"); err != nil {
		return false, err
	}
	_, ok := s.vehicles[plate]
	return ok, nil
}

func (s *fakeStore) CreateTicket(ctx context.Context, t Ticket) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateTicket"); err != nil {
		return Ticket{}, err
	}
	s.nextID++
	t.ID = s.nextID
	s.tickets[t.ID] = t.clone()
	return t, nil
}

func (s *fakeStore) UpdateTicket(ctx context.Context, t Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateTicket"); err != nil {
		return err
	}
	s.tickets[t.ID] = t.clone()
	return nil
}

func (s *fakeStore) FindMostRecentOpenTicket(ctx context.Context, plate string) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindMostRecentOpenTicket"); err != nil {
		return nil, err
	}

	var found *Ticket
	for _, t := range s.tickets {
		if t.Plate != plate || !t.Open() {
			continue
		}
		if found == nil || t.ID > found.ID {
			match := t.clone()
			found = &match
		}
	}
	return found, nil
}

func (s *fakeStore) slot(number int) Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[number]
}

func (s *fakeStore) vehicle(plate string) (Vehicle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[plate]
	return v, ok
}

func (s *fakeStore) ticket(id int64) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	return t.clone(), ok
}

package parking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"parking-facility/internal/logging"
	"parking-facility/internal/plate"
)

// Ledger is the single source of truth for one facility: its slots, the
// vehicles that ever registered and every ticket issued. All mutations are
// serialized, including the store round-trips they make, so slot and vehicle
// checks cannot interleave.
type Ledger struct {
	mu sync.RWMutex

	store        Store
	pricing      Pricing
	codec        *plate.Codec
	now          func() time.Time
	storeTimeout time.Duration

	capacity int
	slots    []Slot
	vehicles map[string]*Vehicle
	tickets  []Ticket
}

type Option func(*Ledger)

func WithPricing(p Pricing) Option {
	return func(l *Ledger) { l.pricing = p }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithStoreTimeout bounds every store call. Zero disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.storeTimeout = d }
}

func WithCodec(c *plate.Codec) Option {
	return func(l *Ledger) { l.codec = c }
}

// NewLedger rehydrates a facility from store. When the store holds no slots
// the facility is initialized with capacity slots numbered from 1; otherwise
// the stored layout wins over capacity.
func NewLedger(ctx context.Context, store Store, capacity int, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidArgument)
	}
	if capacity < 0 {
		return nil, fmt.Errorf("%w: negative capacity %d", ErrInvalidArgument, capacity)
	}

	l := &Ledger{
		store:        store,
		pricing:      DefaultPricing(),
		codec:        plate.NewCodec(nil),
		now:          time.Now,
		storeTimeout: 5 * time.Second,
		vehicles:     make(map[string]*Vehicle),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.pricing.Validate(); err != nil {
		return nil, err
	}

	if err := l.loadSlots(ctx, capacity); err != nil {
		return nil, err
	}
	if err := l.loadVehicles(ctx); err != nil {
		return nil, err
	}
	if err := l.loadTickets(ctx); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *Ledger) loadSlots(ctx context.Context, capacity int) error {
	slots, err := call(ctx, l, "load slots", l.store.LoadSlots)
	if err != nil {
		return err
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Number < slots[j].Number })
	for i := range slots {
		if slots[i].Number != i+1 {
			return fmt.Errorf("%w: stored slots are not numbered 1..%d (found %d at position %d)",
				ErrInvalidSlot, len(slots), slots[i].Number, i+1)
		}
		occupant := NormalizePlate(slots[i].OccupantPlate)
		slots[i].Vacate()
		if occupant != "" {
			slots[i].Occupy(occupant)
		}
	}

	if len(slots) > capacity {
		logging.Warn(ctx).
			Int("configured_capacity", capacity).
			Int("stored_capacity", len(slots)).
			Msg("stored layout is larger than configured, keeping stored slots")
	}

	// A layout shorter than capacity is a fresh facility or an interrupted
	// bootstrap; either way the missing numbers are created in order.
	stored := len(slots)
	l.slots = slots
	for n := stored + 1; n <= capacity; n++ {
		slot := NewSlot(n)
		if err := l.exec(ctx, "create slot", func(ctx context.Context) error {
			return l.store.CreateSlot(ctx, slot)
		}); err != nil {
			return err
		}
		l.slots = append(l.slots, slot)
	}
	l.capacity = len(l.slots)

	if l.capacity > stored {
		logging.Info(ctx).
			Int("capacity", l.capacity).
			Int("created", l.capacity-stored).
			Msg("facility slots initialized")
	}
	return nil
}

func (l *Ledger) loadVehicles(ctx context.Context) error {
	vehicles, err := call(ctx, l, "load vehicles", l.store.LoadVehicles)
	if err != nil {
		return err
	}

	for _, v := range vehicles {
		key := NormalizePlate(v.Plate)
		if _, dup := l.vehicles[key]; dup {
			logging.Warn(ctx).Str("plate", key).Msg("duplicate stored vehicle ignored")
			continue
		}
		v.Plate = key
		stored := v
		l.vehicles[key] = &stored
	}

	for _, slot := range l.slots {
		if slot.Occupied() {
			if _, ok := l.vehicles[slot.OccupantPlate]; !ok {
				logging.Warn(ctx).
					Int("slot", slot.Number).
					Str("plate", slot.OccupantPlate).
					Msg("slot occupied by unregistered vehicle")
			}
		}
	}
	return nil
}

func (l *Ledger) loadTickets(ctx context.Context) error {
	tickets, err := call(ctx, l, "load tickets", l.store.LoadTickets)
	if err != nil {
		return err
	}

	l.tickets = make([]Ticket, 0, len(tickets))
	for _, t := range tickets {
		t.Plate = NormalizePlate(t.Plate)
		l.tickets = append(l.tickets, t.clone())
	}
	return nil
}

// Admit lets v into the facility. A plate seen before, by this ledger or by
// the store, is reactivated with its stored kind and rate rather than
// registered again.
func (l *Ledger) Admit(ctx context.Context, v Vehicle) (Vehicle, error) {
	if !v.Kind.Valid() {
		return Vehicle{}, fmt.Errorf("%w: unknown vehicle kind %d", ErrInvalidArgument, int(v.Kind))
	}
	key := NormalizePlate(v.Plate)
	if key == "" {
		return Vehicle{}, fmt.Errorf("%w: empty plate", ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isFullLocked() {
		return Vehicle{}, fmt.Errorf("admit %s: %w", key, ErrCapacityExceeded)
	}

	if existing, ok := l.vehicles[key]; ok {
		return l.reactivateLocked(ctx, existing)
	}

	v.Plate = key
	v.Active = true

	exists, err := call(ctx, l, "admit: find vehicle", func(ctx context.Context) (bool, error) {
		return l.store.FindVehicleByPlate(ctx, key)
	})
	if err != nil {
		return Vehicle{}, err
	}
	if exists {
		return l.adoptStoredLocked(ctx, key)
	}

	created, err := call(ctx, l, "admit: create vehicle", func(ctx context.Context) (bool, error) {
		return l.store.CreateVehicle(ctx, v)
	})
	if err != nil {
		return Vehicle{}, err
	}
	if !created {
		return l.adoptStoredLocked(ctx, key)
	}

	stored := v
	l.vehicles[key] = &stored
	return stored, nil
}

// adoptStoredLocked takes over a record another writer stored under key. The
// stored kind and rate win; only the active flag may change.
func (l *Ledger) adoptStoredLocked(ctx context.Context, key string) (Vehicle, error) {
	vehicles, err := call(ctx, l, "admit: load stored vehicle", l.store.LoadVehicles)
	if err != nil {
		return Vehicle{}, err
	}

	for _, v := range vehicles {
		if NormalizePlate(v.Plate) != key {
			continue
		}
		v.Plate = key
		stored := v
		l.vehicles[key] = &stored
		logging.Warn(ctx).Str("plate", key).Bool("active", v.Active).Msg("vehicle already stored, adopting stored record")
		return l.reactivateLocked(ctx, &stored)
	}

	return Vehicle{}, fmt.Errorf("admit %s: %w: plate reported as stored but not loaded", key, ErrStoreUnavailable)
}

func (l *Ledger) reactivateLocked(ctx context.Context, existing *Vehicle) (Vehicle, error) {
	if existing.Active {
		return Vehicle{}, fmt.Errorf("admit %s: %w", existing.Plate, ErrAlreadyInside)
	}

	updated := *existing
	updated.Active = true
	if err := l.exec(ctx, "admit: reactivate vehicle", func(ctx context.Context) error {
		return l.store.UpdateVehicle(ctx, updated)
	}); err != nil {
		return Vehicle{}, err
	}

	*existing = updated
	return updated, nil
}

// RegisterPlate builds a vehicle from an explicit plate and admits it.
func (l *Ledger) RegisterPlate(ctx context.Context, kind Kind, registration string) (Vehicle, error) {
	v, err := NewVehicle(kind, registration)
	if err != nil {
		return Vehicle{}, err
	}
	return l.Admit(ctx, v)
}

// RegisterSynthesized issues a new plate for country and admits the vehicle.
func (l *Ledger) RegisterSynthesized(ctx context.Context, kind Kind, country plate.Country) (Vehicle, error) {
	v, err := SynthesizeVehicle(l.codec, kind, country)
	if err != nil {
		return Vehicle{}, err
	}
	return l.Admit(ctx, v)
}

// Dismiss lets a vehicle out of the facility, releasing its slot first when
// it is parked. The returned ticket is the one closed by that release, if any.
// When the release succeeds but marking the vehicle inactive fails, the
// release stands and the vehicle stays inside, unparked.
func (l *Ledger) Dismiss(ctx context.Context, registration string) (*Ticket, error) {
	key := NormalizePlate(registration)

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.vehicles[key]
	if !ok {
		return nil, fmt.Errorf("dismiss %s: %w", key, ErrNotRegistered)
	}
	if !v.Active {
		return nil, fmt.Errorf("dismiss %s: %w", key, ErrNotInside)
	}

	var closed *Ticket
	if idx := l.slotIndexLocked(key); idx >= 0 {
		t, err := l.releaseLocked(ctx, idx)
		if err != nil {
			return nil, err
		}
		closed = &t
	}

	updated := *v
	updated.Active = false
	if err := l.exec(ctx, "dismiss: update vehicle", func(ctx context.Context) error {
		return l.store.UpdateVehicle(ctx, updated)
	}); err != nil {
		return closed, err
	}

	*v = updated
	return closed, nil
}

// AssignSlot parks a vehicle that is inside the facility and opens its ticket.
func (l *Ledger) AssignSlot(ctx context.Context, number int, registration string) (Ticket, error) {
	key := NormalizePlate(registration)

	l.mu.Lock()
	defer l.mu.Unlock()

	if number < 1 || number > l.capacity {
		return Ticket{}, fmt.Errorf("%w: %d is outside 1..%d", ErrInvalidSlot, number, l.capacity)
	}

	v, ok := l.vehicles[key]
	if !ok || !v.Active {
		return Ticket{}, fmt.Errorf("park %s: %w", key, ErrNotInside)
	}

	slot := &l.slots[number-1]
	if slot.Occupied() {
		return Ticket{}, fmt.Errorf("park %s: %w: slot %d holds %s", key, ErrSlotOccupied, number, slot.OccupantPlate)
	}
	if idx := l.slotIndexLocked(key); idx >= 0 {
		return Ticket{}, fmt.Errorf("park %s: %w in slot %d", key, ErrAlreadyParked, l.slots[idx].Number)
	}

	previous := *slot
	next := previous
	next.Occupy(key)
	if err := l.exec(ctx, "park: update slot", func(ctx context.Context) error {
		return l.store.UpdateSlot(ctx, next)
	}); err != nil {
		return Ticket{}, err
	}

	ticket, err := call(ctx, l, "park: create ticket", func(ctx context.Context) (Ticket, error) {
		return l.store.CreateTicket(ctx, NewTicket(key, number, l.timestamp()))
	})
	if err != nil {
		return Ticket{}, l.compensate(ctx, err, "park: restore slot", func(ctx context.Context) error {
			return l.store.UpdateSlot(ctx, previous)
		})
	}

	*slot = next
	l.tickets = append(l.tickets, ticket.clone())
	return ticket.clone(), nil
}

// Release vacates a slot and closes the occupant's open ticket.
func (l *Ledger) Release(ctx context.Context, number int) (Ticket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if number < 1 || number > l.capacity {
		return Ticket{}, fmt.Errorf("%w: %d is outside 1..%d", ErrInvalidSlot, number, l.capacity)
	}
	return l.releaseLocked(ctx, number-1)
}

func (l *Ledger) releaseLocked(ctx context.Context, idx int) (Ticket, error) {
	slot := &l.slots[idx]
	if !slot.Occupied() {
		return Ticket{}, fmt.Errorf("release slot %d: %w", slot.Number, ErrSlotNotOccupied)
	}
	key := slot.OccupantPlate

	historyIdx := l.openTicketIndexLocked(key)
	var open Ticket
	if historyIdx >= 0 {
		open = l.tickets[historyIdx].clone()
	} else {
		found, err := call(ctx, l, "release: find open ticket", func(ctx context.Context) (*Ticket, error) {
			return l.store.FindMostRecentOpenTicket(ctx, key)
		})
		if err != nil {
			return Ticket{}, err
		}
		if found == nil {
			return Ticket{}, fmt.Errorf("release slot %d: open ticket for %s: %w", slot.Number, key, ErrNotFound)
		}
		open = found.clone()
	}

	exit := l.exitTime(open.EntryTime)
	closed := open.clone()
	if err := closed.Close(exit, l.pricing.Price(l.billedVehicleLocked(ctx, key), exit.Sub(open.EntryTime))); err != nil {
		return Ticket{}, err
	}

	if err := l.exec(ctx, "release: update ticket", func(ctx context.Context) error {
		return l.store.UpdateTicket(ctx, closed)
	}); err != nil {
		return Ticket{}, err
	}

	next := *slot
	next.Vacate()
	if err := l.exec(ctx, "release: update slot", func(ctx context.Context) error {
		return l.store.UpdateSlot(ctx, next)
	}); err != nil {
		return Ticket{}, l.compensate(ctx, err, "release: reopen ticket", func(ctx context.Context) error {
			return l.store.UpdateTicket(ctx, open)
		})
	}

	*slot = next
	if historyIdx >= 0 {
		l.tickets[historyIdx] = closed.clone()
	} else {
		l.tickets = append(l.tickets, closed.clone())
	}
	return closed.clone(), nil
}

func (l *Ledger) billedVehicleLocked(ctx context.Context, key string) Vehicle {
	if v, ok := l.vehicles[key]; ok {
		return *v
	}
	logging.Warn(ctx).Str("plate", key).Msg("billing unregistered occupant at base rate")
	return Vehicle{Plate: key, Kind: Car, RatePerMinute: BaseRatePerMinute}
}

func (l *Ledger) slotIndexLocked(key string) int {
	for i := range l.slots {
		if l.slots[i].OccupantPlate == key {
			return i
		}
	}
	return -1
}

func (l *Ledger) openTicketIndexLocked(key string) int {
	for i := len(l.tickets) - 1; i >= 0; i-- {
		if l.tickets[i].Plate == key && l.tickets[i].Open() {
			return i
		}
	}
	return -1
}

func (l *Ledger) isFullLocked() bool {
	for i := range l.slots {
		if l.slots[i].Available {
			return false
		}
	}
	return true
}

// Stored timestamps keep microsecond precision so they survive SQL round-trips.
func (l *Ledger) timestamp() time.Time {
	return l.now().UTC().Truncate(time.Microsecond)
}

func (l *Ledger) exitTime(entry time.Time) time.Time {
	exit := l.timestamp()
	if !exit.After(entry) {
		exit = entry.Add(time.Microsecond)
	}
	return exit
}

func (l *Ledger) exec(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := call(ctx, l, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// compensate undoes an earlier store write after a later one failed. A failed
// undo is logged and joined into the returned error.
func (l *Ledger) compensate(ctx context.Context, cause error, op string, undo func(context.Context) error) error {
	if err := l.exec(ctx, op, undo); err != nil {
		logging.Error(ctx).Err(err).AnErr("cause", cause).Str("op", op).Msg("compensating store write failed")
		return errors.Join(cause, err)
	}
	return cause
}

func call[T any](ctx context.Context, l *Ledger, op string, fn func(context.Context) (T, error)) (T, error) {
	callCtx := ctx
	if l.storeTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.storeTimeout)
		defer cancel()
	}

	v, err := fn(callCtx)
	if err != nil {
		var zero T
		if errors.Is(err, ErrStoreUnavailable) {
			return zero, fmt.Errorf("%s: %w", op, err)
		}
		return zero, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return v, nil
}

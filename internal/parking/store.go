package parking

import "context"

// Store persists ledger state. Implementations receive value copies and must
// not keep references into ledger memory. Any method may fail with an error
// wrapping ErrStoreUnavailable. Calls are not transactional across methods.
type Store interface {
	LoadSlots(ctx context.Context) ([]Slot, error)
	LoadVehicles(ctx context.Context) ([]Vehicle, error)
	LoadTickets(ctx context.Context) ([]Ticket, error)

	CreateSlot(ctx context.Context, slot Slot) error
	UpdateSlot(ctx context.Context, slot Slot) error

	// CreateVehicle returns false without error when the plate already exists.
	CreateVehicle(ctx context.Context, v Vehicle) (bool, error)
	UpdateVehicle(ctx context.Context, v Vehicle) error
	FindVehicleByPlate(ctx context.Context, plate string) (bool, error)

	// CreateTicket returns the ticket carrying its assigned ID.
	CreateTicket(ctx context.Context, t Ticket) (Ticket, error)
	UpdateTicket(ctx context.Context, t Ticket) error
	// FindMostRecentOpenTicket returns nil when plate has no open ticket.
	FindMostRecentOpenTicket(ctx context.Context, plate string) (*Ticket, error)
}

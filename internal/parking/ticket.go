package parking

import (
	"fmt"
	"time"
)

// Ticket records one slot occupancy. ID is zero until the store assigns one.
type Ticket struct {
	ID         int64      `json:"id"`
	Plate      string     `json:"plate"`
	SlotNumber int        `json:"slot_number"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   *time.Time `json:"exit_time,omitempty"`
	TotalPrice *float64   `json:"total_price,omitempty"`
}

func NewTicket(plate string, slotNumber int, entry time.Time) Ticket {
	return Ticket{
		Plate:      plate,
		SlotNumber: slotNumber,
		EntryTime:  entry,
	}
}

func (t Ticket) Open() bool {
	return t.ExitTime == nil
}

// Close stamps the exit time and price. The exit must be strictly after entry.
func (t *Ticket) Close(exit time.Time, price float64) error {
	if !t.Open() {
		return fmt.Errorf("%w: ticket %d is already closed", ErrInvalidArgument, t.ID)
	}
	if !exit.After(t.EntryTime) {
		return fmt.Errorf("%w: exit %s is not after entry %s", ErrInvalidArgument,
			exit.Format(time.RFC3339Nano), t.EntryTime.Format(time.RFC3339Nano))
	}
	if price < 0 {
		return fmt.Errorf("%w: negative price %.2f", ErrInvalidArgument, price)
	}

	t.ExitTime = &exit
	t.TotalPrice = &price
	return nil
}

// Duration is the time between entry and exit, or until now for an open ticket.
func (t Ticket) Duration(now time.Time) time.Duration {
	if t.ExitTime != nil {
		return t.ExitTime.Sub(t.EntryTime)
	}
	return now.Sub(t.EntryTime)
}

// Price returns the billed amount, or 0 while the ticket is open.
func (t Ticket) Price() float64 {
	if t.TotalPrice == nil {
		return 0
	}
	return *t.TotalPrice
}

// clone deep-copies the pointer fields so callers cannot alias ledger state.
func (t Ticket) clone() Ticket {
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

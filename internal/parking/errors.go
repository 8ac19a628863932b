package parking

import (
	"errors"

	"parking-facility/internal/plate"
)

var (
	ErrInvalidArgument = plate.ErrInvalidArgument
	ErrInvalidFormat   = plate.ErrInvalidFormat
	ErrInvalidSlot     = errors.New("invalid slot number")

	ErrNotRegistered = errors.New("vehicle is not registered")
	ErrNotFound      = errors.New("not found")

	ErrNotInside       = errors.New("vehicle is not inside the facility")
	ErrAlreadyInside   = errors.New("vehicle is already inside the facility")
	ErrAlreadyParked   = errors.New("vehicle is already parked")
	ErrSlotOccupied    = errors.New("slot is already occupied")
	ErrSlotNotOccupied = errors.New("slot is not occupied")

	ErrCapacityExceeded = errors.New("facility is full")

	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsRetryable reports whether err came from the store and the command may be
// reissued unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsConflict reports whether err is a state-machine precondition failure.
func IsConflict(err error) bool {
	return errors.Is(err, ErrNotInside) ||
		errors.Is(err, ErrAlreadyInside) ||
		errors.Is(err, ErrAlreadyParked) ||
		errors.Is(err, ErrSlotOccupied) ||
		errors.Is(err, ErrSlotNotOccupied) ||
		errors.Is(err, ErrCapacityExceeded)
}

// IsNotFound reports whether err names an unknown vehicle, slot or ticket.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotRegistered)
}

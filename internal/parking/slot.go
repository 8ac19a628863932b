package parking

type Slot struct {
	Number        int    `json:"number"`
	Available     bool   `json:"available"`
	OccupantPlate string `json:"occupant_plate,omitempty"`
}

func NewSlot(number int) Slot {
	return Slot{
		Number:    number,
		Available: true,
	}
}

// Occupy and Vacate are the only mutators, which keeps Available in step
// with OccupantPlate.
func (s *Slot) Occupy(plate string) {
	s.OccupantPlate = plate
	s.Available = false
}

func (s *Slot) Vacate() string {
	plate := s.OccupantPlate
	s.OccupantPlate = ""
	s.Available = true
	return plate
}

func (s Slot) Occupied() bool {
	return s.OccupantPlate != ""
}

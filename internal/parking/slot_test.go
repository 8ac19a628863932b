package parking

import "testing"

func TestNewSlot(t *testing.T) {
	slotNumber := 1
	slot := NewSlot(slotNumber)

	if slot.Number != slotNumber {
		t.Errorf("Expected slot number %d, got %d", slotNumber, slot.Number)
	}

	if !slot.Available {
		t.Error("Expected new slot to be available")
	}

	if slot.OccupantPlate != "" {
		t.Error("Expected new slot to have no occupant")
	}
}

func TestSlotOccupy(t *testing.T) {
	slot := NewSlot(1)

	slot.Occupy("2008 HHR")

	if slot.Available {
		t.Error("Expected slot to be unavailable after occupying")
	}

	if slot.OccupantPlate != "2008 HHR" {
		t.Errorf("Expected occupant 2008 HHR, got %q", slot.OccupantPlate)
	}
}

func TestSlotVacate(t *testing.T) {
	slot := NewSlot(1)

	slot.Occupy("2008 HHR")
	leaving := slot.Vacate()

	if !slot.Available {
		t.Error("Expected slot to be available after vacating")
	}

	if slot.Occupied() {
		t.Error("Expected slot to have no occupant after vacating")
	}

	if leaving != "2008 HHR" {
		t.Errorf("Expected vacating plate 2008 HHR, got %q", leaving)
	}
}

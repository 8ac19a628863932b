// Package storetest checks parking.Store implementations against the
// behaviour the ledger relies on.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-facility/internal/parking"
)

// Factory returns an empty store. Each call must return an independent one.
type Factory func(t *testing.T) parking.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("Slots", func(t *testing.T) { testSlots(t, newStore(t)) })
	t.Run("Vehicles", func(t *testing.T) { testVehicles(t, newStore(t)) })
	t.Run("Tickets", func(t *testing.T) { testTickets(t, newStore(t)) })
	t.Run("LedgerRehydration", func(t *testing.T) { testLedgerRehydration(t, newStore(t)) })
	t.Run("SharedWriters", func(t *testing.T) { testSharedWriters(t, newStore(t)) })
}

func testSlots(t *testing.T, store parking.Store) {
	ctx := context.Background()

	slots, err := store.LoadSlots(ctx)
	require.NoError(t, err)
	assert.Empty(t, slots)

	for _, n := range []int{2, 1, 3} {
		require.NoError(t, store.CreateSlot(ctx, parking.NewSlot(n)))
	}

	occupied := parking.NewSlot(2)
	occupied.Occupy("2008 HHR")
	require.NoError(t, store.UpdateSlot(ctx, occupied))

	slots, err = store.LoadSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, []parking.Slot{parking.NewSlot(1), occupied, parking.NewSlot(3)}, slots)

	occupied.Vacate()
	require.NoError(t, store.UpdateSlot(ctx, occupied))

	slots, err = store.LoadSlots(ctx)
	require.NoError(t, err)
	assert.True(t, slots[1].Available)
	assert.Empty(t, slots[1].OccupantPlate)
}

func testVehicles(t *testing.T, store parking.Store) {
	ctx := context.Background()

	car, err := parking.NewVehicle(parking.Car, "2008 HHR")
	require.NoError(t, err)
	van, err := parking.NewVehicle(parking.Van, "AA-229-AA")
	require.NoError(t, err)

	created, err := store.CreateVehicle(ctx, car)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateVehicle(ctx, car)
	require.NoError(t, err)
	assert.False(t, created, "duplicate plate is reported, not failed")

	created, err = store.CreateVehicle(ctx, van)
	require.NoError(t, err)
	assert.True(t, created)

	found, err := store.FindVehicleByPlate(ctx, "2008 HHR")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.FindVehicleByPlate(ctx, "123 ABC")
	require.NoError(t, err)
	assert.False(t, found)

	car.Active = false
	car.RatePerMinute = 0.05
	require.NoError(t, store.UpdateVehicle(ctx, car))

	vehicles, err := store.LoadVehicles(ctx)
	require.NoError(t, err)
	require.Len(t, vehicles, 2)

	byPlate := make(map[string]parking.Vehicle)
	for _, v := range vehicles {
		byPlate[v.Plate] = v
	}
	assert.Equal(t, car, byPlate["2008 HHR"])
	assert.Equal(t, van, byPlate["AA-229-AA"])
}

func testTickets(t *testing.T, store parking.Store) {
	ctx := context.Background()
	entry := time.Date(2024, 3, 1, 9, 0, 0, 123000, time.UTC)

	first, err := store.CreateTicket(ctx, parking.NewTicket("2008 HHR", 1, entry))
	require.NoError(t, err)
	assert.Positive(t, first.ID)

	second, err := store.CreateTicket(ctx, parking.NewTicket("2008 HHR", 2, entry.Add(time.Hour)))
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	open, err := store.FindMostRecentOpenTicket(ctx, "2008 HHR")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, second.ID, open.ID)
	assert.Equal(t, 2, open.SlotNumber)

	require.NoError(t, second.Close(entry.Add(2*time.Hour), 2.4))
	require.NoError(t, store.UpdateTicket(ctx, second))

	open, err = store.FindMostRecentOpenTicket(ctx, "2008 HHR")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, first.ID, open.ID)

	require.NoError(t, first.Close(entry.Add(time.Minute), 0.04))
	require.NoError(t, store.UpdateTicket(ctx, first))

	open, err = store.FindMostRecentOpenTicket(ctx, "2008 HHR")
	require.NoError(t, err)
	assert.Nil(t, open)

	tickets, err := store.LoadTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assertTicket(t, first, tickets[0])
	assertTicket(t, second, tickets[1])
}

func assertTicket(t *testing.T, want, got parking.Ticket) {
	t.Helper()

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Plate, got.Plate)
	assert.Equal(t, want.SlotNumber, got.SlotNumber)
	assert.WithinDuration(t, want.EntryTime, got.EntryTime, 0)
	require.Equal(t, want.Open(), got.Open())
	if !want.Open() {
		assert.WithinDuration(t, *want.ExitTime, *got.ExitTime, 0)
		assert.InDelta(t, want.Price(), got.Price(), 1e-9)
	}
}

func testLedgerRehydration(t *testing.T, store parking.Store) {
	ctx := context.Background()

	ledger, err := parking.NewLedger(ctx, store, 2)
	require.NoError(t, err)

	_, err = ledger.RegisterPlate(ctx, parking.Bus, "2008 HHR")
	require.NoError(t, err)
	_, err = ledger.RegisterPlate(ctx, parking.Car, "AA-229-AA")
	require.NoError(t, err)
	ticket, err := ledger.AssignSlot(ctx, 2, "2008 HHR")
	require.NoError(t, err)
	_, err = ledger.Dismiss(ctx, "AA-229-AA")
	require.NoError(t, err)

	restored, err := parking.NewLedger(ctx, store, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, restored.Capacity())
	assert.Equal(t, parking.Parked, restored.State("2008 HHR"))
	assert.Equal(t, parking.Outside, restored.State("AA-229-AA"))
	assert.Equal(t, ledger.Stats(), restored.Stats())

	closed, err := restored.Release(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, closed.ID)
	assert.False(t, closed.Open())

	v, err := restored.RegisterPlate(ctx, parking.Car, "aa-229-aa")
	require.NoError(t, err)
	assert.Equal(t, parking.Car, v.Kind)
	assert.True(t, v.Active)
}

func testSharedWriters(t *testing.T, store parking.Store) {
	ctx := context.Background()

	first, err := parking.NewLedger(ctx, store, 2)
	require.NoError(t, err)
	second, err := parking.NewLedger(ctx, store, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Capacity())

	slots, err := store.LoadSlots(ctx)
	require.NoError(t, err)
	assert.Len(t, slots, 3)

	_, err = first.RegisterPlate(ctx, parking.Bus, "2008 HHR")
	require.NoError(t, err)

	_, err = second.RegisterPlate(ctx, parking.Car, "2008 HHR")
	assert.ErrorIs(t, err, parking.ErrAlreadyInside)

	v, err := second.Vehicle("2008 HHR")
	require.NoError(t, err)
	assert.Equal(t, parking.Bus, v.Kind)
	assert.InDelta(t, 0.29, v.RatePerMinute, 1e-9)

	vehicles, err := store.LoadVehicles(ctx)
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, parking.Bus, vehicles[0].Kind)
	assert.True(t, vehicles[0].Active)
}

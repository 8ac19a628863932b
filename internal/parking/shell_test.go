package parking

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runShell(t *testing.T, capacity int, script string) (string, *InstrumentedLedger) {
	t.Helper()

	ledger, _, clock := newTestLedger(t, capacity)
	clock.Advance(time.Hour)
	harness := newTelemetryHarness()

	il, err := NewInstrumentedLedger(ledger, harness.provider)
	require.NoError(t, err)

	var out bytes.Buffer
	shell := NewInstrumentedShell(il, harness.provider, strings.NewReader(script), &out)
	require.NoError(t, shell.Run(context.Background()))
	return out.String(), il
}

func TestShellParkingEpisode(t *testing.T) {
	out, il := runShell(t, 2, strings.Join([]string{
		"register car 2008 hhr",
		"park 1 2008 HHR",
		"slot_for 2008 HHR",
		"parked",
		"release 1",
		"dismiss 2008 HHR",
		"status",
	}, "\n"))

	assert.Contains(t, out, "Admitted Car 2008 HHR (Spain)")
	assert.Contains(t, out, "Allocated slot number: 1 (ticket 1)")
	assert.Contains(t, out, "1\n")
	assert.Contains(t, out, "Slot number 1 is free, 2008 HHR charged 0.04")
	assert.Contains(t, out, "2008 HHR left the facility")
	assert.Contains(t, out, "Capacity    2")

	assert.Empty(t, il.ActiveVehicles())
	assert.Len(t, il.TicketHistory(), 1)
}

func TestShellReportsErrors(t *testing.T) {
	out, _ := runShell(t, 1, strings.Join([]string{
		"register truck 2008 HHR",
		"register car ZZ99ZZ",
		"park one 2008 HHR",
		"park 1 2008 HHR",
		"release 1",
		"dismiss AA-229-AA",
		"frobnicate",
		"register car",
	}, "\n"))

	assert.Contains(t, out, `Error: invalid argument: unknown vehicle kind "truck"`)
	assert.Contains(t, out, "Error: ")
	assert.Contains(t, out, ErrNotInside.Error())
	assert.Contains(t, out, ErrSlotNotOccupied.Error())
	assert.Contains(t, out, ErrNotRegistered.Error())
	assert.Contains(t, out, "Unknown command: frobnicate")
	assert.Contains(t, out, "Usage: register <kind> <plate>")
}

func TestShellGenerateAndListings(t *testing.T) {
	out, il := runShell(t, 3, strings.Join([]string{
		"generate van czech republic",
		"generate bus Malta",
		"by_kind van",
		"by_country malta",
		"vehicles kind",
		"countries",
		"exit",
		"register car 2008 HHR",
	}, "\n"))

	vehicles := il.Vehicles(ByKind)
	require.Len(t, vehicles, 2)
	assert.Equal(t, Bus, vehicles[0].Kind)
	assert.Equal(t, Van, vehicles[1].Kind)

	assert.Contains(t, out, vehicles[0].Plate)
	assert.Contains(t, out, vehicles[1].Plate)
	assert.Contains(t, out, "Finland")
	assert.Contains(t, out, "DDDD-LLL")
	assert.NotContains(t, out, "2008 HHR", "commands after exit are ignored")
}

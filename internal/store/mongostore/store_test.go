package mongostore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"parking-facility/internal/parking"
	"parking-facility/internal/store/storetest"
)

// openMongo connects to MONGO_URI with a throwaway database that is dropped
// when the test ends.
func openMongo(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	ctx := context.Background()
	database := "parking_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	store, err := Open(ctx, uri, database, 3)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := store.db.Drop(context.Background()); err != nil {
			t.Logf("drop %s: %v", database, err)
		}
		store.Close()
	})
	return store
}

func TestMongoStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) parking.Store {
		return openMongo(t)
	})
}

func TestMongoUpdateMissingRows(t *testing.T) {
	ctx := context.Background()
	store := openMongo(t)

	assert.ErrorIs(t, store.UpdateSlot(ctx, parking.NewSlot(9)), parking.ErrNotFound)

	ticket := parking.NewTicket("2008 HHR", 1, time.Now())
	ticket.ID = 42
	assert.ErrorIs(t, store.UpdateTicket(ctx, ticket), parking.ErrNotFound)
}

func TestSlotDocument(t *testing.T) {
	slot := parking.NewSlot(4)
	slot.Occupy("2008 HHR")

	doc := newSlotDoc(slot)
	assert.Equal(t, slotDoc{Number: 4, Available: false, OccupantPlate: "2008 HHR"}, doc)
	assert.Equal(t, slot, doc.toSlot())

	raw, err := bson.Marshal(newSlotDoc(parking.NewSlot(2)))
	require.NoError(t, err)
	_, err = bson.Raw(raw).LookupErr("occupant_plate")
	assert.Error(t, err, "free slots carry no occupant field")
}

func TestVehicleDocument(t *testing.T) {
	v, err := parking.NewVehicle(parking.Van, "AA-229-AA")
	require.NoError(t, err)
	v.Active = false

	doc := newVehicleDoc(v)
	assert.Equal(t, "Van", doc.Kind)
	assert.Equal(t, "France", doc.Country)

	back, err := doc.toVehicle()
	require.NoError(t, err)
	assert.Equal(t, v, back)

	doc.Kind = "tram"
	_, err = doc.toVehicle()
	assert.ErrorIs(t, err, parking.ErrInvalidArgument)
}

func TestTicketDocument(t *testing.T) {
	entry := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ticket := parking.NewTicket("2008 HHR", 1, entry)
	ticket.ID = 3

	raw, err := bson.Marshal(newTicketDoc(ticket))
	require.NoError(t, err)
	assert.Equal(t, bson.TypeNull, bson.Raw(raw).Lookup("exit_time").Type, "open tickets match exit_time: null")

	var decoded ticketDoc
	require.NoError(t, bson.Unmarshal(raw, &decoded))
	assert.Equal(t, ticket, decoded.toTicket())

	require.NoError(t, ticket.Close(entry.Add(time.Hour), 2.4))
	assert.Equal(t, ticket, newTicketDoc(ticket).toTicket())
}

func TestOpenRejectsBadURI(t *testing.T) {
	_, err := Open(context.Background(), "not-a-mongo-uri", "parking", 1)
	assert.Error(t, err)
}

// Package mongostore keeps the ledger in MongoDB. Slot numbers, plates and
// ticket IDs are the document _id values; ticket IDs come from a counter
// document.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"parking-facility/internal/logging"
	"parking-facility/internal/parking"
)

const (
	slotsCollection    = "parking_slots"
	vehiclesCollection = "vehicles"
	ticketsCollection  = "tickets"
	countersCollection = "counters"

	ticketSequence = "tickets"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

type slotDoc struct {
	Number        int    `bson:"_id"`
	Available     bool   `bson:"available"`
	OccupantPlate string `bson:"occupant_plate,omitempty"`
}

type vehicleDoc struct {
	Plate         string  `bson:"_id"`
	Kind          string  `bson:"kind"`
	Country       string  `bson:"country"`
	RatePerMinute float64 `bson:"rate_per_minute"`
	Active        bool    `bson:"active"`
}

type ticketDoc struct {
	ID         int64      `bson:"_id"`
	Plate      string     `bson:"plate"`
	SlotNumber int        `bson:"slot_number"`
	EntryTime  time.Time  `bson:"entry_time"`
	ExitTime   *time.Time `bson:"exit_time"`
	TotalPrice *float64   `bson:"total_price"`
}

type counterDoc struct {
	Name string `bson:"_id"`
	Seq  int64  `bson:"seq"`
}

// Open connects to uri, retrying the first ping up to connectTries times,
// and ensures the ticket lookup index.
func Open(ctx context.Context, uri, database string, connectTries int) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}

	if connectTries < 1 {
		connectTries = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx, nil)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(connectTries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.Warn(ctx).Err(err).Dur("retry_in", next).Msg("mongodb not reachable")
		}),
	)
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(ticketsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "plate", Value: 1}, {Key: "_id", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: create ticket index: %w", err)
	}
	return nil
}

func (s *Store) LoadSlots(ctx context.Context) ([]parking.Slot, error) {
	var docs []slotDoc
	if err := s.findAll(ctx, slotsCollection, &docs); err != nil {
		return nil, err
	}

	slots := make([]parking.Slot, 0, len(docs))
	for _, d := range docs {
		slots = append(slots, d.toSlot())
	}
	return slots, nil
}

func (s *Store) LoadVehicles(ctx context.Context) ([]parking.Vehicle, error) {
	var docs []vehicleDoc
	if err := s.findAll(ctx, vehiclesCollection, &docs); err != nil {
		return nil, err
	}

	vehicles := make([]parking.Vehicle, 0, len(docs))
	for _, d := range docs {
		v, err := d.toVehicle()
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

func (s *Store) LoadTickets(ctx context.Context) ([]parking.Ticket, error) {
	var docs []ticketDoc
	if err := s.findAll(ctx, ticketsCollection, &docs); err != nil {
		return nil, err
	}

	tickets := make([]parking.Ticket, 0, len(docs))
	for _, d := range docs {
		tickets = append(tickets, d.toTicket())
	}
	return tickets, nil
}

func (s *Store) findAll(ctx context.Context, collection string, out any) error {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(collection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return fmt.Errorf("mongostore: load %s: %w", collection, err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("mongostore: decode %s: %w", collection, err)
	}
	return nil
}

func (s *Store) CreateSlot(ctx context.Context, slot parking.Slot) error {
	if _, err := s.db.Collection(slotsCollection).InsertOne(ctx, newSlotDoc(slot)); err != nil {
		return fmt.Errorf("mongostore: create slot %d: %w", slot.Number, err)
	}
	return nil
}

func (s *Store) UpdateSlot(ctx context.Context, slot parking.Slot) error {
	res, err := s.db.Collection(slotsCollection).ReplaceOne(ctx, bson.M{"_id": slot.Number}, newSlotDoc(slot))
	if err != nil {
		return fmt.Errorf("mongostore: update slot %d: %w", slot.Number, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mongostore: slot %d: %w", slot.Number, parking.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateVehicle(ctx context.Context, v parking.Vehicle) (bool, error) {
	_, err := s.db.Collection(vehiclesCollection).InsertOne(ctx, newVehicleDoc(v))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mongostore: create vehicle %s: %w", v.Plate, err)
	}
	return true, nil
}

func (s *Store) UpdateVehicle(ctx context.Context, v parking.Vehicle) error {
	res, err := s.db.Collection(vehiclesCollection).ReplaceOne(ctx, bson.M{"_id": v.Plate}, newVehicleDoc(v))
	if err != nil {
		return fmt.Errorf("mongostore: update vehicle %s: %w", v.Plate, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mongostore: vehicle %s: %w", v.Plate, parking.ErrNotFound)
	}
	return nil
}

func (s *Store) FindVehicleByPlate(ctx context.Context, plate string) (bool, error) {
	n, err := s.db.Collection(vehiclesCollection).CountDocuments(ctx, bson.M{"_id": plate}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongostore: find vehicle %s: %w", plate, err)
	}
	return n > 0, nil
}

func (s *Store) CreateTicket(ctx context.Context, t parking.Ticket) (parking.Ticket, error) {
	id, err := s.nextTicketID(ctx)
	if err != nil {
		return parking.Ticket{}, err
	}

	t.ID = id
	if _, err := s.db.Collection(ticketsCollection).InsertOne(ctx, newTicketDoc(t)); err != nil {
		return parking.Ticket{}, fmt.Errorf("mongostore: create ticket %d: %w", id, err)
	}
	return t, nil
}

func (s *Store) nextTicketID(ctx context.Context) (int64, error) {
	var counter counterDoc
	err := s.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": ticketSequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("mongostore: next ticket id: %w", err)
	}
	return counter.Seq, nil
}

func (s *Store) UpdateTicket(ctx context.Context, t parking.Ticket) error {
	res, err := s.db.Collection(ticketsCollection).ReplaceOne(ctx, bson.M{"_id": t.ID}, newTicketDoc(t))
	if err != nil {
		return fmt.Errorf("mongostore: update ticket %d: %w", t.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mongostore: ticket %d: %w", t.ID, parking.ErrNotFound)
	}
	return nil
}

func (s *Store) FindMostRecentOpenTicket(ctx context.Context, plate string) (*parking.Ticket, error) {
	var doc ticketDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	err := s.db.Collection(ticketsCollection).FindOne(ctx, bson.M{"plate": plate, "exit_time": nil}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find open ticket for %s: %w", plate, err)
	}

	t := doc.toTicket()
	return &t, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func newSlotDoc(slot parking.Slot) slotDoc {
	return slotDoc{
		Number:        slot.Number,
		Available:     slot.Available,
		OccupantPlate: slot.OccupantPlate,
	}
}

func (d slotDoc) toSlot() parking.Slot {
	slot := parking.NewSlot(d.Number)
	if d.OccupantPlate != "" {
		slot.Occupy(d.OccupantPlate)
	}
	return slot
}

func newVehicleDoc(v parking.Vehicle) vehicleDoc {
	return vehicleDoc{
		Plate:         v.Plate,
		Kind:          v.Kind.String(),
		Country:       v.Country.String(),
		RatePerMinute: v.RatePerMinute,
		Active:        v.Active,
	}
}

func (d vehicleDoc) toVehicle() (parking.Vehicle, error) {
	kind, err := parking.ParseKind(d.Kind)
	if err != nil {
		return parking.Vehicle{}, fmt.Errorf("mongostore: vehicle %s: %w", d.Plate, err)
	}
	v, err := parking.RestoreVehicle(d.Plate, kind, d.RatePerMinute, d.Active)
	if err != nil {
		return parking.Vehicle{}, fmt.Errorf("mongostore: vehicle %s: %w", d.Plate, err)
	}
	return v, nil
}

func newTicketDoc(t parking.Ticket) ticketDoc {
	return ticketDoc{
		ID:         t.ID,
		Plate:      t.Plate,
		SlotNumber: t.SlotNumber,
		EntryTime:  t.EntryTime,
		ExitTime:   t.ExitTime,
		TotalPrice: t.TotalPrice,
	}
}

func (d ticketDoc) toTicket() parking.Ticket {
	t := parking.Ticket{
		ID:         d.ID,
		Plate:      d.Plate,
		SlotNumber: d.SlotNumber,
		EntryTime:  d.EntryTime.UTC(),
		TotalPrice: d.TotalPrice,
	}
	if d.ExitTime != nil {
		exit := d.ExitTime.UTC()
		t.ExitTime = &exit
	}
	return t
}

var _ parking.Store = (*Store)(nil)

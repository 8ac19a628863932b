package parking

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"parking-facility/internal/plate"
)

const shellHelp = `Commands:
  register <kind> <plate>      admit a vehicle with an existing plate
  generate <kind> <country>    admit a vehicle with a new plate
  dismiss <plate>              let a vehicle out, releasing its slot
  park <slot> <plate>          assign a slot to a vehicle inside
  release <slot>               free a slot and close its ticket
  status                       facility summary
  slots | available            all slots, or only free ones
  active | parked              vehicles inside, or parked ones
  tickets                      ticket history
  vehicle <plate>              show one vehicle
  slot_for <plate>             slot number for a plate
  by_country <country>         vehicles registered in a country
  by_kind <kind>               vehicles of a kind
  vehicles [plate|country|kind]
  countries                    supported plate countries
  help | exit`

// InstrumentedShell is a line-oriented console over the ledger. Every command
// runs in its own span.
type InstrumentedShell struct {
	ledger    *InstrumentedLedger
	scanner   *bufio.Scanner
	out       io.Writer
	telemetry *TelemetryProvider
}

func NewInstrumentedShell(ledger *InstrumentedLedger, telemetry *TelemetryProvider, in io.Reader, out io.Writer) *InstrumentedShell {
	return &InstrumentedShell{
		ledger:    ledger,
		scanner:   bufio.NewScanner(in),
		out:       out,
		telemetry: telemetry,
	}
}

// Run reads commands until input ends, exit is entered or ctx is done.
func (s *InstrumentedShell) Run(ctx context.Context) error {
	tracer := s.telemetry.Tracer()
	ctx, span := tracer.Start(ctx, "shell.run")
	defer span.End()

	span.AddEvent("shell_started")

	for ctx.Err() == nil && s.scanner.Scan() {
		input := strings.TrimSpace(s.scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		cmdCtx, cmdSpan := tracer.Start(ctx, "shell.process_command",
			trace.WithAttributes(attribute.String("command.input", input)))
		s.processCommand(cmdCtx, input)
		cmdSpan.End()
	}

	span.AddEvent("shell_ended")
	return s.scanner.Err()
}

func (s *InstrumentedShell) processCommand(ctx context.Context, input string) {
	span := trace.SpanFromContext(ctx)

	parts := strings.Fields(input)
	command, args := parts[0], parts[1:]
	span.SetAttributes(attribute.String("command.name", command))

	switch command {
	case "register":
		s.handleRegister(ctx, args)
	case "generate":
		s.handleGenerate(ctx, args)
	case "dismiss":
		s.handleDismiss(ctx, args)
	case "park":
		s.handlePark(ctx, args)
	case "release":
		s.handleRelease(ctx, args)
	case "status":
		s.handleStatus(ctx)
	case "slots":
		s.printSlots(s.ledger.Slots())
	case "available":
		s.printSlots(s.ledger.AvailableSlots())
	case "active":
		s.printVehicles(s.ledger.ActiveVehicles())
	case "parked":
		s.handleParked()
	case "tickets":
		s.handleTickets()
	case "vehicle":
		s.handleVehicle(ctx, args)
	case "slot_for":
		s.handleSlotFor(args)
	case "by_country":
		s.handleByCountry(args)
	case "by_kind":
		s.handleByKind(args)
	case "vehicles":
		s.handleVehicles(args)
	case "countries":
		s.handleCountries()
	case "help":
		fmt.Fprintln(s.out, shellHelp)
	default:
		span.AddEvent("unknown_command", trace.WithAttributes(
			attribute.String("unknown_command", command),
		))
		fmt.Fprintf(s.out, "Unknown command: %s\n", command)
	}
}

func (s *InstrumentedShell) fail(ctx context.Context, err error) {
	trace.SpanFromContext(ctx).RecordError(err)
	fmt.Fprintf(s.out, "Error: %s\n", err)
}

func (s *InstrumentedShell) usage(ctx context.Context, text string) {
	trace.SpanFromContext(ctx).AddEvent("invalid_arguments")
	fmt.Fprintf(s.out, "Usage: %s\n", text)
}

func (s *InstrumentedShell) handleRegister(ctx context.Context, args []string) {
	if len(args) < 2 {
		s.usage(ctx, "register <kind> <plate>")
		return
	}

	kind, err := ParseKind(args[0])
	if err != nil {
		s.fail(ctx, err)
		return
	}

	v, err := s.ledger.RegisterPlate(ctx, kind, strings.Join(args[1:], " "))
	if err != nil {
		s.fail(ctx, err)
		return
	}
	fmt.Fprintf(s.out, "Admitted %s\n", v)
}

func (s *InstrumentedShell) handleGenerate(ctx context.Context, args []string) {
	if len(args) < 2 {
		s.usage(ctx, "generate <kind> <country>")
		return
	}

	kind, err := ParseKind(args[0])
	if err != nil {
		s.fail(ctx, err)
		return
	}
	country, err := plate.ParseCountry(strings.Join(args[1:], " "))
	if err != nil {
		s.fail(ctx, err)
		return
	}

	v, err := s.ledger.RegisterSynthesized(ctx, kind, country)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	fmt.Fprintf(s.out, "Admitted %s\n", v)
}

func (s *InstrumentedShell) handleDismiss(ctx context.Context, args []string) {
	if len(args) == 0 {
		s.usage(ctx, "dismiss <plate>")
		return
	}

	registration := strings.Join(args, " ")
	closed, err := s.ledger.Dismiss(ctx, registration)
	if closed != nil {
		fmt.Fprintf(s.out, "Slot number %d is free, charged %.2f\n", closed.SlotNumber, closed.Price())
	}
	if err != nil {
		s.fail(ctx, err)
		return
	}
	fmt.Fprintf(s.out, "%s left the facility\n", NormalizePlate(registration))
}

func (s *InstrumentedShell) handlePark(ctx context.Context, args []string) {
	if len(args) < 2 {
		s.usage(ctx, "park <slot> <plate>")
		return
	}

	number, err := strconv.Atoi(args[0])
	if err != nil {
		s.fail(ctx, fmt.Errorf("%w: %q", ErrInvalidSlot, args[0]))
		return
	}

	ticket, err := s.ledger.AssignSlot(ctx, number, strings.Join(args[1:], " "))
	if err != nil {
		s.fail(ctx, err)
		return
	}
	fmt.Fprintf(s.out, "Allocated slot number: %d (ticket %d)\n", ticket.SlotNumber, ticket.ID)
}

func (s *InstrumentedShell) handleRelease(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.usage(ctx, "release <slot>")
		return
	}

	number, err := strconv.Atoi(args[0])
	if err != nil {
		s.fail(ctx, fmt.Errorf("%w: %q", ErrInvalidSlot, args[0]))
		return
	}

	ticket, err := s.ledger.Release(ctx, number)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	fmt.Fprintf(s.out, "Slot number %d is free, %s charged %.2f\n", number, ticket.Plate, ticket.Price())
}

func (s *InstrumentedShell) handleStatus(ctx context.Context) {
	stats := s.ledger.Status(ctx)

	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Capacity\t%d\n", stats.Capacity)
	fmt.Fprintf(w, "Available\t%d\n", stats.Available)
	fmt.Fprintf(w, "Occupied\t%d\n", stats.Occupied)
	fmt.Fprintf(w, "Registered\t%d\n", stats.Registered)
	fmt.Fprintf(w, "Inside\t%d\n", stats.Active)
	fmt.Fprintf(w, "Tickets\t%d (%d open)\n", stats.Tickets, stats.OpenTickets)
	fmt.Fprintf(w, "Revenue\t%.2f\n", stats.Revenue)
	w.Flush()
}

func (s *InstrumentedShell) handleParked() {
	parked := s.ledger.ParkedVehicles()
	if len(parked) == 0 {
		fmt.Fprintln(s.out, "No vehicles parked")
		return
	}

	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Slot No.\tPlate\tKind\tCountry")
	for _, p := range parked {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.Slot, p.Vehicle.Plate, p.Vehicle.Kind, p.Vehicle.Country)
	}
	w.Flush()
}

func (s *InstrumentedShell) handleTickets() {
	tickets := s.ledger.TicketHistory()
	if len(tickets) == 0 {
		fmt.Fprintln(s.out, "No tickets issued")
		return
	}

	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Ticket\tPlate\tSlot\tEntry\tExit\tPrice")
	for _, t := range tickets {
		exit, price := "-", "-"
		if !t.Open() {
			exit = t.ExitTime.Format(time.DateTime)
			price = fmt.Sprintf("%.2f", t.Price())
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
			t.ID, t.Plate, t.SlotNumber, t.EntryTime.Format(time.DateTime), exit, price)
	}
	w.Flush()
}

func (s *InstrumentedShell) handleVehicle(ctx context.Context, args []string) {
	if len(args) == 0 {
		s.usage(ctx, "vehicle <plate>")
		return
	}

	registration := strings.Join(args, " ")
	v, slot, err := s.ledger.Lookup(ctx, registration)
	if err != nil {
		fmt.Fprintln(s.out, "Not found")
		return
	}

	where := s.ledger.State(registration).String()
	if slot != nil {
		where = fmt.Sprintf("%s in slot %d", where, slot.Number)
	}
	fmt.Fprintf(s.out, "%s, %s\n", v, where)
}

func (s *InstrumentedShell) handleSlotFor(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: slot_for <plate>")
		return
	}

	slot, ok := s.ledger.SlotOf(strings.Join(args, " "))
	if !ok {
		fmt.Fprintln(s.out, "Not found")
		return
	}
	fmt.Fprintf(s.out, "%d\n", slot.Number)
}

func (s *InstrumentedShell) handleByCountry(args []string) {
	country, err := plate.ParseCountry(strings.Join(args, " "))
	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", err)
		return
	}
	s.printVehicles(s.ledger.VehiclesOfCountry(country))
}

func (s *InstrumentedShell) handleByKind(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: by_kind <kind>")
		return
	}

	kind, err := ParseKind(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", err)
		return
	}
	s.printVehicles(s.ledger.VehiclesOfKind(kind))
}

func (s *InstrumentedShell) handleVehicles(args []string) {
	order, err := ParseVehicleOrder(strings.Join(args, " "))
	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", err)
		return
	}
	s.printVehicles(s.ledger.Vehicles(order))
}

func (s *InstrumentedShell) handleCountries() {
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Country\tLayout")
	for _, c := range plate.Countries() {
		fmt.Fprintf(w, "%s\t%s\n", c, c.Template())
	}
	w.Flush()
}

func (s *InstrumentedShell) printSlots(slots []Slot) {
	if len(slots) == 0 {
		fmt.Fprintln(s.out, "No slots")
		return
	}

	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Slot No.\tOccupant")
	for _, slot := range slots {
		occupant := "-"
		if slot.Occupied() {
			occupant = slot.OccupantPlate
		}
		fmt.Fprintf(w, "%d\t%s\n", slot.Number, occupant)
	}
	w.Flush()
}

func (s *InstrumentedShell) printVehicles(vehicles []Vehicle) {
	if len(vehicles) == 0 {
		fmt.Fprintln(s.out, "No vehicles")
		return
	}

	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Plate\tKind\tCountry\tRate\tInside")
	for _, v := range vehicles {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%t\n", v.Plate, v.Kind, v.Country, v.RatePerMinute, v.Active)
	}
	w.Flush()
}

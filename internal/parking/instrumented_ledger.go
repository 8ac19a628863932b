package parking

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"parking-facility/internal/plate"
)

// InstrumentedLedger traces every command and records facility metrics.
// Queries without a context go straight to the embedded Ledger.
type InstrumentedLedger struct {
	*Ledger
	telemetry *TelemetryProvider

	admissions        metric.Int64Counter
	dismissals        metric.Int64Counter
	assignments       metric.Int64Counter
	releases          metric.Int64Counter
	occupancyGauge    metric.Int64UpDownCounter
	totalSlotsGauge   metric.Int64UpDownCounter
	revenue           metric.Float64Counter
	operationDuration metric.Float64Histogram
}

func NewInstrumentedLedger(ledger *Ledger, telemetry *TelemetryProvider) (*InstrumentedLedger, error) {
	meter := telemetry.Meter()

	admissions, err := meter.Int64Counter("facility_admissions_total",
		metric.WithDescription("Total number of admission attempts"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	dismissals, err := meter.Int64Counter("facility_dismissals_total",
		metric.WithDescription("Total number of dismissal attempts"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	assignments, err := meter.Int64Counter("slot_assignments_total",
		metric.WithDescription("Total number of slot assignment attempts"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	releases, err := meter.Int64Counter("slot_releases_total",
		metric.WithDescription("Total number of slot release attempts"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	occupancyGauge, err := meter.Int64UpDownCounter("facility_occupancy",
		metric.WithDescription("Current number of occupied slots"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	totalSlotsGauge, err := meter.Int64UpDownCounter("facility_total_slots",
		metric.WithDescription("Total number of slots"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	revenue, err := meter.Float64Counter("facility_revenue_total",
		metric.WithDescription("Sum of closed ticket prices"),
		metric.WithUnit("{EUR}"))
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram("operation_duration_seconds",
		metric.WithDescription("Duration of ledger operations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	il := &InstrumentedLedger{
		Ledger:            ledger,
		telemetry:         telemetry,
		admissions:        admissions,
		dismissals:        dismissals,
		assignments:       assignments,
		releases:          releases,
		occupancyGauge:    occupancyGauge,
		totalSlotsGauge:   totalSlotsGauge,
		revenue:           revenue,
		operationDuration: operationDuration,
	}

	stats := ledger.Stats()
	totalSlotsGauge.Add(context.Background(), int64(stats.Capacity))
	occupancyGauge.Add(context.Background(), int64(stats.Occupied))

	return il, nil
}

func (il *InstrumentedLedger) RegisterPlate(ctx context.Context, kind Kind, registration string) (Vehicle, error) {
	ctx, span := il.telemetry.Tracer().Start(ctx, "facility.register_plate",
		trace.WithAttributes(
			attribute.String("vehicle.kind", kind.String()),
			attribute.String("vehicle.plate", registration),
		))
	defer span.End()

	start := time.Now()
	v, err := il.Ledger.RegisterPlate(ctx, kind, registration)
	il.recordAdmission(ctx, span, "register_plate", start, v, err)
	return v, err
}

func (il *InstrumentedLedger) RegisterSynthesized(ctx context.Context, kind Kind, country plate.Country) (Vehicle, error) {
	ctx, span := il.telemetry.Tracer().Start(ctx, "facility.register_synthesized",
		trace.WithAttributes(
			attribute.String("vehicle.kind", kind.String()),
			attribute.String("vehicle.country", country.String()),
		))
	defer span.End()

	start := time.Now()
	span.AddEvent("synthesizing_plate")
	v, err := il.Ledger.RegisterSynthesized(ctx, kind, country)
	il.recordAdmission(ctx, span, "register_synthesized", start, v, err)
	return v, err
}

func (il *InstrumentedLedger) Admit(ctx context.Context, v Vehicle) (Vehicle, error) {
	ctx, span := il.telemetry.Tracer().Start(ctx, "facility.admit",
		trace.WithAttributes(
			attribute.String("vehicle.kind", v.Kind.String()),
			attribute.String("vehicle.plate", v.Plate),
		))
	defer span.End()

	start := time.Now()
	admitted, err := il.Ledger.Admit(ctx, v)
	il.recordAdmission(ctx, span, "admit", start, admitted, err)
	return admitted, err
}

func (il *InstrumentedLedger) recordAdmission(ctx context.Context, span trace.Span, op string, start time.Time, v Vehicle, err error) {
	labels := il.finish(span, op, err)
	if err == nil {
		span.SetAttributes(
			attribute.String("vehicle.plate", v.Plate),
			attribute.String("vehicle.country", v.Country.String()),
		)
		span.AddEvent("vehicle_admitted")
		labels = append(labels, attribute.String("vehicle_kind", v.Kind.String()))
	}

	il.admissions.Add(ctx, 1, metric.WithAttributes(labels...))
	il.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))
}

func (il *InstrumentedLedger) Dismiss(ctx context.Context, registration string) (*Ticket, error) {
	ctx, span := il.telemetry.Tracer().Start(ctx, "facility.dismiss",
		trace.WithAttributes(
			attribute.String("vehicle.plate", registration),
		))
	defer span.End()

	start := time.Now()
	closed, err := il.Ledger.Dismiss(ctx, registration)

	labels := il.finish(span, "dismiss", err)
	if closed != nil {
		span.AddEvent("slot_released", trace.WithAttributes(
			attribute.Int("slot_number", closed.SlotNumber),
		))
		il.recordClosedTicket(ctx, *closed)
	}

	il.dismissals.Add(ctx, 1, metric.WithAttributes(labels...))
	il.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))
	return closed, err
}

func (il *InstrumentedLedger) AssignSlot(ctx context.Context, number int, registration string) (Ticket, error) {
	ctx, span := il.telemetry.Tracer().Start(ctx, "facility.assign_slot",
		trace.WithAttributes(
			attribute.Int("slot_number", number),
			attribute.String("vehicle.plate", registration),
		))
	defer span.End()

	start := time.Now()
	ticket, err := il.Ledger.AssignSlot(ctx, number, registration)

	labels := il.finish(span, "assign_slot", err)
	if err == nil {
		span.SetAttributes(attribute.Int64("ticket.id", ticket.ID))
		span.AddEvent("slot_allocated", trace.WithAttributes(
			attribute.Int("slot_number", number),
		))
		il.occupancyGauge.Add(ctx, 1)
	}

	il.assignments.Add(ctx, 1, metric.WithAttributes(labels...))
	il.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))
	return ticket, err
}

func (il *InstrumentedLedger) Release(ctx context.Context, number int) (Ticket, error) {
	ctx, span := il.telemetry.Tracer().Start(ctx, "facility.release",
		trace.WithAttributes(
			attribute.Int("slot_number", number),
		))
	defer span.End()

	start := time.Now()
	span.AddEvent("releasing_slot")
	ticket, err := il.Ledger.Release(ctx, number)

	labels := il.finish(span, "release", err)
	if err == nil {
		span.SetAttributes(
			attribute.Int64("ticket.id", ticket.ID),
			attribute.String("vehicle.plate", ticket.Plate),
			attribute.Float64("ticket.price", ticket.Price()),
		)
		span.AddEvent("slot_released")
		il.recordClosedTicket(ctx, ticket)
	}

	il.releases.Add(ctx, 1, metric.WithAttributes(labels...))
	il.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))
	return ticket, err
}

func (il *InstrumentedLedger) recordClosedTicket(ctx context.Context, t Ticket) {
	il.occupancyGauge.Add(ctx, -1)
	il.revenue.Add(ctx, t.Price())
}

// Status returns the facility summary inside a span.
func (il *InstrumentedLedger) Status(ctx context.Context) Stats {
	ctx, span := il.telemetry.Tracer().Start(ctx, "facility.status")
	defer span.End()

	start := time.Now()
	stats := il.Ledger.Stats()

	span.SetAttributes(
		attribute.Int("occupied_slots_count", stats.Occupied),
		attribute.Int("total_capacity", stats.Capacity),
		attribute.Int("active_vehicles", stats.Active),
	)

	labels := []attribute.KeyValue{
		attribute.String("operation", "status"),
		attribute.String("status", "success"),
	}
	il.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))
	return stats
}

// Lookup finds a vehicle and the slot it occupies, if any.
func (il *InstrumentedLedger) Lookup(ctx context.Context, registration string) (Vehicle, *Slot, error) {
	ctx, span := il.telemetry.Tracer().Start(ctx, "facility.lookup",
		trace.WithAttributes(
			attribute.String("vehicle.plate", registration),
		))
	defer span.End()

	start := time.Now()
	span.AddEvent("searching_by_plate")

	v, err := il.Ledger.Vehicle(registration)
	var slot *Slot
	if err == nil {
		if s, ok := il.Ledger.SlotOf(registration); ok {
			slot = &s
			span.SetAttributes(attribute.Int("found_slot_number", s.Number))
		}
	}

	labels := []attribute.KeyValue{attribute.String("operation", "lookup")}
	if err != nil {
		span.AddEvent("vehicle_not_found")
		labels = append(labels, attribute.String("status", "not_found"))
	} else {
		span.AddEvent("vehicle_found")
		labels = append(labels, attribute.String("status", "found"))
	}

	il.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))
	return v, slot, err
}

// finish marks the span and returns the metric labels for the outcome.
func (il *InstrumentedLedger) finish(span trace.Span, op string, err error) []attribute.KeyValue {
	labels := []attribute.KeyValue{attribute.String("operation", op)}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return append(labels,
			attribute.String("status", "failed"),
			attribute.String("error_kind", errorKind(err)),
		)
	}
	return append(labels, attribute.String("status", "success"))
}

func errorKind(err error) string {
	switch {
	case IsRetryable(err):
		return "store"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidFormat), errors.Is(err, ErrInvalidSlot):
		return "invalid"
	default:
		return "other"
	}
}

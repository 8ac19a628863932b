package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"parking-facility/internal/parking"
	"parking-facility/internal/plate"
)

type Meta struct {
	TraceID   string `json:"trace_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Store   string `json:"store"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// RegisterVehicleRequest admits a vehicle under Plate, or under a fresh plate
// for Country when Plate is empty.
type RegisterVehicleRequest struct {
	Kind    string `json:"kind"`
	Plate   string `json:"plate,omitempty"`
	Country string `json:"country,omitempty"`
}

type PlateRequest struct {
	Plate string `json:"plate"`
}

type AssignSlotRequest struct {
	Slot  int    `json:"slot"`
	Plate string `json:"plate"`
}

type ReleaseSlotRequest struct {
	Slot int `json:"slot"`
}

type GeneratePlateRequest struct {
	Country string `json:"country"`
}

type DismissResponse struct {
	Plate  string          `json:"plate"`
	Ticket *parking.Ticket `json:"ticket,omitempty"`
}

type VehicleResponse struct {
	Vehicle parking.Vehicle `json:"vehicle"`
	State   string          `json:"state"`
	Slot    *int            `json:"slot,omitempty"`
}

type PlateResponse struct {
	Plate   string        `json:"plate"`
	Valid   bool          `json:"valid"`
	Country plate.Country `json:"country,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func extractMeta(ctx context.Context) *Meta {
	meta := &Meta{}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		meta.TraceID = span.SpanContext().TraceID().String()
	}

	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		meta.RequestID = reqID
	}

	return meta
}

func WriteSuccess(ctx context.Context, w http.ResponseWriter, message string, data any) {
	writeSuccess(ctx, w, http.StatusOK, message, data)
}

func WriteCreated(ctx context.Context, w http.ResponseWriter, message string, data any) {
	writeSuccess(ctx, w, http.StatusCreated, message, data)
}

func writeSuccess(ctx context.Context, w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Response{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    extractMeta(ctx),
	})
}

func WriteError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Response{
		Success: false,
		Error:   message,
		Meta:    extractMeta(ctx),
	})
}

// WriteLedgerError maps a ledger or codec error onto its HTTP status.
func WriteLedgerError(ctx context.Context, w http.ResponseWriter, err error) {
	WriteError(ctx, w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case parking.IsRetryable(err):
		return http.StatusServiceUnavailable
	case parking.IsNotFound(err):
		return http.StatusNotFound
	case parking.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, parking.ErrInvalidArgument),
		errors.Is(err, parking.ErrInvalidFormat),
		errors.Is(err, parking.ErrInvalidSlot):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

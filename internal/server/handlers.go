package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"parking-facility/internal/logging"
	"parking-facility/internal/parking"
	"parking-facility/internal/plate"
)

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	ledger      *parking.InstrumentedLedger
	codec       *plate.Codec
	store       Pinger
	serviceName string
}

func NewHandler(ledger *parking.InstrumentedLedger, store Pinger, serviceName string) *Handler {
	return &Handler{
		ledger:      ledger,
		codec:       plate.NewCodec(nil),
		store:       store,
		serviceName: serviceName,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := HealthResponse{
		Status:  "healthy",
		Service: h.serviceName,
		Store:   "ok",
		Meta:    extractMeta(ctx),
	}

	if h.store != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.store.Ping(pingCtx); err != nil {
			logging.Warn(ctx).Err(err).Msg("health check: store ping failed")
			resp.Status = "degraded"
			resp.Store = err.Error()
			WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) RegisterVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RegisterVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	kind, err := parking.ParseKind(req.Kind)
	if err != nil {
		WriteLedgerError(ctx, w, err)
		return
	}

	var v parking.Vehicle
	switch {
	case strings.TrimSpace(req.Plate) != "":
		v, err = h.ledger.RegisterPlate(ctx, kind, req.Plate)
	case req.Country != "":
		country, perr := plate.ParseCountry(req.Country)
		if perr != nil {
			WriteLedgerError(ctx, w, perr)
			return
		}
		v, err = h.ledger.RegisterSynthesized(ctx, kind, country)
	default:
		WriteError(ctx, w, http.StatusBadRequest, "Either plate or country is required")
		return
	}
	if err != nil {
		WriteLedgerError(ctx, w, err)
		return
	}

	WriteCreated(ctx, w, "Vehicle admitted", v)
}

func (h *Handler) DismissVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req PlateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	closed, err := h.ledger.Dismiss(ctx, req.Plate)
	if err != nil {
		WriteLedgerError(ctx, w, err)
		return
	}

	WriteSuccess(ctx, w, "Vehicle dismissed", DismissResponse{
		Plate:  parking.NormalizePlate(req.Plate),
		Ticket: closed,
	})
}

func (h *Handler) AssignSlot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AssignSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ticket, err := h.ledger.AssignSlot(ctx, req.Slot, req.Plate)
	if err != nil {
		WriteLedgerError(ctx, w, err)
		return
	}

	WriteCreated(ctx, w, "Slot assigned", ticket)
}

func (h *Handler) ReleaseSlot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ReleaseSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ticket, err := h.ledger.Release(ctx, req.Slot)
	if err != nil {
		WriteLedgerError(ctx, w, err)
		return
	}

	WriteSuccess(ctx, w, "Slot released", ticket)
}

// ListVehicles filters by state, country and kind, in that order, and sorts
// by the sort parameter.
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	order, err := parking.ParseVehicleOrder(query.Get("sort"))
	if err != nil {
		WriteLedgerError(ctx, w, err)
		return
	}

	var vehicles []parking.Vehicle
	if name := query.Get("state"); name != "" {
		state, err := parking.ParseVehicleState(name)
		if err != nil {
			WriteLedgerError(ctx, w, err)
			return
		}
		vehicles = h.ledger.VehiclesInState(state, order)
	} else {
		vehicles = h.ledger.Vehicles(order)
	}

	if name := query.Get("country"); name != "" {
		country, err := plate.ParseCountry(name)
		if err != nil {
			WriteLedgerError(ctx, w, err)
			return
		}
		vehicles = filterVehicles(vehicles, func(v parking.Vehicle) bool { return v.Country == country })
	}

	if name := query.Get("kind"); name != "" {
		kind, err := parking.ParseKind(name)
		if err != nil {
			WriteLedgerError(ctx, w, err)
			return
		}
		vehicles = filterVehicles(vehicles, func(v parking.Vehicle) bool { return v.Kind == kind })
	}

	WriteSuccess(ctx, w, "", vehicles)
}

func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registration, err := url.PathUnescape(chi.URLParam(r, "plate"))
	if err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid plate")
		return
	}

	v, slot, err := h.ledger.Lookup(ctx, registration)
	if err != nil {
		WriteLedgerError(ctx, w, err)
		return
	}

	resp := VehicleResponse{
		Vehicle: v,
		State:   h.ledger.State(v.Plate).String(),
	}
	if slot != nil {
		resp.Slot = &slot.Number
	}

	WriteSuccess(ctx, w, "", resp)
}

func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	onlyAvailable := false
	if raw := r.URL.Query().Get("available"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(ctx, w, http.StatusBadRequest, "available must be a boolean")
			return
		}
		onlyAvailable = parsed
	}

	if onlyAvailable {
		WriteSuccess(ctx, w, "", h.ledger.AvailableSlots())
		return
	}
	WriteSuccess(ctx, w, "", h.ledger.Slots())
}

func (h *Handler) GetSlot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Slot number must be an integer")
		return
	}

	slot, err := h.ledger.Slot(number)
	if err != nil {
		WriteLedgerError(ctx, w, err)
		return
	}

	WriteSuccess(ctx, w, "", slot)
}

// ListTickets returns the ticket history, optionally narrowed to one plate.
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tickets := h.ledger.TicketHistory()

	if registration := r.URL.Query().Get("plate"); registration != "" {
		key := parking.NormalizePlate(registration)
		filtered := tickets[:0]
		for _, t := range tickets {
			if t.Plate == key {
				filtered = append(filtered, t)
			}
		}
		tickets = filtered
	}

	WriteSuccess(ctx, w, "", tickets)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	WriteSuccess(ctx, w, "", h.ledger.Status(ctx))
}

func (h *Handler) GeneratePlate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req GeneratePlateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	country, err := plate.ParseCountry(req.Country)
	if err != nil {
		WriteLedgerError(ctx, w, err)
		return
	}

	synthesized, err := h.codec.Synthesize(country)
	if err != nil {
		WriteLedgerError(ctx, w, err)
		return
	}

	WriteSuccess(ctx, w, "", PlateResponse{Plate: synthesized, Valid: true, Country: country})
}

// ValidatePlate reports the issuing country of a plate. A plate that matches
// no country is a valid request with Valid set to false.
func (h *Handler) ValidatePlate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req PlateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Plate) == "" {
		WriteError(ctx, w, http.StatusBadRequest, "plate is required")
		return
	}

	normalized := parking.NormalizePlate(req.Plate)
	country, err := h.codec.CountryOf(normalized)
	if err != nil {
		WriteSuccess(ctx, w, "", PlateResponse{Plate: normalized})
		return
	}

	WriteSuccess(ctx, w, "", PlateResponse{Plate: normalized, Valid: true, Country: country})
}

func filterVehicles(vehicles []parking.Vehicle, keep func(parking.Vehicle) bool) []parking.Vehicle {
	out := vehicles[:0]
	for _, v := range vehicles {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

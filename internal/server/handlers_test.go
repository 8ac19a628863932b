package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"parking-facility/internal/logging"
	"parking-facility/internal/parking"
	"parking-facility/internal/plate"
	"parking-facility/internal/store/memory"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Meta    *Meta           `json:"meta"`
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	now     time.Time
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestAPI(t *testing.T, capacity int, pinger Pinger) *testAPI {
	t.Helper()
	logging.SetOutput(io.Discard)

	api := &testAPI{t: t, now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}

	backend := memory.New()
	ledger, err := parking.NewLedger(context.Background(), backend, capacity,
		parking.WithClock(func() time.Time { return api.now }))
	require.NoError(t, err)

	telemetry := parking.NewTelemetryProviderFrom(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	instrumented, err := parking.NewInstrumentedLedger(ledger, telemetry)
	require.NoError(t, err)

	if pinger == nil {
		pinger = backend
	}
	api.handler = NewServer("0", instrumented, pinger, "parking-facility-test").Handler()
	return api
}

func (a *testAPI) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	t.Run("store reachable", func(t *testing.T) {
		api := newTestAPI(t, 1, nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		api.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var health HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, "healthy", health.Status)
		assert.Equal(t, "parking-facility-test", health.Service)
		assert.Equal(t, "ok", health.Store)
	})

	t.Run("store down", func(t *testing.T) {
		api := newTestAPI(t, 1, failingPinger{})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		api.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var health HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, "degraded", health.Status)
		assert.Contains(t, health.Store, "connection refused")
	})
}

func TestRequestIDHeader(t *testing.T) {
	api := newTestAPI(t, 1, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/facility/status", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Meta)
	assert.Equal(t, "req-123", env.Meta.RequestID)

	rec, _ = api.do(http.MethodGet, "/api/facility/status", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestParkingEpisode(t *testing.T) {
	api := newTestAPI(t, 1, nil)

	rec, env := api.do(http.MethodPost, "/api/facility/vehicles",
		RegisterVehicleRequest{Kind: "car", Plate: "2008 hhr"})
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)
	v := decodeData[parking.Vehicle](t, env)
	assert.Equal(t, "2008 HHR", v.Plate)
	assert.Equal(t, plate.Spain, v.Country)
	assert.Equal(t, parking.Car, v.Kind)
	assert.True(t, v.Active)

	rec, env = api.do(http.MethodPost, "/api/facility/park", AssignSlotRequest{Slot: 1, Plate: "2008 HHR"})
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)
	opened := decodeData[parking.Ticket](t, env)
	assert.Equal(t, 1, opened.SlotNumber)
	assert.Nil(t, opened.ExitTime)

	rec, env = api.do(http.MethodGet, "/api/facility/vehicles/2008%20HHR", nil)
	require.Equal(t, http.StatusOK, rec.Code, env.Error)
	lookup := decodeData[VehicleResponse](t, env)
	assert.Equal(t, "parked", lookup.State)
	require.NotNil(t, lookup.Slot)
	assert.Equal(t, 1, *lookup.Slot)

	rec, env = api.do(http.MethodGet, "/api/facility/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeData[parking.Stats](t, env).Available)

	api.now = api.now.Add(3 * time.Minute)

	rec, env = api.do(http.MethodPost, "/api/facility/release", ReleaseSlotRequest{Slot: 1})
	require.Equal(t, http.StatusOK, rec.Code, env.Error)
	closed := decodeData[parking.Ticket](t, env)
	require.NotNil(t, closed.ExitTime)
	assert.InDelta(t, 0.12, closed.Price(), 1e-9)

	rec, env = api.do(http.MethodPost, "/api/facility/dismiss", PlateRequest{Plate: "2008 HHR"})
	require.Equal(t, http.StatusOK, rec.Code, env.Error)
	dismissed := decodeData[DismissResponse](t, env)
	assert.Equal(t, "2008 HHR", dismissed.Plate)
	assert.Nil(t, dismissed.Ticket)

	rec, env = api.do(http.MethodGet, "/api/facility/tickets?plate=2008%20hhr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]parking.Ticket](t, env), 1)

	rec, env = api.do(http.MethodGet, "/api/facility/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeData[parking.Stats](t, env)
	assert.Equal(t, 1, stats.Capacity)
	assert.Equal(t, 1, stats.Available)
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 1, stats.Tickets)
	assert.InDelta(t, 0.12, stats.Revenue, 1e-9)
}

func TestErrorStatuses(t *testing.T) {
	api := newTestAPI(t, 1, nil)

	rec, _ := api.do(http.MethodPost, "/api/facility/vehicles", RegisterVehicleRequest{Kind: "car", Plate: "AA-229-AA"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = api.do(http.MethodPost, "/api/facility/park", AssignSlotRequest{Slot: 1, Plate: "AA-229-AA"})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"malformed body", http.MethodPost, "/api/facility/vehicles", "{", http.StatusBadRequest},
		{"unknown kind", http.MethodPost, "/api/facility/vehicles", RegisterVehicleRequest{Kind: "tank", Plate: "AA-229-AA"}, http.StatusBadRequest},
		{"unknown plate format", http.MethodPost, "/api/facility/vehicles", RegisterVehicleRequest{Kind: "car", Plate: "ZZ99ZZ"}, http.StatusBadRequest},
		{"unknown country", http.MethodPost, "/api/facility/vehicles", RegisterVehicleRequest{Kind: "car", Country: "Atlantis"}, http.StatusBadRequest},
		{"neither plate nor country", http.MethodPost, "/api/facility/vehicles", RegisterVehicleRequest{Kind: "car"}, http.StatusBadRequest},
		{"already inside", http.MethodPost, "/api/facility/vehicles", RegisterVehicleRequest{Kind: "car", Plate: "aa-229-aa"}, http.StatusConflict},
		{"facility full", http.MethodPost, "/api/facility/vehicles", RegisterVehicleRequest{Kind: "van", Plate: "2008 HHR"}, http.StatusConflict},
		{"slot out of range", http.MethodPost, "/api/facility/park", AssignSlotRequest{Slot: 9, Plate: "AA-229-AA"}, http.StatusBadRequest},
		{"park vehicle not inside", http.MethodPost, "/api/facility/park", AssignSlotRequest{Slot: 1, Plate: "2008 HHR"}, http.StatusConflict},
		{"dismiss unregistered", http.MethodPost, "/api/facility/dismiss", PlateRequest{Plate: "2008 HHR"}, http.StatusNotFound},
		{"unknown vehicle", http.MethodGet, "/api/facility/vehicles/2008%20HHR", nil, http.StatusNotFound},
		{"non-numeric slot", http.MethodGet, "/api/facility/slots/abc", nil, http.StatusBadRequest},
		{"slot not in layout", http.MethodGet, "/api/facility/slots/5", nil, http.StatusBadRequest},
		{"bad available flag", http.MethodGet, "/api/facility/slots?available=maybe", nil, http.StatusBadRequest},
		{"bad sort", http.MethodGet, "/api/facility/vehicles?sort=colour", nil, http.StatusBadRequest},
		{"bad state", http.MethodGet, "/api/facility/vehicles?state=flying", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := api.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}

	t.Run("second dismiss conflicts", func(t *testing.T) {
		rec, env := api.do(http.MethodPost, "/api/facility/dismiss", PlateRequest{Plate: "AA-229-AA"})
		require.Equal(t, http.StatusOK, rec.Code, env.Error)
		assert.NotNil(t, decodeData[DismissResponse](t, env).Ticket)

		rec, _ = api.do(http.MethodPost, "/api/facility/release", ReleaseSlotRequest{Slot: 1})
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec, _ = api.do(http.MethodPost, "/api/facility/dismiss", PlateRequest{Plate: "AA-229-AA"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestListings(t *testing.T) {
	api := newTestAPI(t, 3, nil)

	rec, env := api.do(http.MethodPost, "/api/facility/vehicles", RegisterVehicleRequest{Kind: "car", Plate: "2008 HHR"})
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)
	rec, env = api.do(http.MethodPost, "/api/facility/vehicles", RegisterVehicleRequest{Kind: "van", Plate: "AA-229-AA"})
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)
	rec, env = api.do(http.MethodPost, "/api/facility/vehicles", RegisterVehicleRequest{Kind: "bus", Country: "Spain"})
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)
	bus := decodeData[parking.Vehicle](t, env)
	assert.Equal(t, plate.Spain, bus.Country)

	rec, env = api.do(http.MethodPost, "/api/facility/park", AssignSlotRequest{Slot: 2, Plate: "AA-229-AA"})
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)

	plates := func(path string) []string {
		t.Helper()
		rec, env := api.do(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, env.Error)
		var out []string
		for _, v := range decodeData[[]parking.Vehicle](t, env) {
			out = append(out, v.Plate)
		}
		return out
	}

	assert.Len(t, plates("/api/facility/vehicles"), 3)
	assert.ElementsMatch(t, []string{"2008 HHR", bus.Plate}, plates("/api/facility/vehicles?country=spain"))
	assert.Equal(t, []string{"AA-229-AA"}, plates("/api/facility/vehicles?kind=van"))
	assert.Equal(t, []string{"AA-229-AA"}, plates("/api/facility/vehicles?state=parked"))
	assert.ElementsMatch(t, []string{"2008 HHR", bus.Plate}, plates("/api/facility/vehicles?state=inside"))
	assert.Equal(t, []string{bus.Plate}, plates("/api/facility/vehicles?state=inside&kind=bus&sort=kind"))

	rec, env = api.do(http.MethodGet, "/api/facility/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]parking.Slot](t, env), 3)

	rec, env = api.do(http.MethodGet, "/api/facility/slots?available=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	free := decodeData[[]parking.Slot](t, env)
	require.Len(t, free, 2)
	assert.Equal(t, 1, free[0].Number)
	assert.Equal(t, 3, free[1].Number)

	rec, env = api.do(http.MethodGet, "/api/facility/slots/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slot := decodeData[parking.Slot](t, env)
	assert.False(t, slot.Available)
	assert.Equal(t, "AA-229-AA", slot.OccupantPlate)
}

func TestPlateEndpoints(t *testing.T) {
	api := newTestAPI(t, 1, nil)

	for _, country := range plate.Countries() {
		rec, env := api.do(http.MethodPost, "/api/plates/generate", GeneratePlateRequest{Country: country.String()})
		require.Equal(t, http.StatusOK, rec.Code, env.Error)
		generated := decodeData[PlateResponse](t, env)

		rec, env = api.do(http.MethodPost, "/api/plates/validate", PlateRequest{Plate: generated.Plate})
		require.Equal(t, http.StatusOK, rec.Code, env.Error)
		validated := decodeData[PlateResponse](t, env)
		assert.True(t, validated.Valid)
		assert.Equal(t, country, validated.Country, generated.Plate)
	}

	rec, env := api.do(http.MethodPost, "/api/plates/validate", PlateRequest{Plate: "aa-229-aa"})
	require.Equal(t, http.StatusOK, rec.Code)
	france := decodeData[PlateResponse](t, env)
	assert.True(t, france.Valid)
	assert.Equal(t, "AA-229-AA", france.Plate)
	assert.Equal(t, plate.France, france.Country)

	rec, env = api.do(http.MethodPost, "/api/plates/validate", PlateRequest{Plate: "ZZ99ZZ"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeData[PlateResponse](t, env).Valid)

	rec, _ = api.do(http.MethodPost, "/api/plates/validate", PlateRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(http.MethodPost, "/api/plates/generate", GeneratePlateRequest{Country: "Narnia"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, 2, nil)

	rec, _ := api.do(http.MethodPost, "/api/facility/vehicles", RegisterVehicleRequest{Kind: "car", Plate: "2008 HHR"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = api.do(http.MethodPost, "/api/facility/park", AssignSlotRequest{Slot: 1, Plate: "2008 HHR"})
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	scrape := httptest.NewRecorder()
	api.handler.ServeHTTP(scrape, req)
	require.Equal(t, http.StatusOK, scrape.Code)

	body := scrape.Body.String()
	assert.Contains(t, body, "parking_facility_slots_total 2")
	assert.Contains(t, body, "parking_facility_slots_available 1")
	assert.Contains(t, body, "parking_facility_vehicles_inside 1")
	assert.Contains(t, body, "parking_facility_tickets_open 1")
	assert.Contains(t, body, `parking_facility_http_requests_total{method="POST",route="/api/facility/park",status="201"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t, 1, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/facility/vehicles", nil)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	logging.SetOutput(io.Discard)
	h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "Internal server error", env.Error)
}
